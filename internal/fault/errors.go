// Package fault defines the contract violations raised by the moss runtime.
//
// A contract violation means one of the runtime's internal invariants is
// already broken: an entity leased twice, a node read while it is being
// computed, a still-referenced slot removed. These are never returned as
// ordinary errors. They are raised with panic(*ContractError) at the point of
// detection so the caller fails fast instead of continuing on corrupt state.
//
// Conditions that are expected during normal operation are NOT faults:
//   - Upgrading a weak handle after its entity was finalized returns ok=false.
//   - A typed listener whose event kind does not match simply does not fire.
//
// Tooling that must survive a violation (the scenario harness, the CLI) uses
// Catch to convert the panic back into an error value.
package fault

import (
	"errors"
	"fmt"
)

// Code categorizes contract violations.
type Code string

const (
	// CodeReentrantAccess indicates an entity was leased, or a node was read
	// or written, while it was already exclusively held.
	CodeReentrantAccess Code = "REENTRANT_ACCESS"

	// CodeInvalidRemoval indicates removal of a slot whose reference count
	// is not zero.
	CodeInvalidRemoval Code = "INVALID_REMOVAL"

	// CodeUnpopulatedSlot indicates a read or lease of a reserved slot
	// before its value was installed.
	CodeUnpopulatedSlot Code = "UNPOPULATED_SLOT"

	// CodePopulatedSlot indicates a second Insert into a slot that already
	// holds a value.
	CodePopulatedSlot Code = "POPULATED_SLOT"

	// CodeReleasedHandle indicates use of a strong handle after Release.
	CodeReleasedHandle Code = "RELEASED_HANDLE"

	// CodeFlushQuotaExceeded indicates a flush cycle dispatched more effects
	// than the configured limit, which means callbacks keep re-enqueueing
	// work without converging.
	CodeFlushQuotaExceeded Code = "FLUSH_QUOTA_EXCEEDED"
)

// ContractError describes a broken runtime invariant.
type ContractError struct {
	// Code identifies the violation category.
	Code Code

	// Message is a human-readable description.
	Message string

	// Subject names the arena involved ("entity" or "node"), if any.
	Subject string

	// ID is the offending entity id or node key. Zero when not applicable.
	ID uint64
}

// Error implements the error interface.
func (e *ContractError) Error() string {
	if e.Subject != "" {
		return fmt.Sprintf("%s: %s (%s=%d)", e.Code, e.Message, e.Subject, e.ID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Raise panics with err. It never returns.
func Raise(err *ContractError) {
	panic(err)
}

// ReentrantAccess creates a ContractError for exclusive-access violations.
func ReentrantAccess(subject string, id uint64, op string) *ContractError {
	return &ContractError{
		Code:    CodeReentrantAccess,
		Message: fmt.Sprintf("cannot %s %s that is already exclusively held", op, subject),
		Subject: subject,
		ID:      id,
	}
}

// InvalidRemoval creates a ContractError for removing a referenced slot.
func InvalidRemoval(subject string, id uint64, count int) *ContractError {
	return &ContractError{
		Code:    CodeInvalidRemoval,
		Message: fmt.Sprintf("cannot remove %s with %d strong references", subject, count),
		Subject: subject,
		ID:      id,
	}
}

// UnpopulatedSlot creates a ContractError for reading a reserved-only slot.
func UnpopulatedSlot(subject string, id uint64) *ContractError {
	return &ContractError{
		Code:    CodeUnpopulatedSlot,
		Message: fmt.Sprintf("%s slot is reserved but has no value yet", subject),
		Subject: subject,
		ID:      id,
	}
}

// PopulatedSlot creates a ContractError for inserting into a slot twice.
func PopulatedSlot(subject string, id uint64) *ContractError {
	return &ContractError{
		Code:    CodePopulatedSlot,
		Message: fmt.Sprintf("%s slot already holds a value", subject),
		Subject: subject,
		ID:      id,
	}
}

// ReleasedHandle creates a ContractError for using a released strong handle.
func ReleasedHandle(subject string, id uint64, op string) *ContractError {
	return &ContractError{
		Code:    CodeReleasedHandle,
		Message: fmt.Sprintf("cannot %s through a released %s handle", op, subject),
		Subject: subject,
		ID:      id,
	}
}

// FlushQuotaExceeded creates a ContractError for a runaway flush cycle.
func FlushQuotaExceeded(steps, limit int) *ContractError {
	return &ContractError{
		Code:    CodeFlushQuotaExceeded,
		Message: fmt.Sprintf("flush exceeded max steps (%d > %d)", steps, limit),
	}
}

// Is reports whether err is a ContractError with the given code.
// Uses errors.As to handle wrapped errors.
func Is(err error, code Code) bool {
	var ce *ContractError
	if errors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}

// IsReentrantAccess returns true if err is a reentrant access violation.
func IsReentrantAccess(err error) bool {
	return Is(err, CodeReentrantAccess)
}

// IsInvalidRemoval returns true if err is an invalid removal violation.
func IsInvalidRemoval(err error) bool {
	return Is(err, CodeInvalidRemoval)
}

// FromRecovered extracts a ContractError from a value returned by recover().
func FromRecovered(r any) (*ContractError, bool) {
	if r == nil {
		return nil, false
	}
	err, ok := r.(error)
	if !ok {
		return nil, false
	}
	var ce *ContractError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// Catch runs fn and converts a contract violation panic into an error.
// Panics that are not contract violations are re-raised unchanged.
func Catch(fn func()) (err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if ce, ok := FromRecovered(r); ok {
			err = ce
			return
		}
		panic(r)
	}()

	fn()
	return nil
}
