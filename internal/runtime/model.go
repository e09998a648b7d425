package runtime

import (
	"github.com/4rchr4y/moss/internal/effect"
	"github.com/4rchr4y/moss/internal/entity"
	"github.com/4rchr4y/moss/internal/trace"
)

// Model is a strong, typed handle to an entity holding a T.
//
// Every Model must be released exactly once. When the last strong handle is
// released the entity is finalized at the start of the next flush.
type Model[T any] struct {
	handle *entity.Handle
}

// ID returns the entity id.
func (m *Model[T]) ID() entity.ID {
	return m.handle.ID()
}

// Clone returns another strong handle to the same entity.
func (m *Model[T]) Clone() *Model[T] {
	return &Model[T]{handle: m.handle.Clone()}
}

// Release drops this strong reference. Releasing twice is a no-op.
func (m *Model[T]) Release() {
	m.handle.Release()
}

// Downgrade returns a weak handle.
func (m *Model[T]) Downgrade() WeakModel[T] {
	return WeakModel[T]{weak: m.handle.Downgrade()}
}

// Read returns a copy of the entity value. Panics with REENTRANT_ACCESS if
// the entity is currently leased and with RELEASED_HANDLE after Release.
func (m *Model[T]) Read(cx *Context) T {
	return *cx.entities.Read(m.handle).(*T)
}

// Update leases the entity and applies fn to it.
func (m *Model[T]) Update(cx *Context, fn func(v *T, mc *ModelContext[T])) {
	UpdateModel(cx, m, func(v *T, mc *ModelContext[T]) struct{} {
		fn(v, mc)
		return struct{}{}
	})
}

// WeakModel is a non-owning handle. The zero value never upgrades.
type WeakModel[T any] struct {
	weak entity.WeakHandle
}

// ID returns the entity id.
func (w WeakModel[T]) ID() entity.ID {
	return w.weak.ID()
}

// Upgrade returns a strong handle while the entity is alive. Once its strong
// count reached zero Upgrade returns false; callers skip the work.
func (w WeakModel[T]) Upgrade() (*Model[T], bool) {
	h, ok := w.weak.Upgrade()
	if !ok {
		return nil, false
	}
	return &Model[T]{handle: h}, true
}

// Reservation is a reserved entity id whose value is not installed yet.
type Reservation[T any] struct {
	slot entity.Slot
}

// ID returns the reserved entity id.
func (r Reservation[T]) ID() entity.ID {
	return r.slot.ID()
}

// Downgrade returns a weak handle that upgrades once the value is inserted.
func (r Reservation[T]) Downgrade() WeakModel[T] {
	return WeakModel[T]{weak: r.slot.Downgrade()}
}

// Abandon gives up the reservation. It is finalized at the next flush
// without running release listeners.
func (r Reservation[T]) Abandon() {
	r.slot.Abandon()
}

// ReserveModel allocates an entity id without a value.
func ReserveModel[T any](cx *Context) Reservation[T] {
	return Reservation[T]{slot: cx.entities.Reserve()}
}

// InsertModel installs the value of a reservation.
func InsertModel[T any](cx *Context, r Reservation[T], value T) *Model[T] {
	return UpdateResult(cx, func(cx *Context) *Model[T] {
		h := cx.entities.Insert(r.slot, &value)
		cx.record(trace.KindEntityCreate, uint64(h.ID()), "")
		return &Model[T]{handle: h}
	})
}

// NewModel creates an entity. build runs before the value exists and gets a
// ModelContext that already knows the entity's weak handle, so the new value
// can register observers or capture its own id.
func NewModel[T any](cx *Context, build func(mc *ModelContext[T]) T) *Model[T] {
	return UpdateResult(cx, func(cx *Context) *Model[T] {
		r := ReserveModel[T](cx)

		inserted := false
		defer func() {
			if !inserted {
				r.Abandon()
			}
		}()

		mc := &ModelContext[T]{Context: cx, self: r.Downgrade()}
		m := InsertModel(cx, r, build(mc))
		inserted = true
		return m
	})
}

// UpdateModel leases the entity behind m for the duration of fn. The lease
// ends on every exit path. A nested lease of the same entity panics with
// REENTRANT_ACCESS.
func UpdateModel[T, R any](cx *Context, m *Model[T], fn func(v *T, mc *ModelContext[T]) R) R {
	return UpdateResult(cx, func(cx *Context) R {
		lease := cx.entities.Lease(m.handle)
		defer cx.entities.EndLease(lease)

		mc := &ModelContext[T]{Context: cx, self: m.Downgrade()}
		return fn(lease.Value().(*T), mc)
	})
}

// Notify enqueues a notification for m's observers.
func Notify[T any](cx *Context, m *Model[T]) {
	cx.Update(func(cx *Context) {
		cx.PushEffect(effect.Notify(uint64(m.ID())))
	})
}

// Emit enqueues ev for m's listeners of ev's kind.
func Emit[T any](cx *Context, m *Model[T], ev Event) {
	cx.Update(func(cx *Context) {
		cx.PushEffect(effect.Emit(uint64(m.ID()), string(ev.EventKind()), ev))
	})
}

// ModelContext is the Context handed to callbacks that act on behalf of one
// entity.
type ModelContext[T any] struct {
	*Context
	self WeakModel[T]
}

// Handle returns a weak handle to the entity this context belongs to.
func (mc *ModelContext[T]) Handle() WeakModel[T] {
	return mc.self
}

// EntityID returns the id of the entity this context belongs to.
func (mc *ModelContext[T]) EntityID() entity.ID {
	return mc.self.ID()
}

// Notify enqueues a notification for this entity's observers.
func (mc *ModelContext[T]) Notify() {
	mc.PushEffect(effect.Notify(uint64(mc.self.ID())))
}

// Emit enqueues ev for this entity's listeners of ev's kind.
func (mc *ModelContext[T]) Emit(ev Event) {
	mc.PushEffect(effect.Emit(uint64(mc.self.ID()), string(ev.EventKind()), ev))
}

// OnRelease registers fn to run once with the entity's final value when it
// is finalized.
func (mc *ModelContext[T]) OnRelease(fn func(v *T, cx *Context)) *Subscription {
	return mc.registerRelease(uint64(mc.self.ID()), func(cx *Context, value any) {
		fn(value.(*T), cx)
	})
}
