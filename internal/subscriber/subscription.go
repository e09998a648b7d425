package subscriber

// Subscription guards one registration.
//
// Close removes the registration unless Detach was called first. Callers that
// want the registration to live only as long as some scope use
//
//	sub := ...
//	defer sub.Close()
//
// which removes it on every exit path, panics included. Callers that want the
// registration to outlive the guard call Detach.
type Subscription struct {
	unsubscribe func()
	detached    bool
	closed      bool
}

// Detach makes the registration permanent. A later Close is a no-op.
func (s *Subscription) Detach() {
	s.detached = true
}

// Close removes the registration. Safe to call more than once.
func (s *Subscription) Close() {
	if s.detached || s.closed {
		return
	}
	s.closed = true
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

// Detached reports whether Detach was called.
func (s *Subscription) Detached() bool {
	return s.detached
}
