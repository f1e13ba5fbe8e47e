package order

// OrderState implements the state pattern for order lifecycle transitions.
// Each handler returns the next state and whether anything changed; returning
// the receiver with changed=false is an idempotent no-op.
type OrderState interface {
	Status() Status
	OnPaymentCompleted() (OrderState, bool, error)
	OnPaymentFailed() (OrderState, bool, error)
	// AdvanceTo handles an administrative move to target.
	AdvanceTo(target Status) (OrderState, bool, error)
}

func stateFor(s Status) (OrderState, error) {
	switch s {
	case StatusPending:
		return pendingState{}, nil
	case StatusProcessing:
		return processingState{}, nil
	case StatusShipped:
		return shippedState{}, nil
	case StatusDelivered:
		return deliveredState{}, nil
	case StatusCompleted:
		return completedState{}, nil
	case StatusCancelled:
		return cancelledState{}, nil
	}
	return nil, ErrUnknownStatus
}

// advance resolves target against the allowed successors of the current state.
func advance(cur OrderState, target Status, next ...OrderState) (OrderState, bool, error) {
	if target == cur.Status() {
		return cur, false, nil
	}
	for _, n := range next {
		if n.Status() == target {
			return n, true, nil
		}
	}
	return nil, false, ErrInvalidStateTransition
}

type pendingState struct{}

func (pendingState) Status() Status { return StatusPending }

func (pendingState) OnPaymentCompleted() (OrderState, bool, error) {
	return processingState{}, true, nil
}

func (pendingState) OnPaymentFailed() (OrderState, bool, error) {
	return cancelledState{}, true, nil
}

func (s pendingState) AdvanceTo(target Status) (OrderState, bool, error) {
	return advance(s, target, processingState{}, cancelledState{})
}

type processingState struct{}

func (processingState) Status() Status { return StatusProcessing }

func (s processingState) OnPaymentCompleted() (OrderState, bool, error) {
	return s, false, nil
}

func (processingState) OnPaymentFailed() (OrderState, bool, error) {
	return cancelledState{}, true, nil
}

func (s processingState) AdvanceTo(target Status) (OrderState, bool, error) {
	return advance(s, target, shippedState{}, cancelledState{})
}

type shippedState struct{}

func (shippedState) Status() Status { return StatusShipped }

func (s shippedState) OnPaymentCompleted() (OrderState, bool, error) {
	return s, false, nil
}

func (shippedState) OnPaymentFailed() (OrderState, bool, error) {
	return nil, false, ErrInvalidStateTransition
}

func (s shippedState) AdvanceTo(target Status) (OrderState, bool, error) {
	return advance(s, target, deliveredState{})
}

type deliveredState struct{}

func (deliveredState) Status() Status { return StatusDelivered }

func (s deliveredState) OnPaymentCompleted() (OrderState, bool, error) {
	return s, false, nil
}

func (deliveredState) OnPaymentFailed() (OrderState, bool, error) {
	return nil, false, ErrInvalidStateTransition
}

func (s deliveredState) AdvanceTo(target Status) (OrderState, bool, error) {
	return advance(s, target, completedState{})
}

type completedState struct{}

func (completedState) Status() Status { return StatusCompleted }

func (s completedState) OnPaymentCompleted() (OrderState, bool, error) {
	return s, false, nil
}

func (completedState) OnPaymentFailed() (OrderState, bool, error) {
	return nil, false, ErrInvalidStateTransition
}

func (s completedState) AdvanceTo(target Status) (OrderState, bool, error) {
	return advance(s, target)
}

type cancelledState struct{}

func (cancelledState) Status() Status { return StatusCancelled }

func (cancelledState) OnPaymentCompleted() (OrderState, bool, error) {
	return nil, false, ErrInvalidStateTransition
}

func (s cancelledState) OnPaymentFailed() (OrderState, bool, error) {
	return s, false, nil
}

func (s cancelledState) AdvanceTo(target Status) (OrderState, bool, error) {
	return advance(s, target)
}

// ApplyPaymentCompleted couples a completed payment onto the order.
func (o *Order) ApplyPaymentCompleted() (bool, error) {
	return o.step(func(s OrderState) (OrderState, bool, error) { return s.OnPaymentCompleted() })
}

// ApplyPaymentFailed couples a failed payment onto the order.
func (o *Order) ApplyPaymentFailed() (bool, error) {
	return o.step(func(s OrderState) (OrderState, bool, error) { return s.OnPaymentFailed() })
}

// TransitionTo performs an administrative status change.
func (o *Order) TransitionTo(target Status) (bool, error) {
	if _, err := stateFor(target); err != nil {
		return false, err
	}
	return o.step(func(s OrderState) (OrderState, bool, error) { return s.AdvanceTo(target) })
}

func (o *Order) step(fn func(OrderState) (OrderState, bool, error)) (bool, error) {
	cur, err := stateFor(o.Status)
	if err != nil {
		return false, err
	}
	next, changed, err := fn(cur)
	if err != nil {
		return false, err
	}
	if changed {
		o.Status = next.Status()
		o.touch()
	}
	return changed, nil
}
