package retry

import (
	"errors"
	"fmt"
)

// ErrIllegalTransition is returned for a phase change not in the table.
var ErrIllegalTransition = errors.New("illegal phase transition")

// Phase is the delivery state of the slot at the tail of the queue.
type Phase int

const (
	Pending Phase = iota
	Attempting
	Delivered
	RetryScheduled
	DeadLettered
)

func (p Phase) String() string {
	switch p {
	case Pending:
		return "PENDING"
	case Attempting:
		return "ATTEMPTING"
	case Delivered:
		return "DELIVERED"
	case RetryScheduled:
		return "RETRY_SCHEDULED"
	case DeadLettered:
		return "DEAD_LETTERED"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Terminal reports whether the slot leaves the queue in this phase.
func (p Phase) Terminal() bool {
	return p == Delivered || p == DeadLettered
}

// transitions lists the phases reachable from each phase. Terminal phases
// lead back to Pending when the engine picks up the next slot.
var transitions = map[Phase][]Phase{
	Pending:        {Attempting},
	Attempting:     {Delivered, RetryScheduled, DeadLettered},
	RetryScheduled: {Attempting},
	Delivered:      {Pending},
	DeadLettered:   {Pending},
}

// Next validates the transition from p to to.
func (p Phase) Next(to Phase) (Phase, error) {
	for _, allowed := range transitions[p] {
		if allowed == to {
			return to, nil
		}
	}
	return p, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, p, to)
}
