package quota

import (
	"context"
	"errors"
	"sync"
)

// ErrTicketSpent is returned when a ticket is committed or rolled back a second time.
var ErrTicketSpent = errors.New("quota ticket already settled")

type TicketState int

const (
	TicketReserved TicketState = iota
	TicketCommitted
	TicketRolledBack
)

func (s TicketState) String() string {
	switch s {
	case TicketCommitted:
		return "committed"
	case TicketRolledBack:
		return "rolledback"
	default:
		return "reserved"
	}
}

// Ticket is one reserved attempt. It settles exactly once, either by Commit after a
// successful delivery or by Rollback as the compensating action.
type Ticket struct {
	mu     sync.Mutex
	ledger *Ledger
	userID int64
	state  TicketState
}

func (t *Ticket) State() TicketState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Commit marks the reservation as a genuine spend. The counter is not touched.
func (t *Ticket) Commit() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != TicketReserved {
		return ErrTicketSpent
	}
	t.state = TicketCommitted
	return nil
}

// Rollback returns the reserved attempt to the ledger.
func (t *Ticket) Rollback(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != TicketReserved {
		return ErrTicketSpent
	}
	t.state = TicketRolledBack
	return t.ledger.Rollback(ctx, t.userID)
}
