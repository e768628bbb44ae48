package ledger

import (
	"context"
	"fmt"

	"github.com/warp/finance-engine/logging"
)

// =============================================================================
// POSTING EVENTS - Fire-and-forget notifications after commit
// =============================================================================

type EventType string

const (
	EventCreated EventType = "created"
	EventUpdated EventType = "updated"
	EventDeleted EventType = "deleted"
)

// PostingEvent describes a committed change to an entry.
//
// Created: Entry set, Previous nil.
// Updated: Entry and Previous set.
// Deleted: Entry nil, Previous set.
type PostingEvent struct {
	Type     EventType
	Entry    *Entry
	Previous *Entry
}

// Owner returns the owner of the affected entry.
func (e PostingEvent) Owner() OwnerID {
	if e.Entry != nil {
		return e.Entry.OwnerID
	}
	if e.Previous != nil {
		return e.Previous.OwnerID
	}
	return ""
}

// Hook observes committed postings. A hook cannot veto or roll back a
// change; its error is only logged.
type Hook interface {
	OnPosting(ctx context.Context, event PostingEvent) error
}

// HookFunc adapts a function to Hook.
type HookFunc func(ctx context.Context, event PostingEvent) error

func (f HookFunc) OnPosting(ctx context.Context, event PostingEvent) error { return f(ctx, event) }

// notify runs every hook, recovering panics.
func notify(ctx context.Context, log logging.Logger, hooks []Hook, event PostingEvent) {
	for _, h := range hooks {
		if err := callHook(ctx, h, event); err != nil {
			log.Warn(ctx, "posting hook failed", "event", string(event.Type), "owner", string(event.Owner()), "error", err)
		}
	}
}

func callHook(ctx context.Context, h Hook, event PostingEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("hook panic: %v", r)
		}
	}()
	return h.OnPosting(ctx, event)
}
