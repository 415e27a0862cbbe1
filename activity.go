package registration

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates registration lifecycle events.
type EventType string

const (
	EventAccountRegistered EventType = "registration.account.registered"
	EventAccountVerified   EventType = "registration.account.verified"
	EventAccountActivated  EventType = "registration.account.activated"
	EventAccountModerated  EventType = "registration.account.moderated"
)

// ActorRef identifies who/what triggered a transition.
type ActorRef struct {
	ID   string
	Type string
}

// LifecycleEvent describes a committed registration transition.
type LifecycleEvent struct {
	Type       EventType
	AccountID  uuid.UUID
	Account    *Account
	Actor      ActorRef
	Decision   ModerationStatus
	Metadata   map[string]any
	OccurredAt time.Time
}

// EventSink consumes lifecycle events. Sinks run after commit and their
// errors are logged, never returned to the caller.
type EventSink interface {
	Record(ctx context.Context, event LifecycleEvent) error
}

// EventSinkFunc adapts a function to the EventSink interface.
type EventSinkFunc func(ctx context.Context, event LifecycleEvent) error

// Record implements EventSink.
func (f EventSinkFunc) Record(ctx context.Context, event LifecycleEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

// EventSinks fans an event out to every sink in order.
type EventSinks []EventSink

// Record implements EventSink. All sinks run even if one fails.
func (s EventSinks) Record(ctx context.Context, event LifecycleEvent) error {
	var errs []error
	for _, sink := range s {
		if sink == nil {
			continue
		}
		if err := sink.Record(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
