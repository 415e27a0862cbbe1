package registration_test

import (
	"context"
	"errors"
	"testing"

	registration "github.com/goliatone/go-registration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventSinksFanOut(t *testing.T) {
	first := &eventRecorder{err: errors.New("first failed")}
	second := &eventRecorder{}

	var fromFunc []registration.EventType
	sinks := registration.EventSinks{
		first,
		nil,
		second,
		registration.EventSinkFunc(func(_ context.Context, e registration.LifecycleEvent) error {
			fromFunc = append(fromFunc, e.Type)
			return nil
		}),
	}

	err := sinks.Record(context.Background(), registration.LifecycleEvent{Type: registration.EventAccountActivated})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "first failed")

	assert.Equal(t, []registration.EventType{registration.EventAccountActivated}, first.types())
	assert.Equal(t, []registration.EventType{registration.EventAccountActivated}, second.types())
	assert.Equal(t, []registration.EventType{registration.EventAccountActivated}, fromFunc)
}

func TestNilEventSinkFunc(t *testing.T) {
	var f registration.EventSinkFunc
	assert.NoError(t, f.Record(context.Background(), registration.LifecycleEvent{}))
}
