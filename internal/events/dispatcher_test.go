package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcherContinuesAfterHandlerError(t *testing.T) {
	d := NewInMemoryDispatcher(nil)
	var seen []string

	d.Subscribe(EventTicketVoted, func(ctx context.Context, e Event) error {
		seen = append(seen, "first")
		return errors.New("webhook down")
	})
	d.Subscribe(EventTicketVoted, func(ctx context.Context, e Event) error {
		seen = append(seen, "second")
		return nil
	})
	d.Subscribe(EventTicketCreated, func(ctx context.Context, e Event) error {
		seen = append(seen, "created")
		return nil
	})

	err := d.Publish(context.Background(), New(EventTicketVoted, "1001", time.Now(), TicketVotedPayload{Votes: 1}))
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, seen)
}

func TestNewAssignsIDs(t *testing.T) {
	a := New(EventTicketCreated, "1001", time.Now(), nil)
	b := New(EventTicketCreated, "1001", time.Now(), nil)
	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, "1001", a.TicketID)
}
