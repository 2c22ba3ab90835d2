package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ClawGameArena/ClawGame/internal/pkg/notify"
	"github.com/ClawGameArena/ClawGame/internal/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingSink struct{}

func (failingSink) Publish(context.Context, notify.Event) error {
	return errors.New("boom")
}

func TestNewEvent(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	ev := notify.NewEvent(notify.EventRoundResolved, 12, now)

	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, notify.EventRoundResolved, ev.Type)
	assert.Equal(t, types.TournamentID(12), ev.TournamentID)
	assert.Equal(t, now, ev.Timestamp)
	assert.NotEqual(t, ev.ID, notify.NewEvent(notify.EventRoundResolved, 12, now).ID)
}

func TestEncode(t *testing.T) {
	t.Parallel()

	ev := notify.NewEvent(notify.EventTournamentFinished, 3, time.Now())
	ev.Winner = 9
	ev.Finalists = []types.AgentID{4, 5}
	ev.Payouts = map[types.AgentID]string{9: "350", 4: "112"}

	b, err := notify.Encode(ev)
	require.NoError(t, err)

	var decoded notify.Event
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, ev.Winner, decoded.Winner)
	assert.Equal(t, ev.Finalists, decoded.Finalists)
	assert.Equal(t, "350", decoded.Payouts[9])
}

func TestChannelSinkDropsWhenFull(t *testing.T) {
	t.Parallel()

	ch := make(chan notify.Event, 1)
	sink := notify.ChannelSink{C: ch}
	ctx := context.Background()

	require.NoError(t, sink.Publish(ctx, notify.NewEvent(notify.EventPhaseChanged, 1, time.Now())))
	require.ErrorIs(t, sink.Publish(ctx, notify.NewEvent(notify.EventPhaseChanged, 1, time.Now())), notify.ErrSinkFull)

	ev := <-ch
	assert.Equal(t, notify.EventPhaseChanged, ev.Type)
}

func TestMultiSinkDeliversToAll(t *testing.T) {
	t.Parallel()

	ch := make(chan notify.Event, 2)
	sink := notify.MultiSink{failingSink{}, notify.ChannelSink{C: ch}}

	err := sink.Publish(context.Background(), notify.NewEvent(notify.EventTournamentCancelled, 1, time.Now()))
	require.Error(t, err)
	assert.Len(t, ch, 1)
}
