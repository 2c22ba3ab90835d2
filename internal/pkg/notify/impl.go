package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ClawGameArena/ClawGame/internal/pkg/types"
	"github.com/google/uuid"
	"github.com/samber/do/v2"
	"github.com/valkey-io/valkey-go"
)

var ErrSinkFull = errors.New("event channel is full")

func NewEvent(eventType EventType, tournamentID types.TournamentID, now time.Time) Event {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}

	return Event{
		ID:           id.String(),
		Type:         eventType,
		TournamentID: tournamentID,
		Timestamp:    now.UTC(),
	}
}

func Encode(ev Event) ([]byte, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event %s: %w", ev.ID, err)
	}

	return b, nil
}

// ChannelSink hands events to in-process consumers. Publish never blocks;
// when the buffer is full the event is dropped and ErrSinkFull returned.
type ChannelSink struct {
	C chan<- Event
}

func (s ChannelSink) Publish(_ context.Context, ev Event) error {
	select {
	case s.C <- ev:
		return nil
	default:
		return fmt.Errorf("%w: dropped %s %s", ErrSinkFull, ev.Type, ev.ID)
	}
}

// ValkeySink publishes JSON encoded events on a pub/sub channel for the API
// and bot processes.
type ValkeySink struct {
	Client  valkey.Client
	Channel string
}

func (s ValkeySink) Publish(ctx context.Context, ev Event) error {
	payload, err := Encode(ev)
	if err != nil {
		return err
	}

	cmd := s.Client.B().Publish().Channel(s.Channel).Message(string(payload)).Build()

	err = s.Client.Do(ctx, cmd).Error()
	if err != nil {
		return fmt.Errorf("failed to publish event %s: %w", ev.ID, err)
	}

	return nil
}

func (s ValkeySink) Shutdown() {
	s.Client.Close()
}

type MultiSink []Sink

func (m MultiSink) Publish(ctx context.Context, ev Event) error {
	var errs []error

	for _, sink := range m {
		err := sink.Publish(ctx, ev)
		if err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (m MultiSink) Shutdown() {
	for _, sink := range m {
		if s, ok := sink.(interface{ Shutdown() }); ok {
			s.Shutdown()
		}
	}
}

// NewSinkService fans events out to the in-process channel and, when an
// address is configured, to Valkey.
func NewSinkService(i do.Injector) (Sink, error) {
	eventSink := do.MustInvokeNamed[chan<- Event](i, "event-sink")
	valkeyAddr := do.MustInvokeNamed[string](i, "valkey-addr")
	valkeyChannel := do.MustInvokeNamed[string](i, "valkey-channel")

	sinks := MultiSink{ChannelSink{C: eventSink}}

	if valkeyAddr != "" {
		client, err := valkey.NewClient(valkey.ClientOption{
			InitAddress: []string{valkeyAddr},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to valkey: %w", err)
		}

		sinks = append(sinks, ValkeySink{Client: client, Channel: valkeyChannel})
	}

	return sinks, nil
}
