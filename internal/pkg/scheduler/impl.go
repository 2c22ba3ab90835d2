package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ClawGameArena/ClawGame/internal/pkg/common"
	"github.com/ClawGameArena/ClawGame/internal/pkg/tournament"
	"github.com/ClawGameArena/ClawGame/internal/pkg/types"
	"github.com/decred/slog"
	"github.com/holiman/uint256"
	"github.com/samber/do/v2"
)

const MinInterval = time.Second

var ErrInvalidFee = errors.New("invalid entry fee")

// MonitorService drives every tournament's deadlines from a timer and keeps
// one open tournament per arena when auto-open is on.
type MonitorService struct {
	Engine *tournament.EngineService

	ActiveTick time.Duration
	IdleTick   time.Duration

	AutoOpen bool
	Fees     map[types.Arena]*uint256.Int

	Now func() time.Time
	Log slog.Logger
}

func NewMonitorService(i do.Injector) (*MonitorService, error) {
	engine := do.MustInvoke[*tournament.EngineService](i)

	fees := map[types.Arena]*uint256.Int{}

	for _, arena := range types.Arenas {
		name := strings.ToLower(arena.String()) + "-fee"
		raw := do.MustInvokeNamed[string](i, name)

		fee, err := uint256.FromDecimal(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s=%q: %w", ErrInvalidFee, name, raw, err)
		}

		fees[arena] = fee
	}

	return &MonitorService{
		Engine:     engine,
		ActiveTick: do.MustInvokeNamed[time.Duration](i, "active-tick"),
		IdleTick:   do.MustInvokeNamed[time.Duration](i, "idle-tick"),
		AutoOpen:   do.MustInvokeNamed[bool](i, "auto-open"),
		Fees:       fees,
		Now:        time.Now,
		Log:        do.MustInvoke[*common.LogService](i).Logger("MNTR"),
	}, nil
}

// Interval is the active tick while any tournament is in play and the idle
// tick otherwise, shortened when a deadline falls due sooner.
func (m *MonitorService) Interval() time.Duration {
	interval := m.IdleTick
	if m.Engine.InPlay() {
		interval = m.ActiveTick
	}

	if next, ok := m.Engine.NextDeadline(); ok {
		if until := next.Sub(m.Now()); until < interval {
			interval = until
		}
	}

	return max(interval, MinInterval)
}

// EnsureOpen creates a tournament for every arena that has none open.
func (m *MonitorService) EnsureOpen(ctx context.Context) error {
	var errs []error

	for _, arena := range types.Arenas {
		open := m.Engine.List(tournament.ListFilter{
			Arena:    &arena,
			Statuses: []tournament.Status{tournament.StatusOpen},
		})
		if len(open) > 0 {
			continue
		}

		_, err := m.Engine.Create(ctx, arena, m.Fees[arena])
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to open %s tournament: %w", arena, err))
		}
	}

	return errors.Join(errs...)
}

func (m *MonitorService) Tick(ctx context.Context) error {
	err := m.Engine.CheckAll(ctx, m.Now())

	if m.AutoOpen {
		err = errors.Join(err, m.EnsureOpen(ctx))
	}

	return err
}

// Run ticks until ctx is done. Tick errors are logged; they belong to single
// tournaments and never stop the loop.
func (m *MonitorService) Run(ctx context.Context) error {
	m.tick(ctx)

	timer := time.NewTimer(m.Interval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			m.tick(ctx)
			timer.Reset(m.Interval())
		}
	}
}

func (m *MonitorService) tick(ctx context.Context) {
	err := m.Tick(ctx)
	if err != nil {
		m.Log.Errorf("Tick failed: %v", err)
	}
}
