package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ClawGameArena/ClawGame/internal/pkg/agent"
	"github.com/ClawGameArena/ClawGame/internal/pkg/api"
	"github.com/ClawGameArena/ClawGame/internal/pkg/commitment"
	"github.com/ClawGameArena/ClawGame/internal/pkg/common"
	"github.com/ClawGameArena/ClawGame/internal/pkg/notify"
	"github.com/ClawGameArena/ClawGame/internal/pkg/payment"
	"github.com/ClawGameArena/ClawGame/internal/pkg/scheduler"
	"github.com/ClawGameArena/ClawGame/internal/pkg/scorer"
	"github.com/ClawGameArena/ClawGame/internal/pkg/store"
	"github.com/ClawGameArena/ClawGame/internal/pkg/tournament"
	"github.com/ClawGameArena/ClawGame/internal/pkg/types"
	"github.com/samber/do/v2"
	"golang.org/x/sync/errgroup"

	"github.com/urfave/cli/v3"
)

const shutdownTimeout = 10 * time.Second

type ClawGameService struct {
	DatabaseService *common.DatabaseService `do:""`
	EchoService     *common.EchoService     `do:""`
	Sink            notify.Sink             `do:""`

	APIService     *api.APIService           `do:""`
	MonitorService *scheduler.MonitorService `do:""`
	ScorerService  *scorer.ScorerService     `do:""`
	EngineService  *tournament.EngineService `do:""`
}

func runServer(ctx context.Context, cmd *cli.Command) error {
	i := do.New()

	do.ProvideNamedValue(i, "port", cmd.Int("port"))
	do.ProvideNamedValue(i, "data-dir", cmd.String("data-dir"))
	do.ProvideNamedValue(i, "log-level", cmd.String("log-level"))
	do.ProvideNamedValue(i, "rate-limit", cmd.Int("rate-limit"))
	do.ProvideNamedValue(i, "admin-token", cmd.String("admin-token"))

	do.ProvideNamedValue(i, "capacity", cmd.Int("capacity"))
	do.ProvideNamedValue(i, "max-rounds", cmd.Int("max-rounds"))
	do.ProvideNamedValue(i, "commit-duration", cmd.Duration("commit-duration"))
	do.ProvideNamedValue(i, "reveal-duration", cmd.Duration("reveal-duration"))
	do.ProvideNamedValue(i, "resolution-pause", cmd.Duration("resolution-pause"))
	do.ProvideNamedValue(i, "cancel-after", cmd.Duration("cancel-after"))

	do.ProvideNamedValue(i, "active-tick", cmd.Duration("active-tick"))
	do.ProvideNamedValue(i, "idle-tick", cmd.Duration("idle-tick"))
	do.ProvideNamedValue(i, "auto-open", cmd.Bool("auto-open"))
	do.ProvideNamedValue(i, "bronze-fee", cmd.String("bronze-fee"))
	do.ProvideNamedValue(i, "silver-fee", cmd.String("silver-fee"))
	do.ProvideNamedValue(i, "gold-fee", cmd.String("gold-fee"))

	do.ProvideNamedValue(i, "payment-gateway-url", cmd.String("payment-gateway-url"))
	do.ProvideNamedValue(i, "payment-timeout", cmd.Duration("payment-timeout"))

	do.ProvideNamedValue(i, "valkey-addr", cmd.String("valkey-addr"))
	do.ProvideNamedValue(i, "valkey-channel", cmd.String("valkey-channel"))

	eventChan := make(chan notify.Event, 1000)
	var eventSource <-chan notify.Event = eventChan
	var eventSink chan<- notify.Event = eventChan

	do.ProvideNamedValue(i, "event-source", eventSource)
	do.ProvideNamedValue(i, "event-sink", eventSink)

	do.Provide(i, common.NewLogService)
	do.Provide(i, common.NewDatabaseService)
	do.Provide(i, common.NewEchoService)

	do.Provide(i, store.NewTournamentStoreService)
	do.Provide(i, agent.NewRegistryService)
	do.Provide(i, payment.NewCollaboratorService)
	do.Provide(i, notify.NewSinkService)

	do.Provide(i, tournament.NewEngineService)
	do.Provide(i, scheduler.NewMonitorService)
	do.Provide(i, scorer.NewScorerService)
	do.Provide(i, api.NewAPIService)

	do.Provide(i, do.InvokeStruct[ClawGameService])

	clawGameService, err := do.Invoke[ClawGameService](i)
	if err != nil {
		return fmt.Errorf("failed to create services: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(clawGameService.EchoService.Start)
	g.Go(func() error { return clawGameService.MonitorService.Run(gctx) })
	g.Go(func() error { return clawGameService.ScorerService.Run(gctx) })

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		return clawGameService.EchoService.Shutdown(shutdownCtx)
	})

	err = g.Wait()

	if s, ok := clawGameService.Sink.(interface{ Shutdown() }); ok {
		s.Shutdown()
	}

	return errors.Join(err, clawGameService.DatabaseService.Shutdown())
}

func runAudit(_ context.Context, cmd *cli.Command) error {
	databaseService, err := common.OpenDatabase(cmd.String("data-dir"))
	if err != nil {
		return err
	}

	//nolint:errcheck
	defer databaseService.Shutdown()

	tournamentStore := &store.TournamentStore{DatabaseService: databaseService}

	id := types.TournamentID(cmd.Uint64("tournament"))

	records, err := tournamentStore.Audit(id)
	if err != nil {
		return fmt.Errorf("failed to load audit log: %w", err)
	}

	if len(records) == 0 {
		return fmt.Errorf("%w: no audit records for tournament %d", tournament.ErrTournamentNotFound, id)
	}

	var errs []error

	for _, rec := range records {
		err := tournament.VerifyAudit(rec)
		if err != nil {
			errs = append(errs, err)
			fmt.Printf("round %d: FAILED %v\n", rec.Round, err)

			continue
		}

		fmt.Printf("round %d: ok secret=%d survivors=%d eliminated=%d\n",
			rec.Round, rec.Secret, len(rec.Survivors), len(rec.Eliminated))
	}

	return errors.Join(errs...)
}

func runHash(_ context.Context, cmd *cli.Command) error {
	value := cmd.Int("value")

	err := commitment.ValidateValue(value)
	if err != nil {
		return err
	}

	salt, err := commitment.ParseSalt(cmd.String("salt"))
	if err != nil {
		return err
	}

	fmt.Println(commitment.ComputeHash(value, salt).Hex())

	return nil
}

const auditHelp = "The secret of a round is the whole 256-bit keccak256 digest of the sorted\n" +
	"revealed salts, taken mod 1000 plus 1. Tools that reduce only the first 4 bytes\n" +
	"of the digest derive different secrets."

const hashHelp = "Prints keccak256(uint16(value) || salt). Round secrets use the whole 256-bit\n" +
	"digest of the revealed salts mod 1000 plus 1, not its first 4 bytes."

func dataDirFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "data-dir",
		Value:   "./clawgame/data",
		Sources: cli.EnvVars("CLAWGAME_DATA_DIR"),
	}
}

func main() {
	//nolint:exhaustruct
	cmd := &cli.Command{
		Name:  "clawgame",
		Usage: "commit-reveal elimination tournaments for autonomous agents",
		Commands: []*cli.Command{
			{
				Name: "server",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "port",
						Value:   3000, //nolint:mnd
						Sources: cli.EnvVars("CLAWGAME_PORT"),
					},
					dataDirFlag(),
					&cli.StringFlag{
						Name:    "log-level",
						Value:   "info",
						Sources: cli.EnvVars("CLAWGAME_LOG_LEVEL"),
					},
					&cli.IntFlag{
						Name:    "rate-limit",
						Usage:   "requests per minute per client, 0 disables",
						Value:   30, //nolint:mnd
						Sources: cli.EnvVars("CLAWGAME_RATE_LIMIT"),
					},
					&cli.StringFlag{
						Name:    "admin-token",
						Sources: cli.EnvVars("CLAWGAME_ADMIN_TOKEN"),
					},
					&cli.IntFlag{
						Name:    "capacity",
						Usage:   "players per tournament, 2 to 100",
						Value:   types.DefaultCapacity,
						Sources: cli.EnvVars("CLAWGAME_CAPACITY"),
					},
					&cli.IntFlag{
						Name:    "max-rounds",
						Value:   types.MaxRounds,
						Sources: cli.EnvVars("CLAWGAME_MAX_ROUNDS"),
					},
					&cli.DurationFlag{
						Name:    "commit-duration",
						Value:   5 * time.Minute, //nolint:mnd
						Sources: cli.EnvVars("CLAWGAME_COMMIT_DURATION"),
					},
					&cli.DurationFlag{
						Name:    "reveal-duration",
						Value:   5 * time.Minute, //nolint:mnd
						Sources: cli.EnvVars("CLAWGAME_REVEAL_DURATION"),
					},
					&cli.DurationFlag{
						Name:    "resolution-pause",
						Value:   30 * time.Second, //nolint:mnd
						Sources: cli.EnvVars("CLAWGAME_RESOLUTION_PAUSE"),
					},
					&cli.DurationFlag{
						Name:    "cancel-after",
						Value:   7 * 24 * time.Hour, //nolint:mnd
						Sources: cli.EnvVars("CLAWGAME_CANCEL_AFTER"),
					},
					&cli.DurationFlag{
						Name:    "active-tick",
						Value:   10 * time.Second, //nolint:mnd
						Sources: cli.EnvVars("CLAWGAME_ACTIVE_TICK"),
					},
					&cli.DurationFlag{
						Name:    "idle-tick",
						Value:   time.Minute,
						Sources: cli.EnvVars("CLAWGAME_IDLE_TICK"),
					},
					&cli.BoolFlag{
						Name:    "auto-open",
						Value:   true,
						Sources: cli.EnvVars("CLAWGAME_AUTO_OPEN"),
					},
					&cli.StringFlag{
						Name:    "bronze-fee",
						Usage:   "entry fee in wei",
						Value:   "1000000000000000",
						Sources: cli.EnvVars("CLAWGAME_BRONZE_FEE"),
					},
					&cli.StringFlag{
						Name:    "silver-fee",
						Usage:   "entry fee in wei",
						Value:   "10000000000000000",
						Sources: cli.EnvVars("CLAWGAME_SILVER_FEE"),
					},
					&cli.StringFlag{
						Name:    "gold-fee",
						Usage:   "entry fee in wei",
						Value:   "100000000000000000",
						Sources: cli.EnvVars("CLAWGAME_GOLD_FEE"),
					},
					&cli.StringFlag{
						Name:    "payment-gateway-url",
						Usage:   "payment gateway base url, empty uses the in-process ledger",
						Sources: cli.EnvVars("CLAWGAME_PAYMENT_GATEWAY_URL"),
					},
					&cli.DurationFlag{
						Name:    "payment-timeout",
						Value:   15 * time.Second, //nolint:mnd
						Sources: cli.EnvVars("CLAWGAME_PAYMENT_TIMEOUT"),
					},
					&cli.StringFlag{
						Name:    "valkey-addr",
						Usage:   "valkey address for event fan-out, empty disables",
						Sources: cli.EnvVars("CLAWGAME_VALKEY_ADDR"),
					},
					&cli.StringFlag{
						Name:    "valkey-channel",
						Value:   "clawgame:events",
						Sources: cli.EnvVars("CLAWGAME_VALKEY_CHANNEL"),
					},
				},
				Action: runServer,
			},
			{
				Name:        "audit",
				Usage:       "re-verify the recorded rounds of a tournament",
				Description: auditHelp,
				Flags: []cli.Flag{
					dataDirFlag(),
					&cli.Uint64Flag{
						Name:     "tournament",
						Required: true,
					},
				},
				Action: runAudit,
			},
			{
				Name:        "hash",
				Usage:       "compute the commitment hash of a bid",
				Description: hashHelp,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:     "value",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "salt",
						Usage:    "hex encoded, at least 16 bytes",
						Required: true,
					},
				},
				Action: runHash,
			},
		},
		DefaultCommand: "server",
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		log.Fatal(err)
	}
}
