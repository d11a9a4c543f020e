package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/hyperreach/cadence/pkg/assignment"
	"github.com/hyperreach/cadence/pkg/cmd"
	"github.com/hyperreach/cadence/pkg/delivery/storerecorder"
	"github.com/hyperreach/cadence/pkg/delivery/templaterender"
	"github.com/hyperreach/cadence/pkg/log"
	"github.com/hyperreach/cadence/pkg/monitor"
	"github.com/hyperreach/cadence/pkg/processor"
	"github.com/hyperreach/cadence/pkg/retry"
	"github.com/hyperreach/cadence/pkg/scheduler"
)

const defaultPort = 9091

func main() {
	logger := log.WithModule("api")

	command := &cli.Command{
		Name:                  "cadence-api",
		Usage:                 "Schedule and manage campaign executions",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL (memory:// or postgres://...)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:     "campaigns-file",
				Usage:    "Path to the JSON file mapping campaigns to template sequences",
				Required: true,
				Sources:  cli.EnvVars("CAMPAIGNS_FILE"),
			},
			&cli.StringFlag{
				Name:    "templates-path",
				Usage:   "Path to the directory containing template definitions",
				Value:   "./templates",
				Sources: cli.EnvVars("TEMPLATES_PATH"),
			},
			&cli.StringFlag{
				Name:    "redis-addr",
				Usage:   "Redis address for the outbound delivery stream",
				Value:   "localhost:6379",
				Sources: cli.EnvVars("REDIS_ADDR"),
			},
			&cli.StringFlag{
				Name:    "outbound-stream",
				Usage:   "Redis stream outbound messages are enqueued to",
				Sources: cli.EnvVars("OUTBOUND_STREAM"),
			},
			&cli.DurationFlag{
				Name:    "step-interval",
				Usage:   "Delay between consecutive sequence steps",
				Value:   scheduler.DefaultStepInterval,
				Sources: cli.EnvVars("STEP_INTERVAL"),
			},
			&cli.BoolFlag{
				Name:    "suppress-after-failure",
				Usage:   "Cancel remaining sequence steps after a permanent failure",
				Sources: cli.EnvVars("SUPPRESS_AFTER_FAILURE"),
			},
			&cli.DurationFlag{
				Name:    "tick-interval",
				Usage:   "Interval between processing ticks",
				Value:   monitor.DefaultTickInterval,
				Sources: cli.EnvVars("TICK_INTERVAL"),
			},
			&cli.IntFlag{
				Name:    "batch-size",
				Usage:   "Maximum executions processed per tick",
				Value:   monitor.DefaultBatchSize,
				Sources: cli.EnvVars("BATCH_SIZE"),
			},
			&cli.IntFlag{
				Name:    "max-attempts",
				Usage:   "Total processing attempts allowed per execution",
				Value:   retry.DefaultMaxAttempts,
				Sources: cli.EnvVars("MAX_ATTEMPTS"),
			},
			&cli.DurationFlag{
				Name:    "base-delay",
				Usage:   "Retry delay after the first failed attempt",
				Value:   retry.DefaultBaseDelay,
				Sources: cli.EnvVars("BASE_DELAY"),
			},
			&cli.FloatFlag{
				Name:    "backoff-multiplier",
				Usage:   "Retry delay multiplier per additional attempt",
				Value:   retry.DefaultBackoffMultiplier,
				Sources: cli.EnvVars("BACKOFF_MULTIPLIER"),
			},
			&cli.FloatFlag{
				Name:    "retry-jitter",
				Usage:   "Fraction (0..1) of the retry delay randomized in both directions",
				Sources: cli.EnvVars("RETRY_JITTER"),
			},
			&cli.DurationFlag{
				Name:    "call-timeout",
				Usage:   "Per-call timeout for render and send",
				Value:   processor.DefaultCallTimeout,
				Sources: cli.EnvVars("CALL_TIMEOUT"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger.InfoContext(ctx, "Initializing Cadence API")

			st, err := cmd.NewStore(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := st.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close store", "error", err)
				}
			}()

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			resolver, err := assignment.NewFileResolver(command.String("campaigns-file"))
			if err != nil {
				return err
			}

			sender, err := cmd.NewSender(ctx, logger, command.String("redis-addr"), command.String("outbound-stream"))
			if err != nil {
				return err
			}

			sched := scheduler.NewScheduler(scheduler.Config{
				StepInterval:         command.Duration("step-interval"),
				SuppressAfterFailure: command.Bool("suppress-after-failure"),
			}, st, eventBus, logger)

			policy := retry.NewPolicy(st, logger)
			policy.MaxAttempts = command.Int("max-attempts")
			policy.BaseDelay = command.Duration("base-delay")
			policy.BackoffMultiplier = command.Float("backoff-multiplier")
			policy.Jitter = command.Float("retry-jitter")

			renderer := templaterender.NewRenderer(command.String("templates-path"), nil, logger)
			recorder := storerecorder.NewRecorder(st)

			proc := processor.NewProcessor(st, policy, sched, renderer, sender, recorder, eventBus, nil, logger)
			proc.SetCallTimeout(command.Duration("call-timeout"))

			assigner := assignment.NewAssigner(resolver, sched, st, logger)

			mon := monitor.NewMonitor(st, proc, assigner, logger)
			mon.SetTickInterval(command.Duration("tick-interval"))
			mon.SetBatchSize(command.Int("batch-size"))

			mon.Start(ctx)
			defer mon.Stop(ctx)

			api := NewAPI(logger, st, sched, mon, assigner)

			if err := api.Start(command.Int("port")); err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)
			}

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
