// Package main provides the Cadence API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/hyperreach/cadence/pkg/assignment"
	"github.com/hyperreach/cadence/pkg/monitor"
	"github.com/hyperreach/cadence/pkg/scheduler"
	"github.com/hyperreach/cadence/pkg/store"
	"github.com/hyperreach/cadence/pkg/web"
)

type API struct {
	logger    *slog.Logger
	store     store.Store
	scheduler *scheduler.Scheduler
	monitor   *monitor.Monitor
	assigner  *assignment.Assigner
	validate  *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	st store.Store,
	sched *scheduler.Scheduler,
	mon *monitor.Monitor,
	assigner *assignment.Assigner,
) *API {
	return &API{
		logger:    logger,
		store:     st,
		scheduler: sched,
		monitor:   mon,
		assigner:  assigner,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.store, a.scheduler, a.monitor, a.assigner, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Cadence API")
	})

	e := app.Group("/executions")
	e.Post("/", handlers.ScheduleExecution)
	e.Post("/cancel", handlers.BulkCancel)
	e.Get("/:id", handlers.GetExecution)
	e.Delete("/:id", handlers.CancelExecution)
	e.Post("/:id/process", handlers.ForceProcess)

	app.Post("/sequences", handlers.ScheduleSequence)
	app.Post("/enroll", handlers.Enroll)

	r := app.Group("/recurrences")
	r.Post("/", handlers.CreateRecurrence)
	r.Delete("/:id", handlers.DeleteRecurrence)

	m := app.Group("/monitor")
	m.Post("/start", handlers.StartMonitor)
	m.Post("/stop", handlers.StopMonitor)

	app.Get("/stats", handlers.Stats)
	app.Get("/health", handlers.Health)
	app.Get("/report", handlers.Report)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}
