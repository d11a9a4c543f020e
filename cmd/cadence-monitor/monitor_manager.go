// Package main provides the standalone monitor process.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hyperreach/cadence/pkg/monitor"
)

type MonitorManager struct {
	id      string
	monitor *monitor.Monitor
	logger  *slog.Logger
}

func NewMonitorManager(id string, mon *monitor.Monitor, logger *slog.Logger) *MonitorManager {
	return &MonitorManager{
		id:      id,
		monitor: mon,
		logger:  logger.With("module", "cadence-monitor", "monitor_id", id),
	}
}

// Start runs the processing loop until SIGINT or SIGTERM.
func (m *MonitorManager) Start(ctx context.Context) error {
	m.logger.InfoContext(ctx, "Starting monitor manager", "monitor_id", m.id)

	m.monitor.Start(ctx)

	m.logger.InfoContext(ctx, "Monitor started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	m.logger.InfoContext(ctx, "Shutting down monitor...")

	m.monitor.Stop(ctx)

	return nil
}
