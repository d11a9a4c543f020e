// Package cmd provides shared construction helpers for the cadence binaries.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hyperreach/cadence/pkg/store"
	"github.com/hyperreach/cadence/pkg/store/memory"
	"github.com/hyperreach/cadence/pkg/store/postgresql"
)

// NewStore creates the store implementation selected by the database URL
// scheme. memory:// is the lightweight/test mode; postgres:// is the
// durable production mode.
func NewStore(ctx context.Context, logger *slog.Logger, databaseURL string) (store.Store, error) {
	switch parseScheme(databaseURL) {
	case "memory", "":
		logger.WarnContext(ctx, "Using in-memory store: execution state is lost on restart")

		return memory.NewStore(), nil
	case "postgres", "postgresql":
		return postgresql.NewStore(ctx, logger, databaseURL)
	default:
		return nil, fmt.Errorf("unsupported store scheme in %q (supported: memory, postgres)", databaseURL)
	}
}

func parseScheme(databaseURL string) string {
	parts := strings.SplitN(databaseURL, "://", 2)
	if len(parts) < 2 {
		return ""
	}

	return parts[0]
}
