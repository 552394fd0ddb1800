package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samely/samely/internal/activity"
	"github.com/samely/samely/internal/assignment"
	"github.com/samely/samely/internal/config"
	"github.com/samely/samely/internal/db"
	"github.com/samely/samely/internal/memstore"
	"github.com/samely/samely/internal/team"
	"github.com/samely/samely/internal/user"
)

// backend bundles the repositories of one storage driver.
type backend struct {
	users       user.Repository
	teams       team.Repository
	assignments assignment.Repository
	activity    activity.Repository
	tx          db.TxRunner
	pool        *db.DB // nil for the memory driver
}

func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	switch cfg.Database.Driver {
	case config.DriverMemory:
		slog.Warn("using in-memory storage; data is lost on exit")
		st := memstore.New()
		return &backend{
			users:       st.Users(),
			teams:       st.Teams(),
			assignments: st.Assignments(),
			activity:    st.Activity(),
			tx:          st,
		}, nil
	case config.DriverPostgres:
		pool, err := db.Open(ctx, cfg.Database.URL, cfg.Database.MaxConns)
		if err != nil {
			return nil, err
		}
		slog.Info("connected to database")
		return &backend{
			users:       user.NewStore(pool),
			teams:       team.NewStore(pool),
			assignments: assignment.NewStore(pool),
			activity:    activity.NewStore(pool),
			tx:          pool,
			pool:        pool,
		}, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

func (b *backend) Close() {
	if b.pool != nil {
		b.pool.Close()
	}
}
