package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/hidrobio/price-monitor/internal/catalog"
	"github.com/hidrobio/price-monitor/internal/pipeline"
	"github.com/hidrobio/price-monitor/internal/store"
	"github.com/hidrobio/price-monitor/pkg/anthropic"
)

// runEnv bundles the dependencies every run-capable command needs.
type runEnv struct {
	Catalog *catalog.Catalog
	Store   store.Store
	Runner  *pipeline.Runner
}

func (e *runEnv) Close() {
	if err := e.Store.Close(); err != nil {
		zap.L().Warn("close store", zap.Error(err))
	}
}

// initEnv loads the catalog, opens and migrates the store, and wires the
// pipeline runner. The Anthropic client is optional: without an API key the
// reasoner and vision sources are disabled and the run proceeds on computed
// recommendations alone.
func initEnv(ctx context.Context) (*runEnv, error) {
	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL, &store.PoolConfig{
		MaxConns: cfg.Store.MaxConns,
		MinConns: cfg.Store.MinConns,
	})
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	var client anthropic.Client
	if cfg.Anthropic.Key != "" {
		client = anthropic.NewClient(cfg.Anthropic.Key)
	} else {
		zap.L().Warn("no Anthropic API key configured; reasoner and vision sources disabled")
	}

	return &runEnv{
		Catalog: cat,
		Store:   st,
		Runner:  pipeline.New(cfg, cat, st, client),
	}, nil
}
