package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/agenticlead/agenticlead/internal/extract"
	"github.com/agenticlead/agenticlead/internal/pipeline"
	"github.com/agenticlead/agenticlead/internal/store"
	"github.com/agenticlead/agenticlead/pkg/llm"
)

// env bundles the wired runtime dependencies for a command invocation.
type env struct {
	store     store.Store
	extractor *extract.Extractor
	driver    *pipeline.Driver
}

func (e *env) Close() {
	if err := e.store.Close(); err != nil {
		zap.L().Warn("close store", zap.Error(err))
	}
}

// openStore selects the backend from config and runs migrations.
func openStore(ctx context.Context) (store.Store, error) {
	var (
		s   store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "postgres":
		s, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	case "sqlite", "":
		s, err = store.NewSQLite(cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// initEnv wires the store, rate-limited extraction client and pipeline.
func initEnv(ctx context.Context) (*env, error) {
	s, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	client := llm.NewClient(cfg.LLM.Key)
	if cfg.LLM.RatePerSec > 0 {
		client = llm.RateLimited(client, cfg.LLM.RatePerSec, cfg.LLM.RateBurst)
	}
	extractor := extract.New(client, cfg.LLM)

	driver := pipeline.NewDriver(
		pipeline.NewReconciler(s),
		pipeline.NewOrchestrator(s, extractor, cfg.Batch),
		pipeline.NewExporter(s, cfg.Export),
	)

	return &env{store: s, extractor: extractor, driver: driver}, nil
}

// printJSON renders a command result to stdout.
func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return eris.Wrap(err, "encode result")
	}
	fmt.Fprintln(os.Stdout, string(data))
	return nil
}
