package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/talentsignal/sourcing-cli/internal/limiter"
	"github.com/talentsignal/sourcing-cli/internal/pipeline"
	"github.com/talentsignal/sourcing-cli/internal/store"
	"github.com/talentsignal/sourcing-cli/internal/stream"
	"github.com/talentsignal/sourcing-cli/internal/worker"
	"github.com/talentsignal/sourcing-cli/pkg/directory"
	"github.com/talentsignal/sourcing-cli/pkg/screening"
)

// env bundles the wired pipeline and its collaborators for a command.
type env struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
	Retry    *pipeline.RetryController
	Pool     *worker.Pool
	Hub      *stream.Hub
	Reporter *stream.Reporter
}

func (e *env) Close() {
	if err := e.Store.Close(); err != nil {
		zap.L().Warn("store close", zap.Error(err))
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.Path)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &cfg.Store.Pool)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initLocal wires just the store, for commands that only read or export.
func initLocal(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate("local"); err != nil {
		return nil, err
	}
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initPipeline wires the full stack for commands that run jobs.
func initPipeline(ctx context.Context, mode string) (*env, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	dirClient := directory.NewClient(cfg.Directory.Key, directory.WithBaseURL(cfg.Directory.BaseURL))

	weights := screening.DefaultWeights()
	if cfg.Screening.WeightsPath != "" {
		w, err := screening.LoadWeights(cfg.Screening.WeightsPath)
		if err != nil {
			st.Close()
			return nil, err
		}
		weights = w
	}
	screenClient := screening.New(
		screening.NewMessenger(cfg.Anthropic.Key),
		screening.WithModels(cfg.Anthropic.HaikuModel, cfg.Anthropic.SonnetModel),
		screening.WithWeights(weights),
	)

	lim := limiter.New(cfg.Limiter)
	hub := stream.NewHub()

	p := pipeline.New(st, dirClient, screenClient, lim, hub, pipeline.Options{
		BatchSize:            cfg.Pipeline.BatchSize,
		EnrichFanout:         cfg.Pipeline.EnrichFanout,
		DefaultMaxCandidates: cfg.Pipeline.DefaultMaxCandidates,
		FailureBackoff:       time.Duration(cfg.Pipeline.FailureBackoffSecs) * time.Second,
	})

	retry := pipeline.NewRetryController(st, staleAfter())

	return &env{
		Store:    st,
		Pipeline: p,
		Retry:    retry,
		Pool:     worker.New(p, retry, st),
		Hub:      hub,
		Reporter: stream.NewReporter(st, hub, time.Duration(cfg.Stream.PollIntervalSecs)*time.Second),
	}, nil
}

func staleAfter() time.Duration {
	return time.Duration(cfg.Pipeline.StaleAfterMins) * time.Minute
}
