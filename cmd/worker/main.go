package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"charforge/internal/adapter/repo"
	"charforge/internal/domain"
	"charforge/internal/engine"
	"charforge/internal/generation"
	"charforge/internal/infra"
	"charforge/internal/pipeline"
	"charforge/internal/prompt"
	"charforge/internal/storage"
	"charforge/internal/styles"
	"charforge/internal/workflow"
)

type jobWorker struct {
	ctx          context.Context
	jobs         domain.ReferenceJobRepository
	controller   *pipeline.Controller
	engineClient *engine.Client
	pollInterval time.Duration
	logger       infra.Logger
}

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "worker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := infra.EnsureSchema(ctx, cfg.DatabaseURL); err != nil {
		logger.Fatal().Err(err).Msg("worker: schema bootstrap failed")
	}
	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	store, err := storage.NewFileStore(cfg.StoragePath, cfg.StorageBaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure storage")
	}
	engineClient, err := engine.NewClient(engine.Options{
		BaseURL:        cfg.EngineBaseURL,
		ClientID:       cfg.EngineClientID,
		RequestTimeout: cfg.EngineReqTimeout,
		HealthTimeout:  cfg.EngineHealthTimeout,
		Logger:         &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure engine client")
	}
	templates, err := workflow.NewStore()
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to load workflow templates")
	}

	var agent prompt.Agent
	if key := strings.TrimSpace(cfg.OpenAIAPIKey); key != "" {
		openAIAgent, err := prompt.NewOpenAIAgent(prompt.OpenAIAgentOptions{
			APIKey:  key,
			Model:   cfg.OpenAIModel,
			BaseURL: cfg.OpenAIBaseURL,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("worker: failed to configure prompt agent")
		}
		agent = openAIAgent
	} else {
		logger.Warn().Msg("worker: openai api key missing, using deterministic prompt composition only")
	}
	composer := prompt.NewComposer(prompt.ComposerOptions{
		Agent: agent,
		OnFallback: func(reason string, err error) {
			logger.Warn().Err(err).Str("reason", reason).Msg("worker: prompt agent fallback")
		},
	})

	orchestrator := generation.NewOrchestrator(generation.Options{
		Client:       engineClient,
		MaxAttempts:  cfg.EngineMaxAttempts,
		PollInterval: cfg.EnginePollInterval,
		Logger:       &logger,
	})
	jobs := repo.NewReferenceJobRepository(pool)
	controller := pipeline.NewController(pipeline.Options{
		Engine:     engineClient,
		Templates:  templates,
		Styles:     styles.NewResolver(),
		Composer:   composer,
		Runner:     orchestrator,
		Objects:    store,
		Images:     repo.NewReferenceImageRepository(pool),
		Characters: repo.NewCharacterRepository(pool),
		Logger:     &logger,
	})

	worker := &jobWorker{
		ctx:          ctx,
		jobs:         jobs,
		controller:   controller,
		engineClient: engineClient,
		pollInterval: cfg.WorkerPollInterval,
		logger:       logger,
	}
	if err := worker.Run(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}

func (w *jobWorker) Run() error {
	w.logger.Info().Msg("worker: started")
	for {
		select {
		case <-w.ctx.Done():
			return w.ctx.Err()
		default:
		}

		job, err := w.jobs.Claim(w.ctx)
		if err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				w.logger.Error().Err(err).Msg("worker: failed to claim job")
			}
			w.sleep()
			continue
		}
		w.handleJob(job)
	}
}

func (w *jobWorker) handleJob(job *domain.ReferenceJob) {
	w.logger.Info().Str("job_id", job.ID).Str("character_id", job.CharacterID).Msg("worker: picked job")
	_, err := w.controller.GenerateViews(w.ctx, pipeline.GenerateViewsRequest{
		CharacterID: job.CharacterID,
		Views:       job.Views,
		UserInput:   job.UserInput,
		SampleKeys:  job.SampleKeys,
		OnProgress: func(p domain.Progress) {
			raw, err := json.Marshal(p)
			if err != nil {
				return
			}
			if err := w.jobs.UpdateProgress(w.ctx, job.ID, raw); err != nil {
				w.logger.Error().Err(err).Str("job_id", job.ID).Msg("worker: progress update failed")
			}
		},
	})
	status := domain.JobStatusSucceeded
	errMsg := ""
	if err != nil {
		status = domain.JobStatusFailed
		errMsg = err.Error()
		w.logger.Error().Err(err).Str("job_id", job.ID).Msg("worker: job failed")
	}
	if err := w.jobs.Finish(w.ctx, job.ID, status, errMsg); err != nil {
		w.logger.Error().Err(err).Str("job_id", job.ID).Msg("worker: update status failed")
	}
	if err := w.engineClient.ReleaseMemory(w.ctx); err != nil {
		w.logger.Debug().Err(err).Msg("worker: release memory failed")
	}
}

func (w *jobWorker) sleep() {
	timer := time.NewTimer(w.pollInterval)
	defer timer.Stop()
	select {
	case <-w.ctx.Done():
	case <-timer.C:
	}
}
