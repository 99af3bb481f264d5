// Package app wires the runtime together: storage, the knowledge index,
// the model chain, the conversation pipeline, the channel connectors, and
// the supporting loops.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/destekhq/runtime/internal/agentqueue"
	"github.com/destekhq/runtime/internal/analytics"
	"github.com/destekhq/runtime/internal/config"
	"github.com/destekhq/runtime/internal/connectors"
	"github.com/destekhq/runtime/internal/connectors/sunshine"
	"github.com/destekhq/runtime/internal/connectors/telegram"
	"github.com/destekhq/runtime/internal/connectors/whatsapp"
	"github.com/destekhq/runtime/internal/convutil"
	"github.com/destekhq/runtime/internal/httpapi"
	"github.com/destekhq/runtime/internal/jobs"
	"github.com/destekhq/runtime/internal/knowledge"
	"github.com/destekhq/runtime/internal/llm"
	"github.com/destekhq/runtime/internal/llm/openai"
	"github.com/destekhq/runtime/internal/maintenance"
	"github.com/destekhq/runtime/internal/pipeline"
	"github.com/destekhq/runtime/internal/prompts"
	"github.com/destekhq/runtime/internal/session"
	"github.com/destekhq/runtime/internal/store"
)

type Runtime struct {
	cfg    config.Config
	logger *slog.Logger

	store       *store.Store
	sessions    *session.Store
	index       *knowledge.Index
	ingestor    *knowledge.Ingestor
	registry    *prompts.FileRegistry
	queue       *agentqueue.Queue
	hub         *agentqueue.Hub
	pipeline    *pipeline.Pipeline
	worker      *jobs.Worker
	maintenance *maintenance.Service
	connectors  []connectors.Connector
	httpServer  *http.Server
}

func New(cfg config.Config, logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	metaStore, err := store.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := metaStore.AutoMigrate(context.Background()); err != nil {
		metaStore.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}

	if err := os.MkdirAll(cfg.PromptsDir, 0o755); err != nil {
		metaStore.Close()
		return nil, fmt.Errorf("create prompts dir: %w", err)
	}
	registry, err := prompts.NewFileRegistry(cfg.PromptsDir, logger)
	if err != nil {
		metaStore.Close()
		return nil, fmt.Errorf("load prompts: %w", err)
	}

	client := openai.New(openai.Config{
		APIKey:     cfg.LLMAPIKey,
		BaseURL:    cfg.LLMBaseURL,
		Model:      cfg.LLMModel,
		EmbedModel: cfg.LLMEmbedModel,
		Timeout:    time.Duration(cfg.LLMTimeoutSec) * time.Second,
	}, logger)
	chain := llm.NewChain(client, cfg.FallbackModels(), logger)

	index := knowledge.NewIndex()
	ingestor := knowledge.NewIngestor(metaStore, client, index, logger)
	if count, err := ingestor.LoadIndex(context.Background()); err != nil {
		logger.Warn("knowledge index load failed, starting empty", "error", err)
	} else {
		logger.Info("knowledge index loaded", "records", count)
	}
	retriever := knowledge.NewRetriever(index, client, metaStore, logger)

	hub := agentqueue.NewHub(logger)
	queue := agentqueue.New(hub, logger)
	sessions := session.NewStore()

	bot := pipeline.New(pipeline.Config{
		TopK:               cfg.RetrievalTopK,
		ClarificationLimit: cfg.ClarificationLimit,
		MaxReplyTokens:     cfg.MaxReplyTokens,
		CredentialTools:    cfg.CredentialTools(),
		JobMaxAttempts:     cfg.JobMaxAttempts,
	}, pipeline.Deps{
		Sessions:    sessions,
		Tickets:     metaStore,
		Retriever:   retriever,
		Responder:   chain,
		Summarizer:  convutil.NewSummarizer(chain, logger),
		Registry:    registry,
		Jobs:        metaStore,
		Agents:      queue,
		Recorder:    analytics.NewRecorder(metaStore, logger),
		Logger:      logger,
		SupportOpen: supportWindow(cfg),
	})

	runtime := &Runtime{
		cfg:      cfg,
		logger:   logger,
		store:    metaStore,
		sessions: sessions,
		index:    index,
		ingestor: ingestor,
		registry: registry,
		queue:    queue,
		hub:      hub,
		pipeline: bot,
	}
	runtime.worker = runtime.buildWorker()
	runtime.maintenance = maintenance.New(maintenance.Config{
		SessionIdle:        time.Duration(cfg.SessionIdleMinutes) * time.Minute,
		JobRetention:       time.Duration(cfg.JobRetentionDays) * 24 * time.Hour,
		AnalyticsRetention: time.Duration(cfg.AnalyticsRetentionDays) * 24 * time.Hour,
	}, bot, metaStore, logger)
	runtime.connectors = runtime.buildConnectors()
	runtime.httpServer = &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           runtime.buildRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return runtime, nil
}

// buildWorker registers the side-effect job handlers. Escalations land in
// the agent queue and are forwarded to the handoff webhook; result and
// rating notifications only go to the webhook.
func (r *Runtime) buildWorker() *jobs.Worker {
	worker := jobs.NewWorker(jobs.Config{
		PollInterval: time.Duration(r.cfg.JobPollSec) * time.Second,
		BatchSize:    r.cfg.JobBatchSize,
		Concurrency:  r.cfg.JobConcurrency,
	}, r.store, r.logger)

	sender := jobs.NewWebhookSender(
		r.cfg.HandoffWebhookURL,
		r.cfg.HandoffWebhookToken,
		time.Duration(r.cfg.HandoffTimeoutSec)*time.Second,
		r.logger,
	)

	worker.Register("escalation", func(ctx context.Context, job store.Job) error {
		payload, err := jobs.DecodePayload(job)
		if err != nil {
			return err
		}
		entry := agentqueue.Entry{
			SessionID: stringField(payload, "session"),
			TicketID:  stringField(payload, "ticket_id"),
			Reason:    stringField(payload, "reason"),
			Summary:   stringField(payload, "summary"),
		}
		if entry.SessionID != "" {
			if sess, ok := r.sessions.Get(entry.SessionID); ok {
				entry.Channel = sess.Channel
			}
			r.queue.Enqueue(entry)
		}
		return sender.Handle(ctx, job)
	})
	worker.Register("handoff_result", sender.Handle)
	worker.Register("csat_rating", sender.Handle)
	return worker
}

func (r *Runtime) buildConnectors() []connectors.Connector {
	built := []connectors.Connector{}
	if r.cfg.TelegramToken != "" {
		built = append(built, telegram.New(
			r.cfg.TelegramToken,
			r.cfg.TelegramAPI,
			r.cfg.TelegramPoll,
			r.pipeline,
			r.logger,
		))
	}
	return built
}

func (r *Runtime) buildRouter() http.Handler {
	deps := httpapi.Dependencies{
		Config: r.cfg,
		Store:  r.store,
		Bot:    r.pipeline,
		Jobs:   r.store,
		Queue:  r.queue,
		Hub:    r.hub,
		Logger: r.logger,
	}
	if r.cfg.WhatsAppVerifyToken != "" || r.cfg.WhatsAppAccessToken != "" {
		deps.WhatsAppWebhook = whatsapp.New(whatsapp.Config{
			VerifyToken:   r.cfg.WhatsAppVerifyToken,
			AccessToken:   r.cfg.WhatsAppAccessToken,
			PhoneNumberID: r.cfg.WhatsAppPhoneNumberID,
			APIBase:       r.cfg.WhatsAppAPI,
		}, r.pipeline, r.logger)
	}
	if r.cfg.SunshineAppID != "" {
		deps.SunshineWebhook = sunshine.New(sunshine.Config{
			AppID:     r.cfg.SunshineAppID,
			KeyID:     r.cfg.SunshineKeyID,
			KeySecret: r.cfg.SunshineKeySecret,
			APIBase:   r.cfg.SunshineAPI,
		}, r.pipeline, r.logger)
	}
	return httpapi.NewRouter(deps)
}

// IngestKnowledge replaces the knowledge base from a JSON file of
// question/answer pairs.
func (r *Runtime) IngestKnowledge(ctx context.Context, path string) (int, error) {
	return r.ingestor.IngestFile(ctx, path)
}

// Pipeline exposes the turn handler for in-process callers such as the
// interactive chat command.
func (r *Runtime) Pipeline() *pipeline.Pipeline {
	return r.pipeline
}

func (r *Runtime) Close() error {
	if r.store == nil {
		return nil
	}
	return r.store.Close()
}

func supportWindow(cfg config.Config) func(time.Time) bool {
	openHour, closeHour := cfg.SupportOpenHour, cfg.SupportCloseHour
	saturday := cfg.SupportOpenSaturday
	return func(now time.Time) bool {
		switch now.Weekday() {
		case time.Sunday:
			return false
		case time.Saturday:
			if !saturday {
				return false
			}
		}
		return now.Hour() >= openHour && now.Hour() < closeHour
	}
}

func stringField(payload map[string]any, key string) string {
	value, _ := payload[key].(string)
	return value
}
