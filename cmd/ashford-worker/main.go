// Command ashford-worker runs the Job Queue's worker pool (internal/queue):
// it dispatches classify, action.gmail, unsnooze.gmail, and
// approval.notify jobs against the handlers built from the same
// collaborators the API binary shares (store, Gmail provider, LLM client,
// safety policy). Bootstrap mirrors the teacher's cmd/worker/main.go:
// connect, wire, run, drain on SIGINT/SIGTERM.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/slack-go/slack"

	"github.com/dimfeld/ashford/internal/action"
	"github.com/dimfeld/ashford/internal/classify"
	"github.com/dimfeld/ashford/internal/config"
	"github.com/dimfeld/ashford/internal/llm"
	"github.com/dimfeld/ashford/internal/logging"
	"github.com/dimfeld/ashford/internal/model"
	"github.com/dimfeld/ashford/internal/notify"
	"github.com/dimfeld/ashford/internal/provider"
	"github.com/dimfeld/ashford/internal/queue"
	"github.com/dimfeld/ashford/internal/safety"
	"github.com/dimfeld/ashford/internal/snooze"
	"github.com/dimfeld/ashford/internal/store"
	"github.com/dimfeld/ashford/internal/tracing"
)

// envTokenSource reads a single static Gmail OAuth access token from the
// environment. Token refresh and per-account credential storage are out of
// scope (spec.md's "no secret storage" non-goal); a real deployment sits a
// proper TokenSource behind provider.TokenSource instead.
type envTokenSource struct{ token string }

func (s envTokenSource) AccessToken(ctx context.Context, accountID string) (string, error) {
	if s.token == "" {
		return "", fmt.Errorf("worker: GMAIL_ACCESS_TOKEN not set")
	}
	return s.token, nil
}

func main() {
	configPath := os.Getenv("ASHFORD_CONFIG")
	if configPath == "" {
		configPath = "ashford.toml"
	}

	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		logging.Error("worker: failed to load config", "err", err.Error())
		os.Exit(1)
	}

	logging.Configure(cfg.Log.Level, cfg.Log.RedactPII)
	logging.Info("ashford-worker: starting", "env", cfg.App.Env, "pool_size", cfg.Worker.PoolSize)

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		logging.Error("worker: failed to open database", "err", err.Error())
		os.Exit(1)
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetime) * time.Second)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		logging.Error("worker: failed to ping database", "err", err.Error())
		os.Exit(1)
	}
	logging.Info("worker: connected to database")

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			logging.Warn("worker: redis unavailable, action rate limiting disabled", "err", err.Error())
			redisClient = nil
		}
	}

	tracer, shutdownTracing, err := tracing.Init("ashford-worker")
	if err != nil {
		logging.Error("worker: failed to init tracing", "err", err.Error())
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(ctx)
	}()

	st := store.New(db)

	gmailProvider := provider.NewGmailProvider(envTokenSource{token: os.Getenv("GMAIL_ACCESS_TOKEN")})

	var rateLimiter *provider.RateLimiter
	if redisClient != nil {
		rateLimiter = provider.NewRateLimiter(redisClient)
	}

	llmClient, err := newLLMClient(cfg)
	if err != nil {
		logging.Error("worker: failed to init llm client", "err", err.Error())
		os.Exit(1)
	}

	policy := safety.NewPolicyConfig(cfg.Policy.ApprovalAlways, cfg.Policy.ConfidenceDefault)
	toolCalling := cfg.Model.Provider == "bedrock"

	var slackClient *slack.Client
	if cfg.Slack.BotToken != "" {
		slackClient = slack.New(cfg.Slack.BotToken)
	}

	classifier := classify.New(st, llmClient, policy, toolCalling, tracer)
	executor := action.New(st, gmailProvider, rateLimiter, actionRateLimitPerMin, cfg.Gmail.SnoozeLabel, fromAddress(cfg), tracer)
	scheduler := snooze.New(st, gmailProvider)
	notifier := notify.New(st, slackClient, cfg.Slack.Channel, cfg.Slack.ApproveURLBase)

	pool := queue.New(st.Jobs, queue.Config{
		NumWorkers:     cfg.Worker.PoolSize,
		PollInterval:   time.Duration(cfg.Worker.PollIntervalMs) * time.Millisecond,
		HeartbeatEvery: time.Duration(cfg.Worker.HeartbeatIntervalSecs) * time.Second,
		StaleAfter:     time.Duration(cfg.Worker.StaleAfterSecs) * time.Second,
		ReaperInterval: time.Duration(cfg.Worker.ReaperIntervalSecs) * time.Second,
	})
	pool.Register(model.JobTypeClassify, classifier.Handle)
	pool.Register(model.JobTypeActionGmail, executor.Handle)
	pool.Register(model.JobTypeUnsnoozeGmail, scheduler.Handle)
	pool.Register(model.JobTypeApprovalNotify, notifier.Handle)

	pool.Start()
	logging.Info("worker: pool started", "workers", cfg.Worker.PoolSize)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Info("worker: shutting down")
	pool.Stop()
	logging.Info("worker: stopped")
}

// actionRateLimitPerMin bounds outbound Gmail calls per account; no §6
// config key carries this yet, so it matches the teacher's worker default
// ESP-call ceiling until a dedicated policy knob is added.
const actionRateLimitPerMin = 60

func fromAddress(cfg *config.Config) string {
	if v := os.Getenv("ASHFORD_FROM_ADDRESS"); v != "" {
		return v
	}
	return "ashford@example.com"
}

func newLLMClient(cfg *config.Config) (llm.Client, error) {
	switch cfg.Model.Provider {
	case "bedrock":
		region := os.Getenv("AWS_REGION")
		if region == "" {
			region = "us-east-1"
		}
		return llm.NewBedrockClient(context.Background(), cfg.Model.Model, region, cfg.Model.Temperature, cfg.Model.MaxOutputTokens)
	case "openai":
		return llm.NewOpenAIClient(os.Getenv("OPENAI_API_KEY"), cfg.Model.Model, cfg.Model.Temperature, cfg.Model.MaxOutputTokens), nil
	default:
		return nil, fmt.Errorf("worker: unknown model provider %q", cfg.Model.Provider)
	}
}
