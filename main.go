package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/aagii9912/smarthub-sub002/internal/abtest"
	"github.com/aagii9912/smarthub-sub002/internal/api"
	"github.com/aagii9912/smarthub-sub002/internal/automation"
	"github.com/aagii9912/smarthub-sub002/internal/circuitbreaker"
	"github.com/aagii9912/smarthub-sub002/internal/clients"
	"github.com/aagii9912/smarthub-sub002/internal/config"
	"github.com/aagii9912/smarthub-sub002/internal/discount"
	"github.com/aagii9912/smarthub-sub002/internal/domain"
	"github.com/aagii9912/smarthub-sub002/internal/handler"
	"github.com/aagii9912/smarthub-sub002/internal/idempotency"
	"github.com/aagii9912/smarthub-sub002/internal/jobqueue"
	"github.com/aagii9912/smarthub-sub002/internal/logger"
	"github.com/aagii9912/smarthub-sub002/internal/metrics"
	"github.com/aagii9912/smarthub-sub002/internal/monitoring"
	"github.com/aagii9912/smarthub-sub002/internal/pipeline"
	"github.com/aagii9912/smarthub-sub002/internal/profiling"
	"github.com/aagii9912/smarthub-sub002/internal/retry"
	"github.com/aagii9912/smarthub-sub002/internal/storage"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}

	log, err := createLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		return 1
	}
	defer func() { _ = log.Sync() }()

	profiling.Start(log)

	db, err := storage.Connect(context.Background(), cfg.Database.DSN())
	if err != nil {
		log.Error("database connection failed", logger.Error(err))
		return 1
	}
	defer func() { _ = db.Close() }()
	log.Info("database connected",
		logger.String("host", cfg.Database.Host),
		logger.String("database", cfg.Database.Database))

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() { _ = redisClient.Close() }()

	return runService(cfg, log, db, redisClient)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.GetConfigPath("config.yml"))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func createLogger(cfg *config.Config) (logger.Logger, error) {
	log, err := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Service.Debug,
	})
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return log.With(logger.String("service", cfg.Service.Name)), nil
}

// runService wires the pipeline and serves until shutdown.
func runService(cfg *config.Config, log logger.Logger, db *sql.DB, redisClient *redis.Client) int {
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	reporter := monitoring.NewReporter(log, registry)

	breakers := newBreakerRegistry(cfg, m, log)
	retrier := retry.NewService(retry.Config{
		MaxAttempts:  cfg.Retry.MaxAttempts,
		InitialDelay: cfg.Retry.InitialDelay,
		MaxDelay:     cfg.Retry.MaxDelay,
		Multiplier:   cfg.Retry.Multiplier,
	}, reporter)

	// Repositories.
	automationRepo := storage.NewAutomationRepository(db)
	jobRepo := storage.NewJobRepository(db)
	experimentRepo := storage.NewExperimentRepository(db)
	discountRepo := storage.NewDiscountRepository(db)
	chatRepo := storage.NewChatRepository(db)
	shopRepo := storage.NewShopRepository(db)
	productRepo := storage.NewProductRepository(db)

	// Collaborators.
	llm := clients.NewLLMClient(cfg.LLM)
	social := clients.NewSocialClient(cfg.Social, func(domain.Platform) (string, error) {
		return cfg.Social.PageAccessToken, nil
	})

	// Services.
	experiments := abtest.NewManager(experimentRepo, cfg.Experiments.RefreshInterval, log)
	discounts := discount.NewService(discountRepo, log)
	guard := idempotency.NewGuard(redisClient)
	executor := automation.NewExecutor(social, automationRepo, chatRepo, log)

	jobs := jobqueue.NewService(jobRepo, jobqueue.Config{
		MaxAttempts: cfg.Jobs.MaxAttempts,
		Backoff: retry.Config{
			MaxAttempts:  cfg.Retry.MaxAttempts,
			InitialDelay: cfg.Retry.InitialDelay,
			MaxDelay:     cfg.Retry.MaxDelay,
			Multiplier:   cfg.Retry.Multiplier,
		},
	}, reporter, log)
	payment := clients.NewPaymentClient(cfg.Payment)
	registerJobHandlers(jobs, social, payment, breakers)

	orchestrator := pipeline.NewOrchestrator(
		productRepo, chatRepo, llm, discounts, breakers, retrier, experiments, m, log)
	comments := pipeline.NewCommentPipeline(
		executor, guard, social, shopProfileAdapter{shopRepo}, m, log)

	// Background job poller.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	poller := jobqueue.NewPoller(jobs, jobqueue.PollerConfig{
		Interval:  cfg.Jobs.PollInterval,
		BatchSize: cfg.Jobs.BatchSize,
		Retention: time.Duration(cfg.Jobs.RetentionDays) * 24 * time.Hour,
		StatsObserver: func(counts map[domain.JobStatus]int64) {
			for status, count := range counts {
				m.JobsByStatus.WithLabelValues(string(status)).Set(float64(count))
			}
		},
	}, log)
	poller.Start(ctx)
	defer poller.Stop()

	// HTTP surface.
	webhooks := handler.NewWebhookHandler(
		orchestrator, comments, jobs, shopResolverAdapter{shopRepo}, cfg.Social.VerifyToken, log)
	admin := handler.NewAdminHandler(breakers, jobs, experiments, discounts, log)
	health := handler.NewHealthHandler(cfg.Service.Name, cfg.Service.Version, db, redisClient)

	server := api.NewServer(cfg.Service.Port, cfg.Service.Debug, log, func(router *gin.Engine) {
		api.SetupRoutes(router, webhooks, admin, health, registry, cfg.RateLimit.MaxRequestsPerMinute)
	})

	log.Info("chat orchestrator starting", logger.Int("port", cfg.Service.Port))
	if err := server.Run(ctx); err != nil {
		log.Error("server error", logger.Error(err))
		return 1
	}
	log.Info("chat orchestrator exited cleanly")
	return 0
}

func newBreakerRegistry(cfg *config.Config, m *metrics.Metrics, log logger.Logger) *circuitbreaker.Registry {
	registry := circuitbreaker.NewRegistry(circuitbreaker.DefaultConfig(), log)
	registry.Register(circuitbreaker.ServiceLLM, breakerConfig(cfg.Breakers.LLM, circuitbreaker.ServiceLLM, m))
	registry.Register(circuitbreaker.ServicePayment, breakerConfig(cfg.Breakers.Payment, circuitbreaker.ServicePayment, m))
	registry.Register(circuitbreaker.ServiceDatabase, breakerConfig(cfg.Breakers.Database, circuitbreaker.ServiceDatabase, m))
	return registry
}

func breakerConfig(cfg config.BreakerConfig, service string, m *metrics.Metrics) circuitbreaker.Config {
	return circuitbreaker.Config{
		FailureThreshold: cfg.FailureThreshold,
		SuccessThreshold: cfg.SuccessThreshold,
		Timeout:          cfg.Timeout,
		MonitoringPeriod: cfg.MonitoringPeriod,
		OnStateChange: func(_, to circuitbreaker.State) {
			m.BreakerState.WithLabelValues(service).Set(float64(to))
		},
	}
}

// registerJobHandlers binds each job type to its delivery action.
func registerJobHandlers(
	jobs *jobqueue.Service,
	social *clients.SocialClient,
	payment *clients.PaymentClient,
	breakers *circuitbreaker.Registry,
) {
	jobs.RegisterHandler(domain.JobMessage, func(ctx context.Context, payload json.RawMessage) error {
		var p handler.SendMessagePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("decoding message payload: %w", err)
		}
		return social.SendDM(ctx, p.Platform, p.RecipientID, p.Text)
	})
	jobs.RegisterHandler(domain.JobCommentReply, func(ctx context.Context, payload json.RawMessage) error {
		var p struct {
			Platform  domain.Platform `json:"platform"`
			CommentID string          `json:"comment_id"`
			Text      string          `json:"text"`
		}
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("decoding comment reply payload: %w", err)
		}
		return social.ReplyToComment(ctx, p.Platform, p.CommentID, p.Text)
	})
	jobs.RegisterHandler(domain.JobInvoice, func(ctx context.Context, payload json.RawMessage) error {
		var p struct {
			Platform    domain.Platform `json:"platform"`
			RecipientID string          `json:"recipient_id"`
			OrderID     string          `json:"order_id"`
			Amount      float64         `json:"amount"`
			Description string          `json:"description"`
		}
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("decoding invoice payload: %w", err)
		}

		var invoice *clients.Invoice
		err := breakers.Get(circuitbreaker.ServicePayment).Execute(ctx, func() error {
			created, payErr := payment.CreateInvoice(ctx, p.OrderID, p.Amount, p.Description)
			if payErr != nil {
				return payErr
			}
			invoice = created
			return nil
		})
		if err != nil {
			return fmt.Errorf("creating invoice for order %s: %w", p.OrderID, err)
		}
		text := fmt.Sprintf("Төлбөрөө доорх холбоосоор төлнө үү:\n%s", invoice.PaymentURL)
		return social.SendDM(ctx, p.Platform, p.RecipientID, text)
	})
}

// shopProfileAdapter narrows the shop repository to the comment pipeline's
// view of it.
type shopProfileAdapter struct {
	repo *storage.ShopRepository
}

func (a shopProfileAdapter) ShopProfile(ctx context.Context, shopID string) (string, string, error) {
	return a.repo.ShopProfile(ctx, shopID)
}

type shopResolverAdapter struct {
	repo *storage.ShopRepository
}

func (a shopResolverAdapter) ShopIDForPage(ctx context.Context, pageID string) (string, error) {
	return a.repo.ShopIDForPage(ctx, pageID)
}
