package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"stellium-ask/internal/config"
	"stellium-ask/internal/domain/ports/adapter"
	aiAdapters "stellium-ask/internal/infra/adapters/ai"
	insightAdapters "stellium-ask/internal/infra/adapters/insight"
	"stellium-ask/internal/infra/api"
	pg "stellium-ask/internal/infra/db/postgres"
	"stellium-ask/internal/infra/i18n"
	"stellium-ask/internal/infra/logging"
	"stellium-ask/internal/infra/metrics"
	red "stellium-ask/internal/infra/redis"
	"stellium-ask/internal/infra/sched"
	"stellium-ask/internal/infra/security"
	"stellium-ask/internal/infra/worker"
	"stellium-ask/internal/usecase"
)

var version = "dev"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (credit gate bypass, console logs)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("developer mode enabled")
	}

	metrics.MustRegister()
	metrics.SetBuildInfo(version)

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 10)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	rateLimiter := red.NewRateLimiter(redisClient)
	histCache := red.NewConversationCache(redisClient, cfg.Redis.TTL)

	// ---- Encryption ----
	encKey := cfg.Security.EncryptionKey
	if len(encKey) != 32 {
		logger.Warn().Msg("security.encryption_key not set or not 32 bytes; using dev key (INSECURE)")
		encKey = "0123456789abcdef0123456789abcdef"
	}
	encSvc, err := security.NewEncryptionService(encKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("encryption")
	}

	// ---- Repositories ----
	convRepo := pg.NewConversationRepo(pool, histCache, encSvc)
	creditRepo := pg.NewCreditLedgerRepo(pool)
	chartRepo := pg.NewChartRepo(pool)
	userRepo := pg.NewUserRepo(pool)

	// ---- i18n ----
	texts, err := i18n.NewTranslator(i18n.LocalesFS, "en")
	if err != nil {
		logger.Fatal().Err(err).Msg("i18n")
	}

	// ---- Interpretation upstream (legacy backend -> direct LLM) ----
	var insight adapter.InsightService
	if cfg.Insight.BaseURL != "" {
		insight, err = insightAdapters.NewHTTPAdapter(cfg.Insight.BaseURL, cfg.Insight.APIKey, cfg.Insight.Timeout)
		if err != nil {
			logger.Fatal().Err(err).Msg("insight adapter")
		}
		logger.Info().Str("base", cfg.Insight.BaseURL).Msg("interpretation upstream: legacy backend")
	} else {
		ai := buildAIAdapter(ctx, cfg, logger)
		insight = insightAdapters.NewLLMInsight(aiAdapters.NewLimitedAI(ai, 8), cfg.AI.DefaultModel)
		logger.Info().Str("model", cfg.AI.DefaultModel).Msg("interpretation upstream: direct LLM")
	}

	// ---- Use cases ----
	rec := metrics.Recorder{}
	creditsUC := usecase.NewEntitlementsUseCase(creditRepo, logger, cfg.Runtime.Dev)
	contextUC := usecase.NewContextUseCase(chartRepo, cfg.AI.DefaultModel, rec, logger)
	convUC := usecase.NewConversationUseCase(convRepo, insight, creditsUC, contextUC, texts, rec, logger)
	accountUC := usecase.NewAccountUseCase(userRepo, logger)

	// ---- HTTP API ----
	auth := api.NewAuthManager(cfg.API.JWTSecret, 24*time.Hour)
	srv := api.NewServer(convUC, contextUC, creditsUC, accountUC, texts, auth, rateLimiter, cfg.API.RateLimit, cfg.API.RateWindow, logger)
	handler := api.Chain(srv.Router(),
		api.TraceID(logger),
		api.RequestLog(logger),
		api.Recover(logger),
		api.Timeout(cfg.API.Timeout),
	)
	server := &http.Server{Addr: fmt.Sprintf(":%d", cfg.API.Port), Handler: handler}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server")
		}
	}()

	// ---- Background work ----
	jobs := worker.NewPool(cfg.Retention.Workers, logger)
	jobs.Start(ctx)
	defer jobs.Stop()
	retention := sched.NewRetentionWorker(cfg.Retention.SweepInterval, cfg.Retention.Days, convRepo, convUC, jobs, logger)
	go func() { _ = retention.Run(ctx) }()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutCancel()
	_ = server.Shutdown(shutCtx)
	cancel()
}

// buildAIAdapter picks providers in gateway -> gemini -> openai order and
// routes by model prefix when more than one is configured.
func buildAIAdapter(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) adapter.AIServiceAdapter {
	byProvider := map[string]adapter.AIServiceAdapter{}

	if cfg.AI.GatewayKey != "" {
		gw, err := aiAdapters.NewGatewayAdapter(cfg.AI.GatewayKey, cfg.AI.DefaultModel, cfg.AI.GatewayURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("gateway adapter")
		}
		byProvider["gateway"] = gw
	}
	if cfg.AI.GeminiKey != "" {
		gm, err := aiAdapters.NewGeminiAdapter(ctx, cfg.AI.GeminiKey, cfg.AI.GeminiURL, cfg.AI.DefaultModel, cfg.AI.MaxOutTokens)
		if err != nil {
			logger.Fatal().Err(err).Msg("gemini adapter")
		}
		byProvider["gemini"] = gm
	}
	if cfg.AI.OpenAIKey != "" {
		oa, err := aiAdapters.NewOpenAIAdapter(cfg.AI.OpenAIKey, cfg.AI.DefaultModel)
		if err != nil {
			logger.Fatal().Err(err).Msg("openai adapter")
		}
		byProvider["openai"] = oa
	}

	switch len(byProvider) {
	case 0:
		logger.Fatal().Msg("no upstream configured: set insight.base_url or an AI provider key")
		return nil
	case 1:
		for _, a := range byProvider {
			return a
		}
	}

	defaultProvider := "openai"
	for _, p := range []string{"gateway", "gemini", "openai"} {
		if byProvider[p] != nil {
			defaultProvider = p
			break
		}
	}
	return aiAdapters.NewMultiAIAdapter(defaultProvider, byProvider, nil)
}
