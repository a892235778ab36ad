package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/arguslabs/argus/config"
	"github.com/arguslabs/argus/internal/agent/driver"
	"github.com/arguslabs/argus/internal/agent/events"
	"github.com/arguslabs/argus/internal/agent/llm"
	"github.com/arguslabs/argus/internal/agent/state"
	"github.com/arguslabs/argus/internal/agent/steps"
	"github.com/arguslabs/argus/internal/agent/supervisor"
	"github.com/arguslabs/argus/internal/checkpoint"
	"github.com/arguslabs/argus/internal/graphdb"
	"github.com/arguslabs/argus/internal/research"
	"github.com/arguslabs/argus/internal/telemetry"
	"github.com/arguslabs/argus/provider"
	"github.com/arguslabs/argus/tools/web_scrape"
	"github.com/arguslabs/argus/tools/web_search"
)

// Run wires the full service and blocks serving HTTP.
func Run(cfg *config.Config) error {
	ctx := context.Background()
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	// Unified HTTP error handler with structured JSON and logging
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Authorization", "Cookie"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	tel := telemetry.New(cfg.Telemetry)
	tracing, _, err := telemetry.SetupTracing(ctx, cfg.Telemetry, "argus-server")
	if err != nil {
		return fmt.Errorf("telemetry init: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tracing.Shutdown(shutdownCtx)
	}()

	if err := cfg.Redis.Validate(); err != nil {
		return err
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis connection failed (%s): %w", cfg.Redis.Addr(), err)
	}

	stateTTL := ttlDays(cfg.Research.JobTTLDays, 7)
	evalTTL := ttlDays(cfg.Research.EvalStateTTLDays, 30)
	ckpt := checkpoint.NewLayered(checkpoint.NewRedisStore(rdb, stateTTL, evalTTL))
	jobs := research.NewRedisJobStore(rdb, stateTTL)

	if err := cfg.Neo4j.Validate(); err != nil {
		return err
	}
	graph, err := graphdb.New(ctx, cfg.Neo4j, nil)
	if err != nil {
		return fmt.Errorf("neo4j connection failed: %w", err)
	}
	defer func() { _ = graph.Close(context.Background()) }()
	graph.InitSchema(ctx)

	prov, err := provider.NewProvider(provider.OpenAI, provider.Options{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Timeout: cfg.LLM.Timeout,
		Headers: cfg.LLM.Headers,
	})
	if err != nil {
		return err
	}

	searcher, err := web_search.NewWebSearcher(cfg.Tools.Search)
	if err != nil {
		return err
	}
	if !cfg.Tools.Search.CacheDisabled {
		searcher = web_search.NewCached(searcher, rdb, cfg.Tools.Search.CacheTTL, nil)
	}
	scraper := web_scrape.NewWebScraper(cfg.Tools.Scrape)

	registry := supervisor.NewRegistry()
	factory := NewRunnerFactory(cfg, prov, searcher, scraper, graph, ckpt, registry, tel)
	svc := research.NewService(factory, jobs, ckpt, registry, cfg.Research, nil)

	api := e.Group("/api")
	if cfg.Server.AuthRequired {
		if cfg.Server.JWTSecret == "" {
			return fmt.Errorf("jwt secret not configured (server.jwt_secret)")
		}
		secret := []byte(cfg.Server.JWTSecret)
		api.Use(func(next echo.HandlerFunc) echo.HandlerFunc { return withAuth(next, secret) })
	}
	NewResearchHandler(svc, cfg.Server).Register(api.Group("/research"))
	NewGraphHandler(graph).Register(api.Group("/graph"))

	addr := cfg.Server.Address
	if addr == "" {
		addr = ":8080"
	}
	baseLogger.Printf("listening on %s", addr)
	return e.Start(addr)
}

// NewRunnerFactory builds a fresh gateway and engine per run so usage
// accounting and the event sink stay scoped to that run. Shared by the HTTP
// server and the one-shot CLI runner.
func NewRunnerFactory(cfg *config.Config, prov provider.Provider, searcher web_search.WebSearcher,
	scraper web_scrape.WebScraper, sink steps.EntitySink, ckpt checkpoint.Store,
	registry *supervisor.Registry, tel *telemetry.Telemetry) research.RunnerFactory {
	return func(emit events.Sink) research.Runner {
		emit = tel.ObserveSink(emit)
		gw := llm.NewGateway(cfg.LLM, prov, nil)
		deps := steps.Deps{
			Gateway:  gw,
			Searcher: searcher,
			Scraper:  scraper,
			Sink:     sink,
			Emit:     emit,
			Research: cfg.Research,
			Logger:   log.New(log.Writer(), "[STEPS] ", log.LstdFlags),
		}
		specialists := []steps.Step{
			steps.NewPlanner(deps),
			steps.NewQueryRefiner(deps),
			steps.NewSearchAnalyze(deps),
			steps.NewVerifier(deps),
			steps.NewRiskAssessor(deps),
			steps.NewGraphBuilder(deps),
			steps.NewPhaseStrategist(deps),
			steps.NewSynthesizer(deps),
		}
		sup := supervisor.New(gw, registry, cfg.Research.MinFactsForVerification, emit, nil)
		usage := func() (int64, float64) {
			var tokens int64
			var cost float64
			for _, ts := range gw.Stats() {
				tokens += ts.Tokens
				cost += ts.Cost
			}
			return tokens, cost
		}
		engine := driver.NewEngine(sup, specialists, ckpt, emit, usage, cfg.Research.RecursionLimit, nil)
		return &accountedRunner{engine: engine, gw: gw, tel: tel}
	}
}

// accountedRunner flushes per-task gateway totals into telemetry once the run
// reaches a terminal state.
type accountedRunner struct {
	engine *driver.Engine
	gw     *llm.Gateway
	tel    *telemetry.Telemetry
}

func (r *accountedRunner) Run(ctx context.Context, st *state.ResearchState) (string, error) {
	status, err := r.engine.Run(ctx, st)
	for task, ts := range r.gw.Stats() {
		if ts.Tokens > 0 || ts.Cost > 0 {
			r.tel.RecordLLMUsage(task, ts.Tokens, ts.Cost)
		}
	}
	return status, err
}

func ttlDays(days, fallback int) time.Duration {
	if days <= 0 {
		days = fallback
	}
	return time.Duration(days) * 24 * time.Hour
}
