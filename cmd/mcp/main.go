package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/Neuro-Trade/metatrade-metaapi-mcp-server/internal/bot"
	"github.com/Neuro-Trade/metatrade-metaapi-mcp-server/internal/cache"
	"github.com/Neuro-Trade/metatrade-metaapi-mcp-server/internal/config"
	"github.com/Neuro-Trade/metatrade-metaapi-mcp-server/internal/db"
	mcpserver "github.com/Neuro-Trade/metatrade-metaapi-mcp-server/internal/mcp"
	"github.com/Neuro-Trade/metatrade-metaapi-mcp-server/internal/metaapi"
	"github.com/Neuro-Trade/metatrade-metaapi-mcp-server/internal/repository"
	"github.com/Neuro-Trade/metatrade-metaapi-mcp-server/internal/service"
	"github.com/Neuro-Trade/metatrade-metaapi-mcp-server/internal/session"
	"github.com/Neuro-Trade/metatrade-metaapi-mcp-server/pkg/tracing"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/trace"
)

const defaultMCPHTTPMaxBodyBytes int64 = 1 << 20 // 1MiB

var (
	loadConfigFunc     = config.Load
	initPostgresFunc   = db.InitPostgres
	initRedisFunc      = cache.InitRedis
	initTracerFunc     = tracing.InitTracer
	newMetaAPIClient   = func(token string, tracer trace.Tracer) metaapi.Client { return metaapi.NewRESTClient(token, tracer, nil) }
	newJournalRepoFunc = repository.NewJournalRepository
	newMCPServerFunc   = mcpserver.NewServer
	newMCPHandlerFunc  = mcpserver.NewHTTPTransportHandler
	startTelegramFunc  = bot.StartTelegramBot
	runStdioFunc       = func(ctx context.Context, server *sdkmcp.Server) error {
		return server.Run(ctx, &sdkmcp.StdioTransport{})
	}
	startHTTPServerFunc  = func(srv *http.Server) error { return srv.ListenAndServe() }
	shutdownHTTPServerFn = func(srv *http.Server, ctx context.Context) error { return srv.Shutdown(ctx) }
	setupSignalNotify    = ossignal.Notify
	waitForSignalFunc    = func(quit <-chan os.Signal) { <-quit }
)

func main() {
	cfg := loadConfigFunc()
	if cfg.MetaAPIToken == "" {
		log.Fatalf("METAAPI_TOKEN is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	initPostgresFunc(ctx, cfg.DatabaseURL)
	initRedisFunc(ctx, cfg.RedisURL)

	tp, tracer, err := initTracerFunc(ctx)
	if err != nil {
		log.Fatalf("failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("error shutting down tracer provider: %v", err)
		}
	}()

	client := newMetaAPIClient(cfg.MetaAPIToken, tracer)
	lifecycle := session.NewManager(client, time.Duration(cfg.LifecycleStageTimeoutSecs)*time.Second, tracer)
	sessions := session.NewCache(lifecycle)
	sink := session.NewChannelSink(cfg.TickSinkBuffer)
	registry := session.NewRegistry(client, sink)

	var journalWriter service.JournalWriter
	var journalReader mcpserver.JournalReader
	if db.Pool != nil {
		journalRepo := newJournalRepoFunc(db.Pool, tracer)
		if err := journalRepo.RunMigrations(ctx); err != nil {
			log.Fatalf("failed to run journal migrations: %v", err)
		}
		journalWriter = journalRepo
		journalReader = journalRepo
	}

	accountService := service.NewAccountService(tracer, client, sessions, registry)
	tradeService := service.NewTradeService(tracer, sessions, journalWriter)
	marketService := service.NewMarketService(tracer, sessions, cache.Client)

	mcpSrv, err := newMCPServerFunc(tracer, mcpserver.Services{
		Accounts:      accountService,
		Trades:        tradeService,
		Market:        marketService,
		Subscriptions: registry,
		Journal:       journalReader,
	}, mcpserver.ServerConfig{
		RequestTimeout: time.Duration(cfg.MCPRequestTimeoutSecs) * time.Second,
	})
	if err != nil {
		log.Fatalf("failed to build mcp server: %v", err)
	}

	if alerts := startTelegramFunc(cfg.TelegramBotToken, accountService, marketService, registry); alerts != nil {
		go alerts.Run(ctx, sink.Events())
	}

	switch cfg.MCPTransport {
	case "", "stdio":
		if err := runStdioFunc(ctx, mcpSrv); err != nil {
			log.Fatalf("mcp stdio server failed: %v", err)
		}
	case "http":
		if err := runHTTPMode(ctx, cancel, cfg, mcpSrv); err != nil {
			log.Fatalf("mcp http server failed: %v", err)
		}
	default:
		log.Fatalf("unsupported MCP_TRANSPORT: %s", cfg.MCPTransport)
	}
}

func runHTTPMode(ctx context.Context, cancel context.CancelFunc, cfg *config.Config, mcpSrv *sdkmcp.Server) error {
	if cfg.MCPAuthToken == "" {
		return fmt.Errorf("MCP_AUTH_TOKEN is required when MCP_TRANSPORT=http")
	}

	handler := newMCPHandlerFunc(mcpSrv, mcpserver.HTTPHandlerConfig{
		AuthToken:       cfg.MCPAuthToken,
		RateLimitPerMin: cfg.MCPRateLimitPerMin,
		MaxBodyBytes:    defaultMCPHTTPMaxBodyBytes,
	})

	addr := net.JoinHostPort(cfg.MCPHTTPBind, fmt.Sprintf("%d", cfg.MCPHTTPPort))
	srv := &http.Server{Addr: addr, Handler: handler}

	go func() {
		if err := startHTTPServerFunc(srv); err != nil && err != http.ErrServerClosed {
			log.Printf("mcp http server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
	waitForSignalFunc(quit)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := shutdownHTTPServerFn(srv, shutdownCtx); err != nil {
		return fmt.Errorf("mcp server forced to shutdown: %w", err)
	}
	return nil
}
