package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/shangji-io/shangji/internal/async"
	"github.com/shangji-io/shangji/internal/config"
	"github.com/shangji-io/shangji/internal/domain/question"
	"github.com/shangji-io/shangji/internal/domain/user"
	"github.com/shangji-io/shangji/internal/export"
	"github.com/shangji-io/shangji/internal/mcp"
	"github.com/shangji-io/shangji/internal/orchestrator"
	"github.com/shangji-io/shangji/internal/recognition"
	"github.com/shangji-io/shangji/internal/rewrite"
	"github.com/shangji-io/shangji/internal/sqlite"
	"github.com/shangji-io/shangji/internal/transport"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Log.Level),
	}))

	if err := ensureDBDir(cfg.DB.Path); err != nil {
		logger.Error("failed to prepare database path", "error", err)
		os.Exit(1)
	}

	db, err := sqlite.New(cfg.DB.Path)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.RunMigrations(); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	questionRepo := sqlite.NewQuestionRepository(db)
	userRepo := sqlite.NewUserRepository(db)

	userSvc := user.NewService(userRepo, logger)
	if err := userSvc.SeedUsers(context.Background(), seedsFromConfig(cfg.Users)); err != nil {
		logger.Error("failed to seed users", "error", err)
		os.Exit(1)
	}

	recognizer := recognition.NewHTTPClient(recognition.Config{
		BaseURL: cfg.Recognition.BaseURL,
		APIKey:  cfg.Recognition.APIKey,
	}, logger)
	rewriter := rewrite.NewHTTPClient(rewrite.Config{
		BaseURL: cfg.Rewrite.BaseURL,
		APIKey:  cfg.Rewrite.APIKey,
		Model:   cfg.Rewrite.Model,
	}, logger)

	orch := orchestrator.New(questionRepo, recognizer, rewriter, logger,
		orchestrator.Options{
			PollInterval: cfg.Recognition.PollInterval.Std(),
			// Rewrite jobs poll the longest; their timeout bounds both kinds.
			PollTimeout:    cfg.Rewrite.PollTimeout.Std(),
			MaxAttempts:    cfg.Jobs.MaxAttempts,
			BackoffBase:    cfg.Jobs.BackoffBase.Std(),
			PromptTemplate: cfg.Rewrite.PromptTemplate,
			PromptVersion:  cfg.Rewrite.PromptVersion,
		},
		async.WithWorkers(cfg.Jobs.Workers),
		async.WithQueueSize(cfg.Jobs.QueueSize),
	)

	questionSvc := question.NewService(questionRepo, userSvc, orch, logger)
	exportSvc := export.NewService(questionSvc, logger)

	mcpServer := mcp.NewServer(mcp.Config{
		Questions: questionSvc,
		Resolver:  userSvc,
		Logger:    logger,
	})
	mcpHandler := sdkmcp.NewStreamableHTTPHandler(
		func(r *http.Request) *sdkmcp.Server { return mcpServer },
		&sdkmcp.StreamableHTTPOptions{
			Stateless:      false,
			SessionTimeout: 30 * time.Minute,
		},
	)

	router := transport.NewRouter(questionSvc, exportSvc, userSvc, mcpHandler, logger)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		logger.Info("server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
		}
	}()

	waitForShutdown(logger, httpServer, orch)
}

func seedsFromConfig(users []config.SeedUser) []user.Seed {
	seeds := make([]user.Seed, 0, len(users))
	for _, u := range users {
		seeds = append(seeds, user.Seed{
			Username:  u.Username,
			FullName:  u.FullName,
			Role:      user.Role(u.Role),
			Superuser: u.Superuser,
			Token:     u.Token,
		})
	}
	return seeds
}

func ensureDBDir(path string) error {
	if path == ":memory:" || path == "" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func waitForShutdown(logger *slog.Logger, server *http.Server, orch *orchestrator.Orchestrator) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	logger.Info("shutting down")
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	orch.Shutdown(ctx)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
