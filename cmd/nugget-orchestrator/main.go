// Command nugget-orchestrator runs the session-orchestrator HTTP/
// WebSocket service: load config, init logger, construct collaborators
// (falling back to in-process defaults when no external implementation
// is configured), build the gin engine, serve, wait for a shutdown
// signal, then shut the HTTP server down and stop pending session
// cleanup timers. Running sessions are not waited for.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/elisalabs/nugget-orchestrator/internal/agentrunner"
	"github.com/elisalabs/nugget-orchestrator/internal/api"
	"github.com/elisalabs/nugget-orchestrator/internal/common/config"
	"github.com/elisalabs/nugget-orchestrator/internal/common/logger"
	"github.com/elisalabs/nugget-orchestrator/internal/gitrepo"
	"github.com/elisalabs/nugget-orchestrator/internal/orchestrator"
	"github.com/elisalabs/nugget-orchestrator/internal/scheduler"
	"github.com/elisalabs/nugget-orchestrator/internal/session"
	"github.com/elisalabs/nugget-orchestrator/internal/workspace"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	log.Info("starting nugget-orchestrator")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sessions := session.New(cfg.Session.CleanupGrace(), log)
	defer sessions.Shutdown()

	planner := orchestrator.HeuristicPlanner{}
	runner := agentrunner.NewScriptedRunner()
	git := gitrepo.New()
	policy := workspace.NewPolicy(cfg.Workspace.RootOverride, cfg.Workspace.MaxPathLen)

	schedCfg := scheduler.Config{
		MaxConcurrent:        cfg.Scheduler.MaxConcurrent,
		MaxRetries:           cfg.Scheduler.MaxRetries,
		ReservedPerTask:      cfg.Budget.DefaultReservePerTask,
		WarnThresholdPercent: cfg.Budget.WarnThresholdPercent,
		GateResponseTimeout:  cfg.Gate.ResponseTimeout(),
		QuestionTimeout:      cfg.Gate.QuestionTimeout(),
		GateTimeoutPolicy:    cfg.Gate.TimeoutPolicy,
		MidpointGateEnabled:  true,
	}

	handler := api.NewHandler(sessions, planner, runner, git, policy, schedCfg, cfg.Budget.MaxTokens, log)
	router := api.NewRouter(handler, log)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	go func() {
		log.Info("listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down nugget-orchestrator")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown error", zap.Error(err))
	}

	log.Info("nugget-orchestrator stopped")
}
