package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"goalpilot/internal/config"
	"goalpilot/internal/loop"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run [goal...]",
	Short: "Run the scheduling loop until interrupted",
	Long: `Starts the plan/act loop over the persisted goal queue. Any
arguments are enqueued as additional goals before the loop starts.

The loop keeps running until SIGINT/SIGTERM; an in-flight tick is
allowed to settle before shutdown so persisted state stays consistent.`,
	RunE: runLoop,
}

func runLoop(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	eng, err := buildEngine(ctx)
	if err != nil {
		return err
	}
	defer eng.shutdown(context.Background())

	for _, text := range args {
		g, err := eng.store.EnqueueText(ctx, text)
		if err != nil {
			return fmt.Errorf("enqueue %q: %w", text, err)
		}
		logger.Info("goal enqueued", zap.String("id", g.ID), zap.String("title", g.Title))
	}

	// Surface state changes on the CLI logger.
	events, unsubscribe := eng.broadcaster.Subscribe()
	defer unsubscribe()
	go func() {
		for ev := range events {
			logger.Info("state change", zap.String("reason", ev.Reason))
		}
	}()

	// Re-apply role bindings when the config file changes on disk.
	watcher, err := config.NewWatcher(eng.cfgPath, func(cfg *config.Config) {
		eng.router.SetConfig(cfg.Provider)
	})
	if err != nil {
		logger.Warn("config hot-reload disabled", zap.Error(err))
	} else if err := watcher.Start(ctx); err != nil {
		logger.Warn("config hot-reload disabled", zap.Error(err))
	} else {
		defer watcher.Stop()
	}

	l := loop.New(loop.Deps{
		Store:    eng.store,
		Router:   eng.router,
		Tools:    eng.registry,
		Index:    eng.index,
		MinScore: eng.cfg.Retrieval.MinScore,
	}, eng.cfg.Loop)

	l.Start(ctx)
	logger.Info("scheduler running",
		zap.Int("queued", len(eng.store.Snapshot().Queue)),
		zap.Strings("tools", eng.registry.Names()))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sig:
		logger.Info("shutting down", zap.String("signal", s.String()))
	case <-ctx.Done():
	}

	// Stop before cancelling so the in-flight tick settles normally.
	l.Stop()
	cancel()
	return nil
}
