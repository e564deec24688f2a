// Command modelmux runs the multi-provider chat-completion backend.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/modelmux/modelmux/pkg/analyze"
	"github.com/modelmux/modelmux/pkg/augment"
	"github.com/modelmux/modelmux/pkg/config"
	"github.com/modelmux/modelmux/pkg/dispatch"
	"github.com/modelmux/modelmux/pkg/logger"
	"github.com/modelmux/modelmux/pkg/model"
	"github.com/modelmux/modelmux/pkg/model/cloudchat"
	"github.com/modelmux/modelmux/pkg/model/localdaemon"
	"github.com/modelmux/modelmux/pkg/model/ondevice"
	"github.com/modelmux/modelmux/pkg/model/rulebased"
	"github.com/modelmux/modelmux/pkg/registry"
	"github.com/modelmux/modelmux/pkg/safety"
	"github.com/modelmux/modelmux/pkg/search"
	"github.com/modelmux/modelmux/pkg/server"
	"github.com/modelmux/modelmux/pkg/telemetry"
)

func main() {
	// A missing .env is fine; the environment may be set externally.
	_ = godotenv.Load()

	rt, err := config.LoadRuntime()
	if err != nil {
		panic("failed to load runtime config: " + err.Error())
	}
	log, err := logger.New(rt.LogLevel, rt.Env)
	if err != nil {
		panic("failed to init logger: " + err.Error())
	}
	defer log.Sync() //nolint:errcheck

	if err := run(rt, log); err != nil {
		log.Fatal("modelmux exited", zap.Error(err))
	}
}

func run(rt config.Runtime, log *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loader, err := config.NewLoader(rt.ConfigPath)
	if err != nil {
		return err
	}
	cfg, err := loader.Load()
	if err != nil {
		return err
	}

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		Endpoint:    cfg.Telemetry.Endpoint,
		ServiceName: "modelmux",
		Insecure:    cfg.Telemetry.Insecure,
	})
	if err != nil {
		return err
	}
	defer func() {
		shCtx, shCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shCancel()
		if err := shutdownTelemetry(shCtx); err != nil {
			log.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	descs, err := cfg.Descriptors()
	if err != nil {
		return err
	}
	reg, err := registry.New(descs, cfg.DefaultModel)
	if err != nil {
		return err
	}

	analyzer := analyze.NewBasic()
	daemonClient := &http.Client{Timeout: daemonTimeout(cfg)}
	adapters := dispatch.Adapters{
		model.KindCloudChat:   cloudchat.New(cfg.Cloud.BaseURL, nil),
		model.KindLocalDaemon: localdaemon.New(cfg.Daemon.BaseURL, daemonClient),
		model.KindOnDevice:    ondevice.New(nil),
		model.KindRuleBased:   rulebased.New(analyzer),
	}

	var searcher search.Searcher
	if cfg.Search.Enabled {
		searcher = search.New(cfg.Search.Endpoint, nil)
	}
	var images augment.ImageGenerator
	if cfg.Images.Enabled {
		images = augment.NewURLImageGenerator(cfg.Images.BaseURL)
	}
	// Reading integrations through the loader lets a config reload change
	// the catalog without a restart.
	stage := augment.New(searcher, images, loaderIntegrations{loader}, log)

	dispatcher, err := dispatch.New(reg, adapters, safety.New(), stage, log)
	if err != nil {
		return err
	}

	if err := loader.Watch(ctx, log, nil); err != nil {
		log.Warn("config watch disabled", zap.Error(err))
	}

	srv := &http.Server{
		Addr:    rt.Addr,
		Handler: server.New(dispatcher, reg, log),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("modelmux listening",
			zap.String("addr", rt.Addr),
			zap.String("default_model", cfg.DefaultModel),
			zap.Int("models", len(descs)))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Info("shutdown signal received", zap.String("signal", sig.String()))
	}

	cancel()
	shCtx, shCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shCancel()
	return srv.Shutdown(shCtx)
}

// loaderIntegrations serves the integration catalog from the most recent
// valid configuration.
type loaderIntegrations struct {
	loader *config.Loader
}

func (s loaderIntegrations) Integrations() []augment.Integration {
	cfg, ok := s.loader.Last()
	if !ok {
		return nil
	}
	return cfg.Integrations
}

func daemonTimeout(cfg *config.File) time.Duration {
	if cfg.Daemon.TimeoutSeconds > 0 {
		return time.Duration(cfg.Daemon.TimeoutSeconds) * time.Second
	}
	return 60 * time.Second
}
