package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"afyaband-ml/internal/cfg"
	"afyaband-ml/internal/features"
	"afyaband-ml/internal/logging"
	"afyaband-ml/internal/metrics"
	"afyaband-ml/internal/ml"
	"afyaband-ml/internal/risk"
	"afyaband-ml/internal/server"
	"afyaband-ml/internal/service"
	"afyaband-ml/internal/storage"
	"afyaband-ml/internal/stream"
)

func main() {
	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	if err := logging.Setup(c.EffectiveLogLevel(), c.LogFormat); err != nil {
		log.Fatal().Err(err).Msg("logger setup failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	mw := metrics.NewWrapper(m)

	registry, status := ml.Load(loaderConfig(c), mw)
	log.Info().Interface("models_loaded", status).Msg("Model loading finished")
	if !registry.AnyAvailable() {
		log.Warn().Msg("No models loaded, prediction endpoints will return 503")
	}

	pipeline := ml.NewPipeline(registry, features.Defaults{Age: c.DefaultAge, BMI: c.DefaultBMI}, mw)
	interpreter := risk.NewInterpreter(c.Thresholds())
	svc := service.New(pipeline, interpreter, mw)

	if store := initializeStorage(c); store != nil {
		defer store.Close()
		svc.SetStorage(store)
	}

	streamHandler := stream.NewHandler(svc, stream.Config{
		Window:      c.StreamWindow,
		MinReadings: c.StreamMinReadings,
		CheckOrigin: server.OriginChecker(c.CORSOrigins),
	}, mw)

	srv := server.New(server.Config{Addr: c.Addr(), CORSOrigins: c.CORSOrigins}, svc, streamHandler, promhttp.Handler(), mw)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("server failed")
		}
	}

	log.Info().Msg("shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), c.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("shutdown timeout, forcing exit")
	}
}

func loaderConfig(c cfg.Settings) ml.LoaderConfig {
	return ml.LoaderConfig{
		Dir: c.ModelsDir,
		Files: map[string]string{
			ml.RandomForest: c.RandomForestFile,
			ml.XGBoost:      c.XGBoostFile,
		},
		Python: ml.PythonOptions{
			PythonPath: c.PythonPath,
			Timeout:    c.InferenceTimeout,
		},
		EnableSurrogates: c.EnableSurrogates,
	}
}

// initializeStorage opens the history store if DATA_PATH is configured
func initializeStorage(c cfg.Settings) *storage.Store {
	if c.DataPath == "" {
		return nil
	}
	store, err := storage.New(c.DataPath)
	if err != nil {
		log.Warn().Err(err).Msg("storage initialization failed, continuing without history")
		return nil
	}
	log.Info().Str("path", store.Path()).Msg("Assessment history enabled")
	return store
}
