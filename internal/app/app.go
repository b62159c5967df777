// Package app wires the service together: configuration, logging, the
// recognition runner and its gRPC and HTTP transports.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	grpcapi "speech-recognition-bridge/internal/api/grpc"
	wsapi "speech-recognition-bridge/internal/api/ws"
	"speech-recognition-bridge/internal/config"
	"speech-recognition-bridge/internal/events"
	"speech-recognition-bridge/internal/observability"
	"speech-recognition-bridge/internal/observability/logging"
	"speech-recognition-bridge/internal/observability/metrics"
	"speech-recognition-bridge/internal/schema"
	"speech-recognition-bridge/internal/service/device"
	"speech-recognition-bridge/internal/service/listen"
	"speech-recognition-bridge/internal/service/stt"
	"speech-recognition-bridge/internal/service/stt/google"
	"speech-recognition-bridge/internal/service/stt/mock"
)

const shutdownTimeout = 10 * time.Second

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Config
	Locale      *config.Locale

	publisher     *events.Publisher
	results       *events.AsyncPublisher
	closeProvider func() error
	grpcServer    *grpc.Server
	healthServer  *health.Server
	httpServer    *observability.Server
}

// New constructs the application from cfg. Nothing listens until Run.
func New(ctx context.Context, cfg *config.Config) (*Application, error) {
	logging.Init(logging.Config{
		Level:      cfg.Observability.LogLevel,
		Format:     cfg.Observability.LogFormat,
		TimeFormat: time.RFC3339,
		File:       cfg.Observability.LogFile,
	})

	a := &Application{
		Cfg:    cfg,
		Logger: logging.WithComponent("application"),
	}

	locale, err := config.LoadLocale(cfg.Locale.File, cfg.Locale.Language)
	if err != nil {
		return nil, err
	}
	a.Locale = locale

	factory, closeProvider, err := newProvider(ctx, cfg.STT)
	if err != nil {
		return nil, err
	}
	a.closeProvider = closeProvider

	validator, err := schema.New()
	if err != nil {
		return nil, err
	}

	a.publisher = events.New(&events.Config{
		Enabled:      cfg.Kafka.Enabled,
		Brokers:      cfg.Kafka.Brokers,
		TopicPartial: cfg.Kafka.TopicPartial,
		TopicFinal:   cfg.Kafka.TopicFinal,
		Principal:    cfg.Kafka.Principal,
	})
	a.results = events.NewAsyncPublisher(a.publisher, events.AsyncConfig{
		QueueSize: cfg.Kafka.QueueSize,
		Timeout:   cfg.Kafka.Timeout,
	})

	runner := listen.NewRunner(listen.Config{
		Locale:  locale,
		Factory: factory,
		Device: device.Config{
			NoInputTimeout: cfg.Device.NoInputTimeout,
			StopGrace:      cfg.Device.StopGrace,
			Limits: device.Limits{
				MaxAudioBytes: cfg.SessionLimits.MaxAudioBytes,
				MaxDuration:   cfg.SessionLimits.MaxDuration,
				MaxPartials:   cfg.SessionLimits.MaxPartials,
			},
			Provider: cfg.STT.Provider,
		},
		LanguageUnavailableSupported: cfg.Locale.LanguageUnavailableSupported,
		Publisher:                    a.results,
		Validator:                    validator,
		Metrics:                      metrics.DefaultMetrics,
	})

	grpcLog := logging.WithComponent("grpc")
	a.grpcServer = grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(observability.UnaryServerInterceptor(grpcLog)),
		grpc.ChainStreamInterceptor(observability.StreamServerInterceptor(grpcLog, metrics.DefaultMetrics)),
	)

	// Register gRPC health check service
	a.healthServer = health.NewServer()
	grpc_health_v1.RegisterHealthServer(a.grpcServer, a.healthServer)

	// Register application services
	grpcapi.Register(a.grpcServer, runner)

	// Enable gRPC reflection for debugging tools like grpcurl
	reflection.Register(a.grpcServer)

	a.httpServer = observability.NewServer(cfg.Service.HTTPAddr, prometheus.DefaultGatherer, logging.WithComponent("http"))
	a.httpServer.Handle(wsapi.Path, wsapi.NewHandler(runner))

	a.Logger.Info().
		Str("sttProvider", cfg.STT.Provider).
		Str("language", locale.Language()).
		Str("localeFile", cfg.Locale.File).
		Bool("kafka", cfg.Kafka.Enabled).
		Msg("Speech recognition bridge application created")
	return a, nil
}

// newProvider builds the STT factory selected by cfg and its cleanup.
func newProvider(ctx context.Context, cfg config.STTConfig) (stt.Factory, func() error, error) {
	switch cfg.Provider {
	case "google":
		p, err := google.NewProvider(ctx, google.Config{
			SampleRateHz:    cfg.SampleRateHz,
			InterimResults:  cfg.InterimResults,
			AudioEncoding:   cfg.AudioEncoding,
			MaxAlternatives: cfg.MaxAlternatives,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("app: create google STT provider: %w", err)
		}
		return p.New, p.Close, nil
	case "mock", "":
		return mock.NewFactory(nil, cfg.MockDelay).New, func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("app: unknown STT provider %q", cfg.Provider)
	}
}

// Run serves gRPC and HTTP until ctx ends or a server fails, then shuts down.
func (a *Application) Run(ctx context.Context) error {
	a.StartupTime = time.Now().UTC()
	a.Logger.Info().
		Time("startupTime", a.StartupTime).
		Msg("Speech recognition bridge starting")

	lis, err := net.Listen("tcp", ":"+a.Cfg.Service.GRPCPort)
	if err != nil {
		return fmt.Errorf("app: listen: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		if err := a.Locale.Watch(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("Locale watcher stopped")
		}
	}()

	a.httpServer.Start()

	serveErr := make(chan error, 1)
	go func() {
		a.Logger.Info().Str("port", a.Cfg.Service.GRPCPort).Msg("gRPC server started")
		serveErr <- a.grpcServer.Serve(lis)
	}()

	a.healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	a.healthServer.SetServingStatus(grpcapi.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	a.httpServer.SetReady(true)

	select {
	case <-ctx.Done():
		a.shutdown()
		return nil
	case err := <-serveErr:
		a.shutdown()
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("app: grpc serve: %w", err)
		}
		return nil
	}
}

// shutdown performs a best-effort cleanup before process exit.
func (a *Application) shutdown() {
	a.Logger.Info().Msg("Speech recognition bridge shutting down")

	a.healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.httpServer.Shutdown(ctx); err != nil {
		a.Logger.Warn().Err(err).Msg("HTTP server shutdown")
	}

	stopped := make(chan struct{})
	go func() {
		a.grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-ctx.Done():
		a.grpcServer.Stop()
	}

	if err := a.results.Close(ctx); err != nil {
		a.Logger.Warn().Err(err).Msg("Result queue not drained")
	}
	if err := a.publisher.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Publisher close")
	}
	if err := a.closeProvider(); err != nil {
		a.Logger.Warn().Err(err).Msg("STT provider close")
	}
}
