package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loqalabs/loqa-mic/internal/analysis"
	"github.com/loqalabs/loqa-mic/internal/bus"
	"github.com/loqalabs/loqa-mic/internal/config"
	"github.com/loqalabs/loqa-mic/internal/eventstore"
	"github.com/loqalabs/loqa-mic/internal/ingest"
	"github.com/loqalabs/loqa-mic/internal/llm"
	"github.com/loqalabs/loqa-mic/internal/natsserver"
	"github.com/loqalabs/loqa-mic/internal/pipeline"
	"github.com/loqalabs/loqa-mic/internal/relay"
	"github.com/loqalabs/loqa-mic/internal/storage"
	"github.com/loqalabs/loqa-mic/internal/stt"
	"github.com/loqalabs/loqa-mic/internal/transcode"
)

// Runtime owns the daemon's lifecycle: telemetry, the ingest API, the relay
// endpoint and, when enabled, the NATS transport.
type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	httpServer  *http.Server
	tracerClose func(context.Context) error
	ready       atomic.Bool
	wg          sync.WaitGroup

	events   *eventstore.Store
	pipe     *pipeline.Pipeline
	relay    *relay.Service
	bus      *bus.Client
	embedded *natsserver.EmbeddedServer
	handler  http.Handler
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	handler, err := r.setup(ctx, metricsHandler)
	if err != nil {
		r.teardown()
		return err
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
			cancel()
		}
	}()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.pruneLoop(ctx)
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", addr))

	<-ctx.Done()
	r.ready.Store(false)
	r.logger.Info("runtime stopping")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()
	r.teardown()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

// setup wires every component and returns the root handler.
func (r *Runtime) setup(ctx context.Context, metricsHandler http.Handler) (http.Handler, error) {
	events, err := eventstore.Open(ctx, r.cfg.EventStore, r.logger.With(slog.String("component", "eventstore")))
	if err != nil {
		return nil, fmt.Errorf("open event store: %w", err)
	}
	r.events = events

	pipe, err := r.buildPipeline(ctx)
	if err != nil {
		return nil, err
	}
	r.pipe = pipe

	api, err := ingest.NewServer(ingest.OptionsFromConfig(r.cfg), pipe, r.logger)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	api.Register(mux)
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}

	if r.cfg.Relay.Enabled {
		fwd := relay.NewHTTPForwarder(r.cfg.Relay, r.logger)
		r.relay = relay.NewService(ctx, r.cfg.Relay, fwd, natsserver.MaxPayload, r.logger)
		mux.Handle(r.cfg.Relay.Path, r.relay.Handler())
	}

	if r.cfg.Bus.Enabled {
		if err := r.startBus(ctx); err != nil {
			return nil, err
		}
	}

	r.handler = ingest.Wrap(mux, r.logger)
	return r.handler, nil
}

func (r *Runtime) buildPipeline(ctx context.Context) (*pipeline.Pipeline, error) {
	transcoder, err := transcode.NewFFmpeg(r.cfg.Transcode)
	if err != nil {
		return nil, err
	}
	if !transcoder.Available() {
		r.logger.Warn("ffmpeg not found on PATH; uploads will fail to convert", slog.String("command", r.cfg.Transcode.Command))
	}

	recognizer, err := stt.New(r.cfg.STT)
	if err != nil {
		return nil, fmt.Errorf("init stt: %w", err)
	}

	deps := pipeline.Deps{
		Transcoder: transcoder,
		Recognizer: recognizer,
		Events:     r.events,
	}

	if r.cfg.LLM.Enabled {
		generator, err := llm.New(ctx, r.cfg.LLM)
		if err != nil {
			return nil, fmt.Errorf("init llm: %w", err)
		}
		deps.Generator = generator
	}

	if r.cfg.Analysis.PersistLatest {
		store, err := storage.Open(ctx, r.cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("open analysis storage: %w", err)
		}
		deps.Sink = analysis.NewSink(store, r.cfg.Analysis.RecordName, r.logger)
	}

	return pipeline.New(deps, pipeline.OptionsFromConfig(r.cfg), r.logger), nil
}

func (r *Runtime) startBus(ctx context.Context) error {
	busCfg := r.cfg.Bus
	if busCfg.Embedded {
		srv, err := natsserver.Start(busCfg, r.logger.With(slog.String("component", "natsserver")))
		if err != nil {
			return err
		}
		r.embedded = srv
		busCfg.Servers = []string{srv.ClientURL()}
	}
	client, err := bus.Connect(ctx, r.cfg.RuntimeName, busCfg, r.logger.With(slog.String("component", "bus")))
	if err != nil {
		return err
	}
	r.bus = client
	if r.relay == nil {
		return errors.New("bus transport requires relay.enabled")
	}
	return r.relay.ListenNATS(client.Conn())
}

func (r *Runtime) pruneLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.events.Prune(ctx); err != nil {
				r.logger.Warn("event store prune failed", slog.String("error", err.Error()))
			}
		}
	}
}

func (r *Runtime) teardown() {
	if r.relay != nil {
		r.relay.Close()
	}
	if r.bus != nil {
		r.bus.Close()
	}
	if r.embedded != nil {
		r.embedded.Shutdown()
	}
	if r.events != nil {
		if err := r.events.Close(); err != nil {
			r.logger.Warn("event store close failed", slog.String("error", err.Error()))
		}
	}
}

func (r *Runtime) healthy() bool {
	if r.relay != nil && !r.relay.Healthy() {
		return false
	}
	if r.cfg.Bus.Enabled && !r.bus.Healthy() {
		return false
	}
	return true
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type readiness struct {
	Status        string `json:"status"`
	Generation    bool   `json:"generation"`
	RelayChannels int64  `json:"relay_channels"`
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() && r.healthy() {
		body := readiness{Status: "ready"}
		if r.pipe != nil {
			body.Generation = r.pipe.GenerationEnabled()
		}
		if r.relay != nil {
			body.RelayChannels = r.relay.Served()
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(body)
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
