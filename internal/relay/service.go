package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/loqalabs/loqa-mic/internal/channel"
	"github.com/loqalabs/loqa-mic/internal/config"
	"github.com/nats-io/nats.go"
)

// Service is the network-capable side of the transport channel. It accepts
// channels over websocket and NATS and serves each one with a Forwarder.
type Service struct {
	cfg      config.RelayConfig
	fwd      channel.Forwarder
	maxBytes int
	listener *channel.NATSListener
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	served   atomic.Int64
	logger   *slog.Logger
}

func NewService(parent context.Context, cfg config.RelayConfig, fwd channel.Forwarder, maxMessageBytes int, log *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		cfg:      cfg,
		fwd:      fwd,
		maxBytes: maxMessageBytes,
		ctx:      ctx,
		cancel:   cancel,
		logger:   log.With(slog.String("component", "relay")),
	}
}

// Handler upgrades HTTP requests on the relay path into channels.
func (s *Service) Handler() http.Handler {
	return channel.NewWebSocketHandler(s.maxBytes, func(ctx context.Context, conn channel.Conn) {
		s.serve(ctx, conn, "websocket")
	}, s.logger)
}

// ListenNATS starts accepting channels on the configured subject prefix.
func (s *Service) ListenNATS(nc *nats.Conn) error {
	listener, err := channel.ListenNATS(nc, s.cfg.NATSSubject, s.logger)
	if err != nil {
		return fmt.Errorf("relay nats listener: %w", err)
	}
	s.listener = listener

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := listener.Accept(s.ctx)
			if err != nil {
				if !errors.Is(err, channel.ErrClosed) && !errors.Is(err, context.Canceled) {
					s.logger.Warn("relay accept failed", slogError(err))
				}
				return
			}
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.serve(s.ctx, conn, "nats")
			}()
		}
	}()
	s.logger.Info("relay listening on nats", slog.String("subject", s.cfg.NATSSubject+".*.up"))
	return nil
}

func (s *Service) serve(ctx context.Context, conn channel.Conn, transport string) {
	err := channel.Serve(ctx, conn, s.fwd, channel.ServeOptions{
		MinPayloadBytes: s.cfg.MinPayloadBytes,
		StrictLength:    s.cfg.StrictLength,
		Logger:          s.logger.With(slog.String("transport", transport)),
	})
	s.served.Add(1)
	if err != nil {
		s.logger.Warn("channel ended without a response", slog.String("transport", transport), slogError(err))
	}
}

// Served counts channels handled so far.
func (s *Service) Served() int64 { return s.served.Load() }

func (s *Service) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
}

func (s *Service) Healthy() bool {
	return s.ctx.Err() == nil
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
