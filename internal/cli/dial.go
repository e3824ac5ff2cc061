package cli

import (
	"context"
	"fmt"

	"github.com/loqalabs/loqa-mic/internal/bus"
	"github.com/loqalabs/loqa-mic/internal/channel"
	"github.com/loqalabs/loqa-mic/internal/config"
)

// dialer returns the channel dialer for the configured transport and a func
// releasing whatever connection backs it.
func (d *Dependencies) dialer(ctx context.Context) (channel.Dialer, func(), error) {
	cfg := d.Config.Capture
	switch cfg.Transport {
	case "", "websocket":
		if cfg.ChannelURL == "" {
			return nil, nil, fmt.Errorf("capture.channel_url must be set for the websocket transport")
		}
		return channel.WebSocketDialer(cfg.ChannelURL), func() {}, nil
	case "nats":
		client, err := bus.Connect(ctx, "loqa-mic", config.BusConfig{
			Servers:        []string{cfg.NATSURL},
			ConnectTimeout: d.Config.Bus.ConnectTimeout,
			Username:       d.Config.Bus.Username,
			Password:       d.Config.Bus.Password,
			Token:          d.Config.Bus.Token,
			TLSInsecure:    d.Config.Bus.TLSInsecure,
		}, d.Logger)
		if err != nil {
			return nil, nil, err
		}
		return channel.NATSDialer(client.Conn(), cfg.NATSSubject), client.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown capture transport %q", cfg.Transport)
	}
}
