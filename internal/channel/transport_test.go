package channel

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/loqalabs/loqa-mic/internal/config"
	"github.com/loqalabs/loqa-mic/internal/fault"
	"github.com/loqalabs/loqa-mic/internal/natsserver"
	"github.com/nats-io/nats.go"
)

func TestWebSocketRoundTrip(t *testing.T) {
	fwd := &recordingForwarder{reply: UploadSuccess{Transcription: "over websocket", OriginalFileName: "rec.ogg"}}
	handler := NewWebSocketHandler(1<<20, func(ctx context.Context, conn Conn) {
		_ = Serve(ctx, conn, fwd, ServeOptions{MinPayloadBytes: 1024, StrictLength: true, Logger: testLogger()})
	}, testLogger())
	srv := httptest.NewServer(handler)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, err := WebSocketDialer(url).Dial(ctx)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	client := NewClient(conn)
	defer client.Close()

	res, err := client.Upload(ctx, UploadRequest{Payload: payload(4096), DeclaredSize: 4096, MimeType: "audio/ogg;codecs=opus", FileName: "rec.ogg"})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if res.Transcription != "over websocket" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestWebSocketDisconnectSurfacesConnectionLost(t *testing.T) {
	handler := NewWebSocketHandler(0, func(ctx context.Context, conn Conn) {
		_, _ = conn.Receive(ctx)
	}, testLogger())
	srv := httptest.NewServer(handler)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := DialWebSocket(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	_, err = NewClient(conn).Upload(ctx, UploadRequest{Payload: payload(2048), DeclaredSize: 2048})
	if err == nil || !strings.Contains(err.Error(), ConnectionLost) {
		t.Fatalf("expected connection lost, got %v", err)
	}
}

func TestNATSRoundTrip(t *testing.T) {
	ns, err := natsserver.Start(config.BusConfig{Embedded: true, Port: -1}, testLogger())
	if err != nil {
		t.Fatalf("start nats: %v", err)
	}
	defer ns.Shutdown()

	serverConn, err := nats.Connect(ns.ClientURL())
	if err != nil {
		t.Fatalf("connect relay: %v", err)
	}
	defer serverConn.Close()
	clientConn, err := nats.Connect(ns.ClientURL())
	if err != nil {
		t.Fatalf("connect capture: %v", err)
	}
	defer clientConn.Close()

	listener, err := ListenNATS(serverConn, "mic.channel", testLogger())
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer listener.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	fwd := &recordingForwarder{reply: UploadSuccess{Transcription: "over nats", OriginalFileName: "rec.wav"}}
	go func() {
		conn, err := listener.Accept(ctx)
		if err != nil {
			return
		}
		_ = Serve(ctx, conn, fwd, ServeOptions{MinPayloadBytes: 1024, StrictLength: true, Logger: testLogger()})
	}()

	conn, err := NATSDialer(clientConn, "mic.channel").Dial(ctx)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	client := NewClient(conn)
	defer client.Close()

	data := payload(200 * 1024)
	res, err := client.Upload(ctx, UploadRequest{Payload: data, DeclaredSize: len(data), MimeType: "audio/wav", FileName: "rec.wav"})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if res.Transcription != "over nats" {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(fwd.got) != 1 || len(fwd.got[0].Payload) != len(data) {
		t.Fatalf("relay did not see the full payload")
	}
}

func startNATS(t *testing.T) *natsserver.EmbeddedServer {
	t.Helper()
	ns, err := natsserver.Start(config.BusConfig{Embedded: true, Port: -1}, testLogger())
	if err != nil {
		t.Fatalf("start nats: %v", err)
	}
	t.Cleanup(ns.Shutdown)
	return ns
}

func TestNATSDialWithoutRelayFailsFast(t *testing.T) {
	ns := startNATS(t)
	nc, err := nats.Connect(ns.ClientURL())
	if err != nil {
		t.Fatalf("connect capture: %v", err)
	}
	defer nc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	start := time.Now()
	if _, err := DialNATS(ctx, nc, "mic.channel"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected closed channel without a relay, got %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("dial took %s", time.Since(start))
	}
}

func TestNATSRelayLossSurfacesConnectionLost(t *testing.T) {
	prev := natsLiveness
	natsLiveness = 100 * time.Millisecond
	t.Cleanup(func() { natsLiveness = prev })

	ns := startNATS(t)
	serverConn, err := nats.Connect(ns.ClientURL())
	if err != nil {
		t.Fatalf("connect relay: %v", err)
	}
	defer serverConn.Close()
	clientConn, err := nats.Connect(ns.ClientURL())
	if err != nil {
		t.Fatalf("connect capture: %v", err)
	}
	defer clientConn.Close()

	listener, err := ListenNATS(serverConn, "mic.channel", testLogger())
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer listener.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// The relay takes the upload and then vanishes without answering.
	go func() {
		if _, err := listener.Accept(ctx); err != nil {
			return
		}
		serverConn.Close()
	}()

	conn, err := NATSDialer(clientConn, "mic.channel").Dial(ctx)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	client := NewClient(conn)
	defer client.Close()

	start := time.Now()
	_, err = client.Upload(ctx, UploadRequest{Payload: payload(2048), DeclaredSize: 2048, MimeType: "audio/wav"})
	fe, ok := fault.As(err)
	if !ok || fe.Message != ConnectionLost {
		t.Fatalf("expected connection lost, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("relay loss took %s to surface", time.Since(start))
	}
}
