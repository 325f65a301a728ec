package gateway

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stellarlinkco/wabot/internal/bus"
	"github.com/stellarlinkco/wabot/internal/channel"
	"github.com/stellarlinkco/wabot/internal/config"
	"github.com/stellarlinkco/wabot/internal/cron"
	"github.com/stellarlinkco/wabot/internal/llm"
	"github.com/stellarlinkco/wabot/internal/memory"
)

// echoGenerator implements router.Generator for testing
type echoGenerator struct{}

func (echoGenerator) Generate(_ context.Context, _ string, _ []memory.Turn, user string) string {
	return "story: " + user
}

func (echoGenerator) Chat(_ context.Context, _ []memory.Turn, user string) string {
	return "chat: " + user
}

func (echoGenerator) Route(_ context.Context, _ []memory.Turn, user string) llm.Directive {
	return llm.Reply("echo: " + user)
}

// captureChannel implements channel.Channel for testing
type captureChannel struct {
	name     string
	startErr error
	out      chan bus.OutboundMessage

	mu      sync.Mutex
	stopped bool
}

func newCaptureChannel(name string) *captureChannel {
	return &captureChannel{name: name, out: make(chan bus.OutboundMessage, 16)}
}

func (c *captureChannel) Name() string                    { return c.name }
func (c *captureChannel) Start(ctx context.Context) error { return c.startErr }

func (c *captureChannel) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	return nil
}

func (c *captureChannel) Send(msg bus.OutboundMessage) error {
	c.out <- msg
	return nil
}

func (c *captureChannel) wait(t *testing.T) bus.OutboundMessage {
	t.Helper()
	select {
	case msg := <-c.out:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for outbound message")
		return bus.OutboundMessage{}
	}
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Channels.WhatsApp.Enabled = false
	cfg.Channels.Telegram.Enabled = false
	cfg.Provider.APIKey = ""
	cfg.Tools.BraveAPIKey = ""
	cfg.Gateway.Port = -1
	cfg.Agent.ReplyDelayMs = 0
	cfg.Agent.StatusDelayMs = 0
	return cfg
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		input string
		n     int
		want  string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is a long message", 10, "this is a ..."},
		{"", 5, ""},
	}

	for _, tt := range tests {
		got := truncate(tt.input, tt.n)
		if got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.input, tt.n, got, tt.want)
		}
	}
}

func TestHealthHandler(t *testing.T) {
	h := healthHandler()
	tests := []struct {
		path string
		code int
		body string
	}{
		{"/", http.StatusOK, "alive"},
		{"/healthz", http.StatusOK, "alive"},
		{"/nope", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if rec.Code != tt.code {
			t.Errorf("GET %s: code = %d, want %d", tt.path, rec.Code, tt.code)
		}
		if tt.body != "" && rec.Body.String() != tt.body {
			t.Errorf("GET %s: body = %q, want %q", tt.path, rec.Body.String(), tt.body)
		}
	}
}

func TestNewWithOptions_NoKeys(t *testing.T) {
	g, err := NewWithOptions(testConfig(), Options{})
	if err != nil {
		t.Fatalf("NewWithOptions error: %v", err)
	}
	defer g.Shutdown()

	if g.Router() == nil {
		t.Fatal("router should be created")
	}
	if len(g.channels.EnabledChannels()) != 0 {
		t.Errorf("channels = %v, want none", g.channels.EnabledChannels())
	}
}

func TestNewWithOptions_BadTimezone(t *testing.T) {
	cfg := testConfig()
	cfg.Agent.Timezone = "Mars/Olympus_Mons"

	g, err := NewWithOptions(cfg, Options{Generator: echoGenerator{}})
	if err != nil {
		t.Fatalf("NewWithOptions error: %v", err)
	}
	if g.clock.Location().String() != "UTC" {
		t.Errorf("location = %s, want UTC fallback", g.clock.Location())
	}
}

func TestNewWithOptions_ChannelManagerError(t *testing.T) {
	cfg := testConfig()
	cfg.Channels.Telegram = config.TelegramConfig{Enabled: true}

	if _, err := NewWithOptions(cfg, Options{Generator: echoGenerator{}}); err == nil {
		t.Fatal("expected error for telegram without token")
	}
}

func TestGateway_DeliverReminder(t *testing.T) {
	g, err := NewWithOptions(testConfig(), Options{Generator: echoGenerator{}})
	if err != nil {
		t.Fatalf("NewWithOptions error: %v", err)
	}

	job := cron.NewJob(cron.Target{Channel: "telegram", ChatID: "12345"}, time.Now(), "⏰ Reminder: stretch")
	if err := g.cron.OnJob(job); err != nil {
		t.Fatalf("OnJob error: %v", err)
	}

	select {
	case msg := <-g.bus.Outbound:
		if msg.Channel != "telegram" || msg.ChatID != "12345" {
			t.Errorf("outbound target = %s/%s", msg.Channel, msg.ChatID)
		}
		if msg.Content != "⏰ Reminder: stretch" {
			t.Errorf("outbound content = %q", msg.Content)
		}
	default:
		t.Fatal("reminder was not published")
	}
}

func TestGateway_Run_EndToEnd(t *testing.T) {
	capture := newCaptureChannel("test")
	sigCh := make(chan os.Signal, 1)

	g, err := NewWithOptions(testConfig(), Options{
		Generator:  echoGenerator{},
		Channels:   []channel.Channel{capture},
		SignalChan: sigCh,
	})
	if err != nil {
		t.Fatalf("NewWithOptions error: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- g.Run(context.Background())
	}()

	send := func(text string) {
		g.bus.Inbound <- bus.InboundMessage{Channel: "test", SenderID: "u1", ChatID: "u1", Content: text}
	}

	send("hello")
	if reply := capture.wait(t); !strings.Contains(reply.Content, "start game") {
		t.Errorf("first reply should be the help menu, got %q", reply.Content)
	}

	send("how are you?")
	if reply := capture.wait(t); reply.Content != "echo: how are you?" {
		t.Errorf("reply = %q", reply.Content)
	}

	// Reminders scheduled through the router's scheduler reach the channel.
	if _, err := g.cron.Schedule(cron.Target{Channel: "test", ChatID: "u1"}, time.Now().Add(100*time.Millisecond), "⏰ Reminder: tea"); err != nil {
		t.Fatalf("Schedule error: %v", err)
	}
	if reply := capture.wait(t); reply.Content != "⏰ Reminder: tea" {
		t.Errorf("reminder = %q", reply.Content)
	}

	sigCh <- os.Interrupt
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not exit after signal")
	}

	capture.mu.Lock()
	defer capture.mu.Unlock()
	if !capture.stopped {
		t.Error("channel should be stopped after shutdown")
	}
}

func TestGateway_Run_ContextCancelled(t *testing.T) {
	g, err := NewWithOptions(testConfig(), Options{Generator: echoGenerator{}, SignalChan: make(chan os.Signal)})
	if err != nil {
		t.Fatalf("NewWithOptions error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- g.Run(ctx)
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not exit after cancel")
	}
}

func TestGateway_Run_ChannelStartError(t *testing.T) {
	failing := newCaptureChannel("broken")
	failing.startErr = fmt.Errorf("start failed")

	g, err := NewWithOptions(testConfig(), Options{
		Generator:  echoGenerator{},
		Channels:   []channel.Channel{failing},
		SignalChan: make(chan os.Signal, 1),
	})
	if err != nil {
		t.Fatalf("NewWithOptions error: %v", err)
	}

	if err := g.Run(context.Background()); err == nil {
		t.Error("expected error from channel start")
	}
}

func TestStartHealth_Disabled(t *testing.T) {
	g, err := NewWithOptions(testConfig(), Options{Generator: echoGenerator{}})
	if err != nil {
		t.Fatalf("NewWithOptions error: %v", err)
	}
	if err := g.startHealth(); err != nil {
		t.Fatalf("startHealth error: %v", err)
	}
	if g.health != nil {
		t.Error("negative port should not start the liveness endpoint")
	}
}

func TestStartHealth_Serves(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	cfg := testConfig()
	cfg.Gateway.Host = "127.0.0.1"
	cfg.Gateway.Port = port
	g, err := NewWithOptions(cfg, Options{Generator: echoGenerator{}})
	if err != nil {
		t.Fatalf("NewWithOptions error: %v", err)
	}
	if err := g.startHealth(); err != nil {
		t.Fatalf("startHealth error: %v", err)
	}
	defer g.Shutdown()

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/healthz", port))
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "alive" {
		t.Errorf("GET /healthz = %d %q", resp.StatusCode, body)
	}
}

func TestGateway_Run_ShutdownWhileReceiving(t *testing.T) {
	capture := newCaptureChannel("test")
	sigCh := make(chan os.Signal, 1)

	g, err := NewWithOptions(testConfig(), Options{
		Generator:  echoGenerator{},
		Channels:   []channel.Channel{capture},
		SignalChan: sigCh,
	})
	if err != nil {
		t.Fatalf("NewWithOptions error: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- g.Run(context.Background())
	}()

	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-capture.out:
			case <-stop:
				return
			}
		}
	}()
	var senders sync.WaitGroup
	for i := 0; i < 4; i++ {
		senders.Add(1)
		go func(i int) {
			defer senders.Done()
			chat := fmt.Sprintf("u%d", i)
			for {
				select {
				case <-stop:
					return
				case g.bus.Inbound <- bus.InboundMessage{Channel: "test", SenderID: chat, ChatID: chat, Content: "ping"}:
				}
			}
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	sigCh <- os.Interrupt

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not exit while inbound messages kept arriving")
	}
	close(stop)
	senders.Wait()

	select {
	case <-g.loopDone:
	default:
		t.Error("inbound loop still running after Run returned")
	}
	if n := g.dispatch.Pending(); n != 0 {
		t.Errorf("Pending = %d after Run returned, want 0", n)
	}
}
