package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/stellarlinkco/wabot/internal/bus"
	"github.com/stellarlinkco/wabot/internal/channel"
	"github.com/stellarlinkco/wabot/internal/clock"
	"github.com/stellarlinkco/wabot/internal/config"
	"github.com/stellarlinkco/wabot/internal/cron"
	"github.com/stellarlinkco/wabot/internal/game"
	"github.com/stellarlinkco/wabot/internal/llm"
	"github.com/stellarlinkco/wabot/internal/router"
	"github.com/stellarlinkco/wabot/internal/search"
)

const deliveryTimeout = 10 * time.Second

// Options for creating a Gateway
type Options struct {
	// Generator replaces the configured model provider.
	Generator router.Generator
	// Searcher replaces the Brave client.
	Searcher router.Searcher
	// Channels are registered in addition to the configured transports.
	Channels []channel.Channel
	// Logger defaults to a disabled logger.
	Logger     zerolog.Logger
	SignalChan chan os.Signal // for testing signal handling
}

type Gateway struct {
	cfg        *config.Config
	bus        *bus.MessageBus
	clock      *clock.Clock
	router     *router.Router
	channels   *channel.ChannelManager
	cron       *cron.Service
	dispatch   *dispatcher
	loopDone   chan struct{}
	health     *http.Server
	signalChan chan os.Signal
	log        zerolog.Logger
}

// New creates a Gateway with default options
func New(cfg *config.Config) (*Gateway, error) {
	return NewWithOptions(cfg, Options{})
}

// NewWithOptions creates a Gateway with custom options for testing
func NewWithOptions(cfg *config.Config, opts Options) (*Gateway, error) {
	logger := opts.Logger
	g := &Gateway{
		cfg:        cfg,
		signalChan: opts.SignalChan,
		log:        logger.With().Str("component", "gateway").Logger(),
	}

	clk, err := clock.New(cfg.Agent.Timezone)
	if err != nil {
		g.log.Warn().Err(err).Msg("falling back to UTC")
		clk, _ = clock.New("UTC")
	}
	g.clock = clk

	g.bus = bus.NewMessageBus(config.DefaultBufSize)

	gen := opts.Generator
	if gen == nil {
		llmGen := llm.NewFromConfig(cfg, clk, logger)
		if !llmGen.Enabled() {
			g.log.Warn().Msg("no model API key configured; chat replies are disabled")
		}
		gen = llmGen
	}

	searcher := opts.Searcher
	if searcher == nil {
		if cfg.Tools.BraveAPIKey == "" {
			g.log.Warn().Msg("no search API key configured; web search is disabled")
		}
		searcher = search.NewBrave(search.Config{
			APIKey:  cfg.Tools.BraveAPIKey,
			Results: cfg.Tools.SearchResults,
			Timeout: time.Duration(cfg.Tools.SearchTimeoutSec) * time.Second,
		})
	}

	g.cron = cron.NewService(clk.Location(), logger)
	g.cron.OnJob = g.deliverReminder

	games, err := game.Default()
	if err != nil {
		return nil, fmt.Errorf("load games: %w", err)
	}

	g.router, err = router.New(router.Deps{
		Generator: gen,
		Searcher:  searcher,
		Scheduler: g.cron,
		Sender:    g.bus,
		Clock:     clk,
		Games:     games,
		Logger:    logger,
	}, router.Options{
		MemoryLimit:     cfg.Agent.MemoryLimit,
		GameMemoryLimit: cfg.Agent.GameMemoryLimit,
		ReplyDelay:      time.Duration(cfg.Agent.ReplyDelayMs) * time.Millisecond,
		StatusDelay:     time.Duration(cfg.Agent.StatusDelayMs) * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("create router: %w", err)
	}
	g.dispatch = newDispatcher(g.router, g.log)

	chMgr, err := channel.NewChannelManager(cfg.Channels, g.bus, logger)
	if err != nil {
		return nil, fmt.Errorf("create channel manager: %w", err)
	}
	for _, ch := range opts.Channels {
		chMgr.Register(ch)
	}
	g.channels = chMgr

	return g, nil
}

// Router exposes the conversation router, e.g. for state inspection.
func (g *Gateway) Router() *router.Router {
	return g.router
}

func (g *Gateway) deliverReminder(job cron.Job) error {
	ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
	defer cancel()
	return g.bus.Publish(ctx, bus.OutboundMessage{
		Channel: job.Target.Channel,
		ChatID:  job.Target.ChatID,
		Content: job.Body,
	})
}

func (g *Gateway) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go g.bus.DispatchOutbound(ctx)

	if err := g.channels.StartAll(ctx); err != nil {
		return fmt.Errorf("start channels: %w", err)
	}
	g.log.Info().Strs("channels", g.channels.EnabledChannels()).Msg("channels started")

	if err := g.cron.Start(ctx); err != nil {
		g.log.Warn().Err(err).Msg("cron start")
	}

	if err := g.startHealth(); err != nil {
		return fmt.Errorf("start health endpoint: %w", err)
	}

	g.loopDone = make(chan struct{})
	go g.processLoop(ctx, g.loopDone)

	g.log.Info().Str("addr", g.addr()).Msg("running")

	// Use injected signal channel for testing, or create default
	sigCh := g.signalChan
	if sigCh == nil {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)
	}
	select {
	case <-sigCh:
	case <-ctx.Done():
	}

	g.log.Info().Msg("shutting down...")
	cancel()
	// No Submit may race the dispatcher's Wait.
	<-g.loopDone
	g.dispatch.Wait()
	return g.Shutdown()
}

func (g *Gateway) processLoop(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case msg := <-g.bus.Inbound:
			g.log.Debug().Str("channel", msg.Channel).Str("sender", msg.SenderID).
				Str("text", truncate(msg.Content, 80)).Msg("inbound")
			if ctx.Err() != nil {
				return
			}
			g.dispatch.Submit(ctx, msg)
		case <-ctx.Done():
			return
		}
	}
}

func (g *Gateway) addr() string {
	return net.JoinHostPort(g.cfg.Gateway.Host, strconv.Itoa(g.cfg.Gateway.Port))
}

// startHealth serves the liveness endpoint. A negative port disables it.
func (g *Gateway) startHealth() error {
	if g.cfg.Gateway.Port < 0 {
		return nil
	}
	ln, err := net.Listen("tcp", g.addr())
	if err != nil {
		return err
	}
	g.health = &http.Server{
		Handler:           healthHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := g.health.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.log.Error().Err(err).Msg("health endpoint")
		}
	}()
	return nil
}

func healthHandler() http.Handler {
	mux := http.NewServeMux()
	alive := func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" && r.URL.Path != "/healthz" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("alive"))
	}
	mux.HandleFunc("/", alive)
	return mux
}

func (g *Gateway) Shutdown() error {
	g.cron.Stop()
	if g.health != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := g.health.Shutdown(ctx); err != nil {
			g.log.Warn().Err(err).Msg("close health endpoint")
		}
		cancel()
		g.health = nil
	}
	_ = g.channels.StopAll()
	g.log.Info().Msg("shutdown complete")
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
