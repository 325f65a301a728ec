package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/stellarlinkco/wabot/internal/bus"
	"github.com/stellarlinkco/wabot/internal/clock"
	"github.com/stellarlinkco/wabot/internal/config"
	"github.com/stellarlinkco/wabot/internal/cron"
	"github.com/stellarlinkco/wabot/internal/game"
	"github.com/stellarlinkco/wabot/internal/gateway"
	"github.com/stellarlinkco/wabot/internal/llm"
	"github.com/stellarlinkco/wabot/internal/router"
	"github.com/stellarlinkco/wabot/internal/search"
)

const (
	chatChannel = "cli"
	chatID      = "local"
)

// ChatOptions for running the chat REPL with custom dependencies
type ChatOptions struct {
	Generator router.Generator
	Searcher  router.Searcher
	Stdin     io.Reader
	Stdout    io.Writer
	Stderr    io.Writer
}

var rootCmd = &cobra.Command{
	Use:   "wabot",
	Short: "wabot - conversational WhatsApp assistant",
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the bot locally, in single message or REPL mode",
	RunE:  runChat,
}

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Start the gateway (WhatsApp/Telegram + reminders)",
	RunE:  runGateway,
}

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize config",
	RunE:  runOnboard,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show wabot status",
	RunE:  runStatus,
}

var messageFlag string

func init() {
	chatCmd.Flags().StringVarP(&messageFlag, "message", "m", "", "Single message to send")
	rootCmd.AddCommand(chatCmd, gatewayCmd, onboardCmd, statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newLogger builds the root console logger and installs it as the global one.
func newLogger(level string, w io.Writer) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}).
		Level(lvl).With().Timestamp().Logger()
	log.Logger = logger
	return logger
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg.Log.Level, os.Stderr)

	gw, err := gateway.NewWithOptions(cfg, gateway.Options{Logger: logger})
	if err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}

	return gw.Run(context.Background())
}

// lineSender prints outbound messages; receipts have nothing to show.
type lineSender struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *lineSender) Publish(_ context.Context, msg bus.OutboundMessage) error {
	if msg.Receipt != nil || msg.Content == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintf(s.w, "%s\n", msg.Content)
	return err
}

// runChat is the command handler that uses default options
func runChat(cmd *cobra.Command, args []string) error {
	return runChatWithOptions(ChatOptions{})
}

// runChatWithOptions drives the router from stdin with injectable dependencies for testing
func runChatWithOptions(opts ChatOptions) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	stdin := opts.Stdin
	if stdin == nil {
		stdin = os.Stdin
	}
	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}
	logger := newLogger(cfg.Log.Level, stderr).Level(zerolog.WarnLevel)

	clk, err := clock.New(cfg.Agent.Timezone)
	if err != nil {
		logger.Warn().Err(err).Msg("falling back to UTC")
		clk, _ = clock.New("UTC")
	}

	gen := opts.Generator
	if gen == nil {
		llmGen := llm.NewFromConfig(cfg, clk, logger)
		if !llmGen.Enabled() {
			return fmt.Errorf("API key not set. Run 'wabot onboard' or set WABOT_API_KEY / OPENROUTER_API_KEY")
		}
		gen = llmGen
	}
	searcher := opts.Searcher
	if searcher == nil {
		searcher = search.NewBrave(search.Config{
			APIKey:  cfg.Tools.BraveAPIKey,
			Results: cfg.Tools.SearchResults,
			Timeout: time.Duration(cfg.Tools.SearchTimeoutSec) * time.Second,
		})
	}

	out := &lineSender{w: stdout}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := cron.NewService(clk.Location(), logger)
	sched.OnJob = func(job cron.Job) error {
		return out.Publish(ctx, bus.OutboundMessage{Content: job.Body})
	}
	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	r, err := router.New(router.Deps{
		Generator: gen,
		Searcher:  searcher,
		Scheduler: sched,
		Sender:    out,
		Clock:     clk,
		Logger:    logger,
	}, router.Options{
		MemoryLimit:     cfg.Agent.MemoryLimit,
		GameMemoryLimit: cfg.Agent.GameMemoryLimit,
	})
	if err != nil {
		return err
	}

	send := func(text string) {
		msg := bus.InboundMessage{
			Channel:   chatChannel,
			SenderID:  chatID,
			ChatID:    chatID,
			Content:   text,
			Timestamp: time.Now(),
		}
		if err := r.Handle(ctx, msg); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
	}
	r.Prime(chatChannel + ":" + chatID)

	// Single message mode
	if messageFlag != "" {
		send(messageFlag)
		return nil
	}

	// REPL mode
	fmt.Fprintln(stdout, "wabot chat (type 'help' for games, '/quit' to leave)")
	scanner := bufio.NewScanner(stdin)
	for {
		fmt.Fprint(stdout, "\n> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "/quit" || input == "quit" {
			break
		}
		send(input)
	}
	return nil
}

func runOnboard(cmd *cobra.Command, args []string) error {
	cfgDir := config.ConfigDir()
	cfgPath := config.ConfigPath()

	if err := os.MkdirAll(cfgDir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		if err := config.SaveConfig(config.DefaultConfig()); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Printf("Created config: %s\n", cfgPath)
	} else {
		fmt.Printf("Config already exists: %s\n", cfgPath)
	}

	fmt.Println("\nNext steps:")
	fmt.Printf("  1. Edit %s to set your API key (OpenRouter by default)\n", cfgPath)
	fmt.Println("  2. Or set WABOT_API_KEY / OPENROUTER_API_KEY, and BRAVE_API_KEY for web search")
	fmt.Println("  3. Run 'wabot chat -m \"Hello\"' to test, then 'wabot gateway' and scan the QR code")

	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Config: error (%v)\n", err)
		return nil
	}

	fmt.Printf("Config: %s\n", config.ConfigPath())
	fmt.Printf("Model: %s\n", cfg.Agent.Model)
	fmt.Printf("Provider: %s (%s)\n", providerDisplay(cfg.Provider.Type), cfg.Provider.BaseURL)
	fmt.Printf("API Key: %s\n", maskKey(cfg.Provider.APIKey))
	fmt.Printf("Search Key: %s\n", maskKey(cfg.Tools.BraveAPIKey))
	fmt.Printf("Timezone: %s\n", cfg.Agent.Timezone)
	fmt.Printf("Memory: %d turns (games: %d)\n", cfg.Agent.MemoryLimit, cfg.Agent.GameMemoryLimit)
	fmt.Printf("WhatsApp: enabled=%v\n", cfg.Channels.WhatsApp.Enabled)
	fmt.Printf("Telegram: enabled=%v\n", cfg.Channels.Telegram.Enabled)

	if games, err := game.Default(); err == nil {
		names := make([]string, 0, len(games.Games()))
		for _, g := range games.Games() {
			names = append(names, string(g.Kind))
		}
		fmt.Printf("Games: %s\n", strings.Join(names, ", "))
	}

	return nil
}

func maskKey(key string) string {
	switch {
	case key == "":
		return "not set"
	case len(key) > 8:
		return key[:4] + "..." + key[len(key)-4:]
	default:
		return "set"
	}
}

func providerDisplay(t string) string {
	if t == "" {
		return "openai (default)"
	}
	return t
}
