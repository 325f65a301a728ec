// Package llm turns conversation state into model replies. It never returns
// errors to callers: remote failures surface as DegradedReply and missing
// configuration as an empty result.
package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/cexll/agentsdk-go/pkg/model"
	"github.com/rs/zerolog"

	"github.com/stellarlinkco/wabot/internal/clock"
	"github.com/stellarlinkco/wabot/internal/config"
	"github.com/stellarlinkco/wabot/internal/memory"
)

// Completer is the slice of model.Model the generator needs.
type Completer interface {
	Complete(ctx context.Context, req model.Request) (*model.Response, error)
}

// providerCompleter resolves the provider's cached model on every call.
type providerCompleter struct {
	provider model.Provider
}

func (p *providerCompleter) Complete(ctx context.Context, req model.Request) (*model.Response, error) {
	mdl, err := p.provider.Model(ctx)
	if err != nil {
		return nil, err
	}
	return mdl.Complete(ctx, req)
}

type Options struct {
	Personality string
	Model       string
	MaxTokens   int
	Temperature *float64
	Clock       *clock.Clock
	Logger      zerolog.Logger
}

type Generator struct {
	completer Completer
	opts      Options
	log       zerolog.Logger
}

// NewFromConfig builds a Generator backed by the configured provider. Without
// an API key the generator is still usable and answers every call with "".
func NewFromConfig(cfg *config.Config, clk *clock.Clock, logger zerolog.Logger) *Generator {
	temp := cfg.Agent.Temperature
	opts := Options{
		Personality: cfg.Agent.Personality,
		Model:       cfg.Agent.Model,
		MaxTokens:   cfg.Agent.MaxTokens,
		Temperature: &temp,
		Clock:       clk,
		Logger:      logger,
	}

	if strings.TrimSpace(cfg.Provider.APIKey) == "" {
		logger.Warn().Str("component", "llm").Msg("no model API key configured, replies are disabled")
		return New(nil, opts)
	}

	var provider model.Provider
	switch cfg.Provider.Type {
	case "anthropic":
		provider = &model.AnthropicProvider{
			APIKey:    cfg.Provider.APIKey,
			BaseURL:   cfg.Provider.BaseURL,
			ModelName: cfg.Agent.Model,
			MaxTokens: cfg.Agent.MaxTokens,
		}
	default: // "openai" or any OpenAI-compatible endpoint such as OpenRouter
		provider = &model.OpenAIProvider{
			APIKey:    cfg.Provider.APIKey,
			BaseURL:   cfg.Provider.BaseURL,
			ModelName: cfg.Agent.Model,
			MaxTokens: cfg.Agent.MaxTokens,
		}
	}
	return New(&providerCompleter{provider: provider}, opts)
}

// New returns a Generator using c. A nil c disables generation.
func New(c Completer, opts Options) *Generator {
	if opts.Personality == "" {
		opts.Personality = config.DefaultPersonality
	}
	return &Generator{
		completer: c,
		opts:      opts,
		log:       opts.Logger.With().Str("component", "llm").Logger(),
	}
}

// Enabled reports whether a model is configured.
func (g *Generator) Enabled() bool {
	return g.completer != nil
}

// SystemPrompt is the personality prompt plus the current time context.
func (g *Generator) SystemPrompt() string {
	if g.opts.Clock == nil {
		return g.opts.Personality
	}
	return g.opts.Personality + "\n\n" + g.opts.Clock.PromptContext()
}

// Generate runs a free-form completion. It returns "" when generation is
// disabled or user is blank, and DegradedReply when the remote call fails.
func (g *Generator) Generate(ctx context.Context, system string, history []memory.Turn, user string) string {
	if g.completer == nil {
		g.log.Error().Msg("missing API key, skipping generation")
		return ""
	}
	if strings.TrimSpace(user) == "" {
		g.log.Error().Msg("empty user message, skipping generation")
		return ""
	}

	req := model.Request{
		System:      system,
		Messages:    toMessages(history, user),
		Model:       g.opts.Model,
		MaxTokens:   g.opts.MaxTokens,
		Temperature: g.opts.Temperature,
	}

	g.log.Debug().Int("history", len(history)).Str("user", truncate(user, 80)).Msg("sending to model")
	resp, err := g.completer.Complete(ctx, req)
	if err != nil {
		g.log.Error().Err(err).Msg("model call failed")
		return DegradedReply
	}
	if resp == nil {
		g.log.Error().Msg("model returned no response")
		return DegradedReply
	}
	reply := strings.TrimSpace(resp.Message.Content)
	if reply == "" {
		g.log.Error().Msg("model returned empty content")
		return DegradedReply
	}
	g.log.Debug().Str("reply", truncate(reply, 80)).Msg("model replied")
	return reply
}

// Chat is Generate with the personality system prompt.
func (g *Generator) Chat(ctx context.Context, history []memory.Turn, user string) string {
	return g.Generate(ctx, g.SystemPrompt(), history, user)
}

// Route asks the model to choose a tool directive for user. Output that is
// not a directive falls back to a reply: prose is passed through, a broken
// directive object becomes MisunderstoodReply.
func (g *Generator) Route(ctx context.Context, history []memory.Turn, user string) Directive {
	raw := g.Generate(ctx, g.SystemPrompt()+"\n\n"+toolRouterPrompt, history, user)
	if raw == "" {
		return Directive{}
	}
	if raw == DegradedReply {
		return Reply(raw)
	}

	d, err := DecodeDirective(raw)
	switch {
	case err == nil:
		return d
	case errors.Is(err, ErrNoDirective):
		g.log.Debug().Msg("model answered in prose, using it as reply")
		return Reply(raw)
	default:
		g.log.Warn().Err(err).Str("raw", truncate(raw, 200)).Msg("malformed tool directive")
		return Reply(MisunderstoodReply)
	}
}

func toMessages(history []memory.Turn, user string) []model.Message {
	msgs := make([]model.Message, 0, len(history)+1)
	for _, t := range history {
		msgs = append(msgs, model.Message{Role: t.Role, Content: t.Content})
	}
	return append(msgs, model.Message{Role: memory.RoleUser, Content: user})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
