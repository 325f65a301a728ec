package router

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/stellarlinkco/wabot/internal/bus"
	"github.com/stellarlinkco/wabot/internal/clock"
	"github.com/stellarlinkco/wabot/internal/cron"
	"github.com/stellarlinkco/wabot/internal/game"
	"github.com/stellarlinkco/wabot/internal/llm"
	"github.com/stellarlinkco/wabot/internal/memory"
)

// Generator produces replies. *llm.Generator satisfies it.
type Generator interface {
	Generate(ctx context.Context, system string, history []memory.Turn, user string) string
	Chat(ctx context.Context, history []memory.Turn, user string) string
	Route(ctx context.Context, history []memory.Turn, user string) llm.Directive
}

type Searcher interface {
	Search(ctx context.Context, query string) (string, error)
}

type Scheduler interface {
	Schedule(target cron.Target, at time.Time, body string) (cron.Job, error)
}

// Sender delivers outbound messages. *bus.MessageBus satisfies it.
type Sender interface {
	Publish(ctx context.Context, msg bus.OutboundMessage) error
}

// State is the observable mode of one conversation.
type State int

const (
	NoState State = iota
	FreeChat
	InGame
)

func (s State) String() string {
	switch s {
	case FreeChat:
		return "free_chat"
	case InGame:
		return "in_game"
	default:
		return "no_state"
	}
}

type Deps struct {
	Generator Generator
	Searcher  Searcher
	Scheduler Scheduler
	Sender    Sender
	Clock     *clock.Clock
	Games     *game.Registry
	Logger    zerolog.Logger
}

type Options struct {
	MemoryLimit     int
	GameMemoryLimit int
	ReplyDelay      time.Duration
	StatusDelay     time.Duration
}

// Router owns conversation history and game sessions and decides how every
// admissible inbound message is answered.
type Router struct {
	gen    Generator
	search Searcher
	sched  Scheduler
	out    Sender
	clock  *clock.Clock
	games  *game.Registry
	log    zerolog.Logger

	history  *memory.Store
	sessions *game.Store
	locks    *keyedMutex

	replyDelay  time.Duration
	statusDelay time.Duration
}

func New(deps Deps, opts Options) (*Router, error) {
	if deps.Generator == nil {
		return nil, fmt.Errorf("router: generator is required")
	}
	if deps.Sender == nil {
		return nil, fmt.Errorf("router: sender is required")
	}
	games := deps.Games
	if games == nil {
		var err error
		if games, err = game.Default(); err != nil {
			return nil, fmt.Errorf("router: load games: %w", err)
		}
	}
	clk := deps.Clock
	if clk == nil {
		clk, _ = clock.New("")
	}
	return &Router{
		gen:         deps.Generator,
		search:      deps.Searcher,
		sched:       deps.Scheduler,
		out:         deps.Sender,
		clock:       clk,
		games:       games,
		log:         deps.Logger.With().Str("component", "router").Logger(),
		history:     memory.NewStore(opts.MemoryLimit),
		sessions:    game.NewStore(opts.GameMemoryLimit),
		locks:       newKeyedMutex(),
		replyDelay:  opts.ReplyDelay,
		statusDelay: opts.StatusDelay,
	}, nil
}

// StateOf reports the mode of the conversation identified by key.
func (r *Router) StateOf(key string) State {
	if r.sessions.Has(key) {
		return InGame
	}
	if r.history.Known(key) {
		return FreeChat
	}
	return NoState
}

// Prime marks key as already greeted, so its first message is answered
// normally instead of with the welcome menu.
func (r *Router) Prime(key string) {
	r.history.Touch(key)
}

func (r *Router) History(key string) []memory.Turn {
	return r.history.History(key)
}

func (r *Router) Session(key string) (game.Session, bool) {
	return r.sessions.Get(key)
}

// Admissible reports whether msg deserves a reply: a non-empty direct
// message from someone other than the bot itself.
func Admissible(msg bus.InboundMessage) bool {
	if msg.FromSelf || msg.IsGroup || msg.IsBroadcast || msg.IsNewsletter || msg.IsStatus {
		return false
	}
	return strings.TrimSpace(msg.Content) != ""
}

// Handle processes one inbound message. Messages for the same conversation
// are handled one at a time; the returned error is a delivery failure.
func (r *Router) Handle(ctx context.Context, msg bus.InboundMessage) error {
	if msg.IsStatus && !msg.FromSelf {
		return r.observeStatus(ctx, msg)
	}
	if !Admissible(msg) {
		return nil
	}

	key := msg.SessionKey()
	unlock := r.locks.Lock(key)
	defer unlock()

	text := strings.TrimSpace(msg.Content)
	cmd := Classify(text, r.sessions.Has(key))
	log := r.log.With().Str("key", key).Str("command", cmd.Kind.String()).Logger()
	log.Debug().Str("text", truncate(text, 80)).Msg("inbound")

	var reply string
	switch cmd.Kind {
	case CmdHelp:
		// Help leaves the conversation in NoState, so the next ordinary
		// message still gets the one-time welcome.
		reply = r.helpText()
	case CmdExitGame:
		r.sessions.End(key)
		reply = ExitReply
	case CmdStartGame:
		reply = r.startGame(ctx, key, cmd.Arg)
	case CmdTruths:
		reply = r.startTruths(ctx, key, cmd.Arg)
	case CmdGameTurn:
		reply = r.gameTurn(ctx, key, text)
	default:
		reply = r.chat(ctx, msg, key, text)
	}

	if reply == "" {
		log.Debug().Msg("no reply")
		return nil
	}
	return r.send(ctx, msg, reply)
}

func (r *Router) chat(ctx context.Context, msg bus.InboundMessage, key, text string) string {
	if r.history.Touch(key) {
		return r.welcomeText()
	}

	history := r.history.History(key)
	d := r.gen.Route(ctx, history, text)

	var reply string
	switch d.Action {
	case llm.ActionReply:
		reply = d.Content
	case llm.ActionSearch:
		reply = r.searchAndAnswer(ctx, history, text, d.Query)
	case llm.ActionSchedule:
		reply = r.scheduleReminder(msg, d)
	default:
		return ""
	}
	if reply == "" {
		return ""
	}
	r.history.Append(key, memory.UserTurn(text), memory.AssistantTurn(reply))
	return reply
}

func (r *Router) observeStatus(ctx context.Context, msg bus.InboundMessage) error {
	if msg.Ref.ID == "" {
		return nil
	}
	if err := sleep(ctx, r.statusDelay); err != nil {
		return err
	}
	ref := msg.Ref
	r.log.Debug().Str("sender", msg.SenderID).Str("id", ref.ID).Msg("marking status as seen")
	return r.out.Publish(ctx, bus.OutboundMessage{
		Channel: msg.Channel,
		ChatID:  msg.ChatID,
		Receipt: &ref,
	})
}

func (r *Router) send(ctx context.Context, msg bus.InboundMessage, reply string) error {
	if err := sleep(ctx, r.replyDelay); err != nil {
		return err
	}
	return r.out.Publish(ctx, bus.OutboundMessage{
		Channel: msg.Channel,
		ChatID:  msg.ChatID,
		Content: reply,
	})
}

// sleep waits for d unless ctx is cancelled first.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
