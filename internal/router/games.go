package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/stellarlinkco/wabot/internal/game"
	"github.com/stellarlinkco/wabot/internal/llm"
	"github.com/stellarlinkco/wabot/internal/memory"
)

func (r *Router) startGame(ctx context.Context, key, name string) string {
	g, err := r.games.Lookup(name)
	if errors.Is(err, game.ErrUnknownKind) {
		return r.unknownGameText(name)
	}
	if g.Policy == game.PolicySingleGuess {
		return fmt.Sprintf("To play %s, send \"game: %s about <topic>\".", g.Title, g.Kind)
	}

	opening := r.gen.Generate(ctx, g.Prompt, nil, g.Seed)
	if opening == "" || opening == llm.DegradedReply {
		// No session without an opening; the player would be stuck in silence.
		return opening
	}
	r.sessions.Start(key, game.Session{
		Kind:    g.Kind,
		History: []memory.Turn{memory.UserTurn(g.Seed), memory.AssistantTurn(opening)},
	})
	r.log.Info().Str("key", key).Str("game", string(g.Kind)).Msg("game started")
	return fmt.Sprintf("🎮 *%s* started! Send \"exit game\" to stop.\n\n%s", g.Title, opening)
}

func (r *Router) startTruths(ctx context.Context, key, topic string) string {
	g, ok := r.games.Get(game.KindTruths)
	if !ok {
		return r.unknownGameText(string(game.KindTruths))
	}

	raw := r.gen.Generate(ctx, g.Prompt, nil, topic)
	if raw == "" {
		return ""
	}
	statements, lie, err := game.ParseTruths(raw)
	if err != nil {
		r.log.Warn().Err(err).Str("key", key).Msg("truths round rejected")
		return GameApology
	}

	board := game.FormatTruths(topic, statements)
	r.sessions.Start(key, game.Session{
		Kind:       g.Kind,
		History:    []memory.Turn{memory.UserTurn(topic), memory.AssistantTurn(board)},
		Statements: statements,
		LieIndex:   lie,
	})
	r.log.Info().Str("key", key).Str("game", string(g.Kind)).Int("lie", lie).Msg("game started")
	return board
}

func (r *Router) gameTurn(ctx context.Context, key, text string) string {
	sess, ok := r.sessions.Get(key)
	if !ok {
		return ""
	}
	g, ok := r.games.Get(sess.Kind)
	if !ok {
		r.sessions.End(key)
		return ExitReply
	}

	switch g.Policy {
	case game.PolicySingleGuess:
		won, verdict := game.ResolveTruths(sess, text)
		r.sessions.End(key)
		r.log.Info().Str("key", key).Bool("won", won).Msg("truths resolved")
		return fmt.Sprintf("%s\n\nSend \"game: truths about <topic>\" to play again.", verdict)
	default:
		reply := r.gen.Generate(ctx, g.Prompt, sess.History, text)
		if reply == "" || reply == llm.DegradedReply {
			return reply
		}
		r.sessions.AppendTurns(key, memory.UserTurn(text), memory.AssistantTurn(reply))
		return reply
	}
}
