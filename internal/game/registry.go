// Package game holds the closed set of chat games and the per-conversation
// sessions that override normal chat routing while a game is running.
package game

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

type Kind string

const (
	KindAdventure       Kind = "adventure"
	KindTwentyQuestions Kind = "twenty_questions"
	KindTruths          Kind = "truths"
)

// Policy decides how messages are handled once a session is running.
type Policy string

const (
	// PolicyMultiTurn treats every message as a game turn until the player exits.
	PolicyMultiTurn Policy = "multi_turn"
	// PolicySingleGuess consumes exactly one reply, then ends the session.
	PolicySingleGuess Policy = "single_guess"
)

var ErrUnknownKind = errors.New("unknown game")

//go:embed games.yaml
var defaultGames []byte

type Game struct {
	Kind    Kind     `yaml:"kind"`
	Title   string   `yaml:"title"`
	Policy  Policy   `yaml:"policy"`
	Aliases []string `yaml:"aliases"`
	Seed    string   `yaml:"seed"`
	Prompt  string   `yaml:"prompt"`
}

type Registry struct {
	games   map[Kind]Game
	order   []Kind
	aliases map[string]Kind
}

// Default returns the registry of built-in games.
func Default() (*Registry, error) {
	return Load(defaultGames)
}

// Load parses a YAML list of games and validates every entry.
func Load(data []byte) (*Registry, error) {
	var games []Game
	if err := yaml.Unmarshal(data, &games); err != nil {
		return nil, fmt.Errorf("parse games: %w", err)
	}

	r := &Registry{
		games:   make(map[Kind]Game, len(games)),
		aliases: make(map[string]Kind),
	}
	for _, g := range games {
		g.Kind = Kind(NormalizeName(string(g.Kind)))
		g.Prompt = strings.TrimSpace(g.Prompt)
		if g.Kind == "" {
			return nil, errors.New("game without kind")
		}
		if _, dup := r.games[g.Kind]; dup {
			return nil, fmt.Errorf("duplicate game %q", g.Kind)
		}
		if g.Prompt == "" {
			return nil, fmt.Errorf("game %q has no prompt", g.Kind)
		}
		switch g.Policy {
		case PolicyMultiTurn:
			if strings.TrimSpace(g.Seed) == "" {
				return nil, fmt.Errorf("game %q needs a seed turn", g.Kind)
			}
		case PolicySingleGuess:
		default:
			return nil, fmt.Errorf("game %q has unknown policy %q", g.Kind, g.Policy)
		}
		if g.Title == "" {
			g.Title = string(g.Kind)
		}

		r.games[g.Kind] = g
		r.order = append(r.order, g.Kind)
		for _, alias := range g.Aliases {
			r.aliases[NormalizeName(alias)] = g.Kind
		}
	}
	return r, nil
}

// Lookup resolves a user-typed game name or alias.
func (r *Registry) Lookup(name string) (Game, error) {
	kind := Kind(NormalizeName(name))
	if g, ok := r.games[kind]; ok {
		return g, nil
	}
	if k, ok := r.aliases[string(kind)]; ok {
		return r.games[k], nil
	}
	return Game{}, fmt.Errorf("%w: %q", ErrUnknownKind, name)
}

// Get returns the game registered under kind.
func (r *Registry) Get(kind Kind) (Game, bool) {
	g, ok := r.games[kind]
	return g, ok
}

// Games lists registered games in file order.
func (r *Registry) Games() []Game {
	out := make([]Game, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.games[k])
	}
	return out
}

// NormalizeName lower-cases a game name and folds spaces and dashes to "_".
func NormalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.NewReplacer(" ", "_", "-", "_").Replace(name)
	for strings.Contains(name, "__") {
		name = strings.ReplaceAll(name, "__", "_")
	}
	return name
}
