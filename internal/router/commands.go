package router

import (
	"regexp"
	"strings"
)

type CommandKind int

const (
	// CmdChat is the default: tool-routed free chat.
	CmdChat CommandKind = iota
	CmdHelp
	CmdExitGame
	CmdStartGame
	CmdTruths
	CmdGameTurn
)

func (k CommandKind) String() string {
	switch k {
	case CmdHelp:
		return "help"
	case CmdExitGame:
		return "exit_game"
	case CmdStartGame:
		return "start_game"
	case CmdTruths:
		return "truths"
	case CmdGameTurn:
		return "game_turn"
	default:
		return "chat"
	}
}

// Command is a classified message. Arg carries the game name for
// CmdStartGame and the topic for CmdTruths.
type Command struct {
	Kind CommandKind
	Arg  string
}

var (
	startGameRe = regexp.MustCompile(`(?is)^start\s+game\s*:\s*(.+)$`)
	truthsRe    = regexp.MustCompile(`(?is)^game\s*:\s*truths?\s+about\s+(.+)$`)
)

var helpWords = map[string]bool{
	"help": true, "menu": true, "/help": true, "/start": true, "/menu": true,
}

var exitWords = map[string]bool{
	"exit": true, "exit game": true, "quit game": true, "stop game": true, "end game": true, "/exit": true,
}

// Classify applies the command precedence: help, exit (only while in a
// game), start game, truths, game turn (while in a game), chat.
func Classify(text string, inGame bool) Command {
	text = strings.TrimSpace(text)
	norm := strings.ToLower(strings.Join(strings.Fields(text), " "))
	norm = strings.TrimRight(norm, ".!")

	if helpWords[norm] {
		return Command{Kind: CmdHelp}
	}
	if inGame && exitWords[norm] {
		return Command{Kind: CmdExitGame}
	}
	if m := startGameRe.FindStringSubmatch(text); m != nil {
		return Command{Kind: CmdStartGame, Arg: strings.TrimSpace(m[1])}
	}
	if m := truthsRe.FindStringSubmatch(text); m != nil {
		topic := strings.TrimRight(strings.TrimSpace(m[1]), "?.!")
		if topic != "" {
			return Command{Kind: CmdTruths, Arg: topic}
		}
	}
	if inGame {
		return Command{Kind: CmdGameTurn}
	}
	return Command{Kind: CmdChat}
}
