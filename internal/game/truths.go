package game

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

const truthsStatementCount = 3

var ErrMalformedTruths = errors.New("malformed truths round")

type truthsRound struct {
	Statements []string `json:"statements"`
	Lie        int      `json:"lie"`
}

// ParseTruths decodes the model's round description. The lie index is
// 1-based and must point at one of exactly three statements.
func ParseTruths(raw string) ([]string, int, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil, 0, fmt.Errorf("%w: no json object", ErrMalformedTruths)
	}

	var round truthsRound
	if err := json.Unmarshal([]byte(raw[start:end+1]), &round); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrMalformedTruths, err)
	}
	if len(round.Statements) != truthsStatementCount {
		return nil, 0, fmt.Errorf("%w: got %d statements", ErrMalformedTruths, len(round.Statements))
	}
	for i, s := range round.Statements {
		round.Statements[i] = strings.TrimSpace(s)
		if round.Statements[i] == "" {
			return nil, 0, fmt.Errorf("%w: statement %d empty", ErrMalformedTruths, i+1)
		}
	}
	if round.Lie < 1 || round.Lie > truthsStatementCount {
		return nil, 0, fmt.Errorf("%w: lie index %d out of range", ErrMalformedTruths, round.Lie)
	}
	return round.Statements, round.Lie, nil
}

// FormatTruths renders a round as the message sent to the player.
func FormatTruths(topic string, statements []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Two truths and a lie about %s:\n\n", topic)
	for i, s := range statements {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, s)
	}
	sb.WriteString("\nWhich one is the lie? Reply with 1, 2 or 3.")
	return sb.String()
}

// ParseGuess extracts the first number in text. ok is false when there is none.
func ParseGuess(text string) (int, bool) {
	fields := strings.FieldsFunc(text, func(r rune) bool { return !unicode.IsDigit(r) })
	if len(fields) == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, false
	}
	return n, true
}

// ResolveTruths judges a guess against the round. Any text resolves the
// round; text without a number is simply a wrong guess.
func ResolveTruths(sess Session, guess string) (bool, string) {
	lie := sess.LieIndex
	lieText := ""
	if lie >= 1 && lie <= len(sess.Statements) {
		lieText = sess.Statements[lie-1]
	}

	n, ok := ParseGuess(guess)
	if ok && n == lie {
		return true, fmt.Sprintf("Correct! Statement %d was the lie: %q", lie, lieText)
	}
	return false, fmt.Sprintf("Not quite. The lie was statement %d: %q", lie, lieText)
}
