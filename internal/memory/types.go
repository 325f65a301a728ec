package memory

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one role-tagged message in a history.
type Turn struct {
	Role    string
	Content string
}

func UserTurn(content string) Turn {
	return Turn{Role: RoleUser, Content: content}
}

func AssistantTurn(content string) Turn {
	return Turn{Role: RoleAssistant, Content: content}
}

// Trim returns the newest limit turns of history, dropping the oldest first.
// A non-positive limit leaves history untouched.
func Trim(history []Turn, limit int) []Turn {
	if limit <= 0 || len(history) <= limit {
		return history
	}
	kept := make([]Turn, limit)
	copy(kept, history[len(history)-limit:])
	return kept
}
