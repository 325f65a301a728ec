package router

import (
	"fmt"
	"strings"

	"github.com/stellarlinkco/wabot/internal/game"
)

const (
	SearchApology   = "Sorry, I couldn't look that up right now. Please try again later."
	TimeApology     = "Sorry, I couldn't understand the time for that reminder. Try something like \"in 10 minutes\" or \"tomorrow at 9am\"."
	ReminderApology = "Sorry, I couldn't set that reminder."
	GameApology     = "Sorry, I couldn't set up that game. Please try again."
	ExitReply       = "Game ended. We're back to normal chat, ask me anything!"
	reminderPrefix  = "⏰ Reminder: "
)

func (r *Router) helpText() string {
	var sb strings.Builder
	sb.WriteString("Here's what I can do:\n\n")
	sb.WriteString("💬 Just chat with me. I can also search the web and set reminders (\"remind me to call mom in 10 minutes\").\n\n")
	sb.WriteString("🎮 Games:\n")
	for _, g := range r.games.Games() {
		if g.Policy == game.PolicySingleGuess {
			fmt.Fprintf(&sb, "• %s: send \"game: %s about <topic>\"\n", g.Title, g.Kind)
			continue
		}
		fmt.Fprintf(&sb, "• %s: send \"start game: %s\"\n", g.Title, g.Kind)
	}
	sb.WriteString("\nSend \"exit game\" to leave a game, or \"help\" to see this menu again.")
	return sb.String()
}

func (r *Router) welcomeText() string {
	return "👋 Hi! I'm your AI assistant.\n\n" + r.helpText()
}

func (r *Router) unknownGameText(name string) string {
	kinds := make([]string, 0, len(r.games.Games()))
	for _, g := range r.games.Games() {
		kinds = append(kinds, string(g.Kind))
	}
	return fmt.Sprintf("I don't know a game called %q. Available games: %s.", name, strings.Join(kinds, ", "))
}
