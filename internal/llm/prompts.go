package llm

import "fmt"

const (
	// DegradedReply is returned in place of model output when the remote call fails.
	DegradedReply = "Sorry, I'm having a little trouble thinking right now. 😅"
	// MisunderstoodReply answers a tool directive that could not be decoded.
	MisunderstoodReply = "Sorry, I didn't quite get that. Could you say it another way?"
)

const toolRouterPrompt = `You can take one of three actions. Decide which one fits the user's latest message and answer ONLY with a single JSON object, no markdown and no text around it:

{"action":"reply","content":"<your reply to the user>"}
  for normal conversation.
{"action":"search","query":"<web search query>"}
  when the answer needs current or factual information from the web (news, prices, weather, recent events).
{"action":"schedule","when":"<time expression, e.g. in 10 minutes, tomorrow at 9am>","what":"<what to remind the user about>"}
  when the user asks to be reminded of something later.`

const synthesisTemplate = `Here is some context from a web search:
"""
%s
"""

Using this context, answer the user's question concisely: %s`

// SynthesisPrompt combines a search snippet with the user's original question.
func SynthesisPrompt(snippet, question string) string {
	return fmt.Sprintf(synthesisTemplate, snippet, question)
}
