package router

import (
	"context"
	"fmt"
	"strings"

	"github.com/stellarlinkco/wabot/internal/bus"
	"github.com/stellarlinkco/wabot/internal/cron"
	"github.com/stellarlinkco/wabot/internal/llm"
	"github.com/stellarlinkco/wabot/internal/memory"
)

func (r *Router) searchAndAnswer(ctx context.Context, history []memory.Turn, question, query string) string {
	if r.search == nil {
		return SearchApology
	}
	if strings.TrimSpace(query) == "" {
		query = question
	}
	snippet, err := r.search.Search(ctx, query)
	if err != nil {
		r.log.Warn().Err(err).Str("query", query).Msg("search failed")
		return SearchApology
	}
	answer := r.gen.Chat(ctx, history, llm.SynthesisPrompt(snippet, question))
	if answer == "" {
		return SearchApology
	}
	return answer
}

func (r *Router) scheduleReminder(msg bus.InboundMessage, d llm.Directive) string {
	at, err := cron.ParseWhen(d.When, r.clock.Now())
	if err != nil {
		r.log.Info().Err(err).Str("when", d.When).Msg("reminder time rejected")
		return TimeApology
	}
	if r.sched == nil {
		return ReminderApology
	}
	what := strings.TrimSpace(d.What)
	if what == "" {
		return ReminderApology
	}
	job, err := r.sched.Schedule(cron.Target{Channel: msg.Channel, ChatID: msg.ChatID}, at, reminderPrefix+what)
	if err != nil {
		r.log.Warn().Err(err).Msg("schedule reminder")
		return ReminderApology
	}
	r.log.Info().Str("job", job.ID).Time("at", job.At).Msg("reminder scheduled")
	return fmt.Sprintf("✅ Got it! I'll remind you to %s on %s (%s).", what, r.clock.Format(at), r.clock.Relative(at))
}
