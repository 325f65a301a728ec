package cron

import (
	"time"

	"github.com/google/uuid"
)

// Target addresses the conversation a job delivers to.
type Target struct {
	Channel string `json:"channel"`
	ChatID  string `json:"chatId"`
}

// Key matches bus.InboundMessage.SessionKey for the same conversation.
func (t Target) Key() string {
	return t.Channel + ":" + t.ChatID
}

// Job is a one-shot delivery of Body to Target at At.
type Job struct {
	ID        string    `json:"id"`
	Target    Target    `json:"target"`
	At        time.Time `json:"at"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
	Fired     bool      `json:"fired"`
}

func NewJob(target Target, at time.Time, body string) Job {
	return Job{
		ID:        uuid.NewString(),
		Target:    target,
		At:        at,
		Body:      body,
		CreatedAt: time.Now(),
	}
}

// onceSchedule yields at exactly once, then never again.
type onceSchedule struct {
	at time.Time
}

func (s onceSchedule) Next(t time.Time) time.Time {
	if t.Before(s.at) {
		return s.at
	}
	return time.Time{}
}
