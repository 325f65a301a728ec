package cron

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type recorder struct {
	mu   sync.Mutex
	jobs []Job
}

func (r *recorder) onJob(job Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, job)
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestNewJob(t *testing.T) {
	at := time.Now().Add(time.Hour)
	job := NewJob(Target{Channel: "whatsapp", ChatID: "d"}, at, "call mom")
	if job.ID == "" {
		t.Error("job ID should not be empty")
	}
	if job.Target.Key() != "whatsapp:d" {
		t.Errorf("key = %q", job.Target.Key())
	}
	if job.Fired {
		t.Error("new job should not be fired")
	}
}

func TestOnceSchedule(t *testing.T) {
	at := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	s := onceSchedule{at: at}
	if got := s.Next(at.Add(-time.Minute)); !got.Equal(at) {
		t.Errorf("Next before = %v, want %v", got, at)
	}
	if got := s.Next(at); !got.IsZero() {
		t.Errorf("Next at = %v, want zero", got)
	}
	if got := s.Next(at.Add(time.Minute)); !got.IsZero() {
		t.Errorf("Next after = %v, want zero", got)
	}
}

func TestService_ScheduleValidation(t *testing.T) {
	s := NewService(time.UTC, zerolog.Nop())
	target := Target{Channel: "whatsapp", ChatID: "d"}

	if _, err := s.Schedule(target, time.Now().Add(time.Hour), "  "); !errors.Is(err, ErrEmptyBody) {
		t.Errorf("empty body err = %v", err)
	}
	if _, err := s.Schedule(target, time.Now().Add(-time.Minute), "late"); !errors.Is(err, ErrPastTime) {
		t.Errorf("past time err = %v", err)
	}
	if len(s.ListJobs()) != 0 {
		t.Error("rejected schedules must not create jobs")
	}
}

func TestService_FiresOnceAndSelfRemoves(t *testing.T) {
	s := NewService(time.UTC, zerolog.Nop())
	rec := &recorder{}
	s.OnJob = rec.onJob

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	defer s.Stop()

	target := Target{Channel: "whatsapp", ChatID: "d"}
	job, err := s.Schedule(target, time.Now().Add(150*time.Millisecond), "call mom")
	if err != nil {
		t.Fatalf("Schedule error: %v", err)
	}
	if got := s.Pending(target); len(got) != 1 || got[0].ID != job.ID {
		t.Fatalf("Pending = %+v, want the new job", got)
	}

	waitFor(t, 3*time.Second, func() bool { return rec.count() == 1 })
	waitFor(t, time.Second, func() bool { return len(s.Pending(target)) == 0 })

	time.Sleep(300 * time.Millisecond)
	if rec.count() != 1 {
		t.Fatalf("job fired %d times, want 1", rec.count())
	}
	if rec.jobs[0].Body != "call mom" || rec.jobs[0].Target != target {
		t.Errorf("delivered %+v", rec.jobs[0])
	}
}

func TestService_DuplicatesFireIndependently(t *testing.T) {
	s := NewService(time.UTC, zerolog.Nop())
	rec := &recorder{}
	s.OnJob = rec.onJob

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_ = s.Start(ctx)
	defer s.Stop()

	target := Target{Channel: "whatsapp", ChatID: "d"}
	at := time.Now().Add(100 * time.Millisecond)
	if _, err := s.Schedule(target, at, "same"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Schedule(target, at, "same"); err != nil {
		t.Fatal(err)
	}

	waitFor(t, 3*time.Second, func() bool { return rec.count() == 2 })
	waitFor(t, time.Second, func() bool { return len(s.ListJobs()) == 0 })
}

func TestService_DeliveryErrorStillRemoves(t *testing.T) {
	s := NewService(time.UTC, zerolog.Nop())
	var calls int
	var mu sync.Mutex
	s.OnJob = func(Job) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return errors.New("transport down")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_ = s.Start(ctx)
	defer s.Stop()

	if _, err := s.Schedule(Target{Channel: "c", ChatID: "x"}, time.Now().Add(50*time.Millisecond), "hi"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, 3*time.Second, func() bool { return len(s.ListJobs()) == 0 })
	time.Sleep(200 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (no retry)", calls)
	}
}

func TestService_Cancel(t *testing.T) {
	s := NewService(time.UTC, zerolog.Nop())
	job, err := s.Schedule(Target{Channel: "c", ChatID: "x"}, time.Now().Add(time.Hour), "later")
	if err != nil {
		t.Fatal(err)
	}
	if !s.Cancel(job.ID) {
		t.Fatal("Cancel returned false")
	}
	if s.Cancel(job.ID) {
		t.Fatal("second Cancel should return false")
	}
	if len(s.ListJobs()) != 0 {
		t.Fatal("job not removed")
	}
}

func TestService_ListJobsOrdered(t *testing.T) {
	s := NewService(time.UTC, zerolog.Nop())
	now := time.Now()
	target := Target{Channel: "c", ChatID: "x"}
	_, _ = s.Schedule(target, now.Add(3*time.Hour), "third")
	_, _ = s.Schedule(target, now.Add(time.Hour), "first")
	_, _ = s.Schedule(Target{Channel: "c", ChatID: "y"}, now.Add(2*time.Hour), "other")

	jobs := s.ListJobs()
	if len(jobs) != 3 || jobs[0].Body != "first" || jobs[2].Body != "third" {
		t.Fatalf("ListJobs order = %+v", jobs)
	}
	if got := s.Pending(target); len(got) != 2 {
		t.Fatalf("Pending = %d, want 2", len(got))
	}
}

func TestService_StartStop(t *testing.T) {
	s := NewService(time.UTC, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	if err := s.Start(ctx); err == nil {
		t.Fatal("second Start should fail")
	}
	cancel()
	waitFor(t, 2*time.Second, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.stopCh == nil
	})
	s.Stop()
}

func TestParseWhen(t *testing.T) {
	now := time.Date(2026, 10, 16, 15, 0, 0, 0, time.UTC)

	tests := []struct {
		text string
		want time.Time
	}{
		{"in 10 minutes", now.Add(10 * time.Minute)},
		{"10 minutes", now.Add(10 * time.Minute)},
		{"in 2 hours", now.Add(2 * time.Hour)},
	}
	for _, tt := range tests {
		got, err := ParseWhen(tt.text, now)
		if err != nil {
			t.Errorf("ParseWhen(%q) error: %v", tt.text, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("ParseWhen(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}

	tomorrow, err := ParseWhen("tomorrow at 9am", now)
	if err != nil {
		t.Fatalf("ParseWhen(tomorrow) error: %v", err)
	}
	if tomorrow.Day() != 17 || tomorrow.Hour() != 9 {
		t.Errorf("tomorrow at 9am = %v", tomorrow)
	}

	for _, bad := range []string{"", "whenever you like", "blue"} {
		if _, err := ParseWhen(bad, now); !errors.Is(err, ErrUnparseableTime) {
			t.Errorf("ParseWhen(%q) err = %v, want ErrUnparseableTime", bad, err)
		}
	}
}
