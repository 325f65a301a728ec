package cron

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

var ErrEmptyBody = errors.New("reminder body is empty")

// Service runs one-shot reminder jobs. Jobs live in memory only; a restart
// drops everything that has not fired yet.
type Service struct {
	mu       sync.Mutex
	loc      *time.Location
	now      func() time.Time
	cron     *rcron.Cron
	jobs     map[string]*Job
	entryMap map[string]rcron.EntryID // job ID -> cron entry ID
	stopCh   chan struct{}
	log      zerolog.Logger

	// OnJob delivers a fired job. Errors are logged; there is no retry.
	OnJob func(job Job) error
}

// NewService returns a Service evaluating fire times in loc.
func NewService(loc *time.Location, logger zerolog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		loc:      loc,
		now:      time.Now,
		cron:     rcron.New(rcron.WithLocation(loc)),
		jobs:     make(map[string]*Job),
		entryMap: make(map[string]rcron.EntryID),
		log:      logger.With().Str("component", "cron").Logger(),
	}
}

func (s *Service) Start(ctx context.Context) error {
	stopCh := make(chan struct{})
	s.mu.Lock()
	if s.stopCh != nil {
		s.mu.Unlock()
		return errors.New("cron service already started")
	}
	s.stopCh = stopCh
	pending := len(s.jobs)
	s.mu.Unlock()

	s.cron.Start()
	s.log.Info().Int("pending", pending).Msg("started")

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-stopCh:
		}
	}()
	return nil
}

func (s *Service) Stop() {
	s.mu.Lock()
	stopCh := s.stopCh
	s.stopCh = nil
	s.mu.Unlock()
	if stopCh == nil {
		return
	}
	close(stopCh)

	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(5 * time.Second):
		s.log.Warn().Msg("stop timeout waiting for running jobs")
	}
	s.log.Info().Msg("stopped")
}

// Schedule registers a single delivery of body to target at at.
func (s *Service) Schedule(target Target, at time.Time, body string) (Job, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return Job{}, ErrEmptyBody
	}
	if !at.After(s.now()) {
		return Job{}, fmt.Errorf("%w: %s", ErrPastTime, at.In(s.loc).Format(time.RFC3339))
	}

	job := NewJob(target, at.In(s.loc), body)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = &job
	jobID := job.ID
	s.entryMap[jobID] = s.cron.Schedule(onceSchedule{at: job.At}, rcron.FuncJob(func() {
		s.executeJob(jobID)
	}))

	s.log.Info().Str("job", job.ID).Str("to", target.Key()).Time("at", job.At).Msg("scheduled")
	return job, nil
}

func (s *Service) executeJob(id string) {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok || job.Fired {
		s.mu.Unlock()
		return
	}
	job.Fired = true
	jobCopy := *job
	onJob := s.OnJob
	s.mu.Unlock()

	s.log.Info().Str("job", id).Str("to", jobCopy.Target.Key()).Msg("executing")
	if onJob == nil {
		s.log.Warn().Msg("no OnJob handler set")
	} else if err := onJob(jobCopy); err != nil {
		s.log.Error().Err(err).Str("job", id).Msg("delivery failed")
	}

	s.mu.Lock()
	entryID, hasEntry := s.entryMap[id]
	delete(s.entryMap, id)
	delete(s.jobs, id)
	s.mu.Unlock()
	if hasEntry {
		s.cron.Remove(entryID)
	}
}

// Cancel drops a job that has not fired yet.
func (s *Service) Cancel(id string) bool {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok || job.Fired {
		s.mu.Unlock()
		return false
	}
	entryID := s.entryMap[id]
	delete(s.entryMap, id)
	delete(s.jobs, id)
	s.mu.Unlock()

	s.cron.Remove(entryID)
	return true
}

// ListJobs returns pending jobs ordered by fire time.
func (s *Service) ListJobs() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		result = append(result, *j)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].At.Before(result[j].At) })
	return result
}

// Pending returns the jobs still waiting to fire for target.
func (s *Service) Pending(target Target) []Job {
	var out []Job
	for _, j := range s.ListJobs() {
		if j.Target == target {
			out = append(out, j)
		}
	}
	return out
}
