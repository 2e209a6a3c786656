// Package schedule runs the maintenance jobs on cron expressions and
// keeps each job's last outcome on disk.
package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"
)

// Built-in job names.
const (
	JobSweep   = "sweep"
	JobCompact = "compact"
)

// JobState is the persisted outcome of a job's most recent run.
type JobState struct {
	LastRunAt  time.Time `json:"last_run_at"`
	LastStatus string    `json:"last_status,omitempty"`
	LastError  string    `json:"last_error,omitempty"`
}

// Job binds a cron expression to a callback. Expressions use the
// six-field form with a leading seconds column.
type Job struct {
	Name string
	Expr string
	Run  func(ctx context.Context) error
}

// Service owns the cron runner and the state file. Add jobs before
// Start; registration happens once.
type Service struct {
	statePath string

	mu    sync.Mutex
	state map[string]JobState
	jobs  []Job

	cron   *rcron.Cron
	cancel context.CancelFunc
}

func NewService(statePath string) *Service {
	return &Service{
		statePath: statePath,
		state:     make(map[string]JobState),
	}
}

// AddJob queues a job for registration on Start.
func (s *Service) AddJob(name, expr string, run func(ctx context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, Job{Name: name, Expr: expr, Run: run})
}

// Start loads persisted state, registers every job and begins ticking.
// It returns after registration; jobs fire on their own goroutines.
func (s *Service) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.cancel = cancel
	if err := s.load(); err != nil {
		log.Printf("[schedule] warning: load job state: %v", err)
	}
	jobs := make([]Job, len(s.jobs))
	copy(jobs, s.jobs)
	s.mu.Unlock()

	s.cron = rcron.New(rcron.WithSeconds())
	registered := 0
	for _, job := range jobs {
		job := job
		_, err := s.cron.AddFunc(job.Expr, func() {
			s.execute(runCtx, job)
		})
		if err != nil {
			log.Printf("[schedule] failed to register job %s (%s): %v", job.Name, job.Expr, err)
			continue
		}
		registered++
	}

	s.cron.Start()
	log.Printf("[schedule] started with %d of %d jobs", registered, len(jobs))

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

func (s *Service) execute(ctx context.Context, job Job) {
	log.Printf("[schedule] running job %s", job.Name)
	err := job.Run(ctx)

	s.mu.Lock()
	st := JobState{LastRunAt: time.Now().UTC(), LastStatus: "ok"}
	if err != nil {
		st.LastStatus = "error"
		st.LastError = err.Error()
	}
	s.state[job.Name] = st
	if saveErr := s.save(); saveErr != nil {
		log.Printf("[schedule] warning: save job state: %v", saveErr)
	}
	s.mu.Unlock()

	if err != nil {
		log.Printf("[schedule] job %s error: %v", job.Name, err)
		return
	}
	log.Printf("[schedule] job %s done", job.Name)
}

// Stop halts the runner and waits briefly for running jobs to drain.
func (s *Service) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	if s.cron != nil {
		stopCtx := s.cron.Stop()
		select {
		case <-stopCtx.Done():
		case <-time.After(5 * time.Second):
			log.Printf("[schedule] stop timeout waiting for running jobs")
		}
	}
	log.Printf("[schedule] stopped")
}

// States returns a copy of the persisted job outcomes.
func (s *Service) States() map[string]JobState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]JobState, len(s.state))
	for name, st := range s.state {
		out[name] = st
	}
	return out
}

func (s *Service) load() error {
	data, err := os.ReadFile(s.statePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return json.Unmarshal(data, &s.state)
}

func (s *Service) save() error {
	if err := os.MkdirAll(filepath.Dir(s.statePath), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.statePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.statePath); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}
