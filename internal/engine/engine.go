// Package engine assembles the vault, the score store, the history
// ledger and the language model into one runnable memory engine.
package engine

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fernwehlabs/mnema/internal/config"
	"github.com/fernwehlabs/mnema/internal/consolidate"
	"github.com/fernwehlabs/mnema/internal/ledger"
	"github.com/fernwehlabs/mnema/internal/llm"
	"github.com/fernwehlabs/mnema/internal/note"
	"github.com/fernwehlabs/mnema/internal/notify"
	"github.com/fernwehlabs/mnema/internal/persona"
	"github.com/fernwehlabs/mnema/internal/retrieval"
	"github.com/fernwehlabs/mnema/internal/schedule"
	"github.com/fernwehlabs/mnema/internal/tagstore"
	"github.com/fernwehlabs/mnema/internal/vault"
)

// Options carries overrides for testing. Zero values mean "build the
// real thing from the config".
type Options struct {
	Model      llm.Client
	Store      vault.Store
	Notifier   notify.Notifier
	SignalChan chan os.Signal // for testing
}

// Engine owns every subsystem and exposes the operations the CLI and
// the daemon call.
type Engine struct {
	cfg      *config.Config
	store    vault.Store
	index    *vault.Index
	scores   *tagstore.Store
	history  *ledger.Ledger
	model    llm.Client
	who      *persona.Persona
	notifier notify.Notifier

	pipeline     *retrieval.Pipeline
	consolidator *consolidate.Consolidator
	sched        *schedule.Service

	watching   bool
	signalChan chan os.Signal
}

// Status is a point-in-time snapshot for the status command.
type Status struct {
	Persona     string
	VaultPath   string
	Profiles    int
	Summaries   int
	Transcripts int
	Tracked     int
	Ledger      ledger.Stats
	Jobs        map[string]schedule.JobState
}

// New creates an Engine with default options.
func New(cfg *config.Config) (*Engine, error) {
	return NewWithOptions(cfg, Options{})
}

// NewWithOptions creates an Engine with custom options for testing.
func NewWithOptions(cfg *config.Config, opts Options) (*Engine, error) {
	e := &Engine{cfg: cfg}

	store := opts.Store
	onDisk := false
	if store == nil {
		fs, err := vault.NewFS(cfg.Vault.Path)
		if err != nil {
			return nil, fmt.Errorf("open vault: %w", err)
		}
		store = fs
		onDisk = true
	}
	e.store = store

	for _, folder := range []string{cfg.Vault.ProfilesFolder, cfg.Vault.SummariesFolder, cfg.Vault.TranscriptsFolder} {
		if err := store.CreateFolder(folder); err != nil {
			log.Printf("[engine] create folder %s warning: %v", folder, err)
		}
	}

	e.index = vault.NewIndex(store, cfg.Vault.ProfilesFolder)
	if cfg.Vault.Watch && onDisk {
		dir := filepath.Join(cfg.Vault.Path, filepath.FromSlash(cfg.Vault.ProfilesFolder))
		if err := e.index.Watch(dir); err != nil {
			log.Printf("[engine] profile watch warning: %v", err)
		} else {
			e.watching = true
		}
	}

	e.scores = tagstore.NewStore(filepath.Join(cfg.DataDir, "tagscores.json"))

	history, err := ledger.Open(filepath.Join(cfg.DataDir, "ledger.db"))
	if err != nil {
		_ = e.index.Close()
		return nil, fmt.Errorf("open history ledger: %w", err)
	}
	e.history = history

	model := opts.Model
	if model == nil {
		model = llm.New(cfg.Provider)
	}
	e.model = model

	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	e.notifier = notifier

	e.who = persona.Load(store, cfg.Vault.PersonaNote)

	e.pipeline = retrieval.New(cfg, model, store, e.index, e.scores, e.who, notifier)
	e.consolidator = consolidate.New(cfg, model, store, e.scores, history, e.who, notifier)

	e.signalChan = opts.SignalChan

	return e, nil
}

// Persona returns the loaded companion identity.
func (e *Engine) Persona() *persona.Persona { return e.who }

// Retrieve runs the retrieval pipeline for one user message.
func (e *Engine) Retrieve(ctx context.Context, message string, history []string) *retrieval.Result {
	if !e.watching {
		if err := e.index.Refresh(); err != nil {
			log.Printf("[engine] topic index refresh warning: %v", err)
		}
	}
	return e.pipeline.Retrieve(ctx, message, history)
}

// Consolidate folds one finished conversation into the topic profiles.
func (e *Engine) Consolidate(ctx context.Context, ref string) error {
	return e.consolidator.Run(ctx, ref)
}

// Sweep consolidates every summary the ledger has no completed run
// for. Individual failures are reported and skipped so one bad
// conversation cannot block the rest. It returns the number of
// conversations consolidated.
func (e *Engine) Sweep(ctx context.Context) (int, error) {
	names, err := e.store.List(e.cfg.Vault.SummariesFolder)
	if err != nil {
		return 0, fmt.Errorf("list summaries: %w", err)
	}
	done, err := e.history.ConsolidatedRefs()
	if err != nil {
		return 0, fmt.Errorf("load consolidated refs: %w", err)
	}

	consolidated := 0
	for _, name := range names {
		if !strings.HasSuffix(name, ".md") {
			continue
		}
		ref := note.NormalizeRef(strings.TrimSuffix(name, ".md"))
		if ref == "" || done[ref] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return consolidated, err
		}
		if err := e.consolidator.Run(ctx, ref); err != nil {
			log.Printf("[engine] sweep warning: %s: %v", ref, err)
			e.notifier.Notify(notify.Event{Stage: "sweep", Message: ref, Err: err})
			continue
		}
		consolidated++
	}
	return consolidated, nil
}

// Compact drops empty score records and rewrites the score file.
func (e *Engine) Compact() error {
	return e.scores.Compact()
}

// Status reports counts across the vault and the data directory.
func (e *Engine) Status() Status {
	st := Status{
		Persona:   e.who.Name,
		VaultPath: e.cfg.Vault.Path,
		Tracked:   len(e.scores.Load()),
	}
	st.Profiles = e.countNotes(e.cfg.Vault.ProfilesFolder)
	st.Summaries = e.countNotes(e.cfg.Vault.SummariesFolder)
	st.Transcripts = e.countNotes(e.cfg.Vault.TranscriptsFolder)

	stats, err := e.history.Stats()
	if err != nil {
		log.Printf("[engine] ledger stats warning: %v", err)
	}
	st.Ledger = stats

	if e.sched != nil {
		st.Jobs = e.sched.States()
	}
	return st
}

func (e *Engine) countNotes(folder string) int {
	names, err := e.store.List(folder)
	if err != nil {
		log.Printf("[engine] list %s warning: %v", folder, err)
		return 0
	}
	n := 0
	for _, name := range names {
		if strings.HasSuffix(name, ".md") {
			n++
		}
	}
	return n
}

// Run starts the background schedule and blocks until a signal or
// context cancellation, then shuts everything down.
func (e *Engine) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if e.cfg.Schedule.Enabled {
		e.sched = schedule.NewService(filepath.Join(e.cfg.DataDir, "schedule", "state.json"))
		e.sched.AddJob(schedule.JobSweep, e.cfg.Schedule.Sweep, func(ctx context.Context) error {
			n, err := e.Sweep(ctx)
			if n > 0 {
				log.Printf("[engine] sweep consolidated %d conversations", n)
			}
			return err
		})
		e.sched.AddJob(schedule.JobCompact, e.cfg.Schedule.Compact, func(context.Context) error {
			return e.Compact()
		})
		if err := e.sched.Start(ctx); err != nil {
			log.Printf("[engine] schedule start warning: %v", err)
		}
	}

	log.Printf("[engine] %s remembering out of %s", e.who.Name, e.cfg.Vault.Path)

	// Use injected signal channel for testing, or create default
	sigCh := e.signalChan
	if sigCh == nil {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	}

	select {
	case <-sigCh:
	case <-ctx.Done():
	}

	log.Printf("[engine] shutting down...")
	return e.Close()
}

// Close releases the watcher, the scheduler and the ledger.
func (e *Engine) Close() error {
	if e.sched != nil {
		e.sched.Stop()
		e.sched = nil
	}
	if err := e.index.Close(); err != nil {
		log.Printf("[engine] close index warning: %v", err)
	}
	if err := e.history.Close(); err != nil {
		log.Printf("[engine] close ledger warning: %v", err)
	}
	log.Printf("[engine] shutdown complete")
	return nil
}
