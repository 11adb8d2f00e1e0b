package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"kbsync/internal/config"
	"kbsync/internal/ingest"
	"kbsync/internal/kbapi"
	"kbsync/internal/model"
	"kbsync/internal/query"
	"kbsync/internal/registry"
	"kbsync/internal/store"
)

// app wires the orchestrator stack for one command invocation.
type app struct {
	cfg      *config.Config
	journal  *store.SQLiteStore
	registry *registry.Registry
	client   *kbapi.Client
	orch     *ingest.Orchestrator
	styles   styles
}

// newApp loads config and builds the component graph. When hydrate is true
// the registry is pre-filled from the journal (status/ask/retry); `up`
// starts from an empty registry so its view shows only this session's
// uploads.
func newApp(ctx context.Context, hydrate bool) (*app, error) {
	overrides := &config.Overrides{}
	if globalFlags.BaseURL != "" {
		overrides.BaseURL = &globalFlags.BaseURL
	}
	if globalFlags.APIKey != "" {
		overrides.APIKey = &globalFlags.APIKey
	}
	if globalFlags.StateDir != "" {
		overrides.StateDir = &globalFlags.StateDir
	}

	cfg, err := config.Load(config.Options{
		ConfigPath: globalFlags.ConfigPath,
		Overrides:  overrides,
	})
	if err != nil {
		exitWith(ExitConfigInvalid, "ERROR: "+err.Error())
	}

	stateDir := cfg.StateDir
	if stateDir == "" {
		stateDir = filepath.Join(".", ".kbsync")
	}
	if err := os.MkdirAll(stateDir, 0o700); err != nil {
		return nil, fmt.Errorf("state dir: %w", err)
	}

	journal := store.NewSQLiteStore(filepath.Join(stateDir, "journal.db"))
	if err := journal.Init(ctx); err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}

	reg := registry.New(journal)
	if hydrate {
		if err := reg.Hydrate(ctx); err != nil {
			return nil, fmt.Errorf("journal load: %w", err)
		}
	}

	client := kbapi.NewClient(cfg.API.BaseURL, cfg.API.APIKey, time.Duration(cfg.API.TimeoutSecs)*time.Second)

	a := &app{
		cfg:      cfg,
		journal:  journal,
		registry: reg,
		client:   client,
		styles:   newStyles(os.Stdout, globalFlags.JSON),
	}
	a.orch = &ingest.Orchestrator{
		API:             client,
		Registry:        reg,
		Limits:          cfg.Upload,
		PollInterval:    time.Duration(cfg.Poll.IntervalSecs) * time.Second,
		MaxPollAttempts: cfg.Poll.MaxAttempts,
	}
	a.orch.SetNotify(a.printEvent)
	return a, nil
}

func (a *app) close() {
	_ = a.journal.Close()
}

func (a *app) gateway() *query.Gateway {
	return &query.Gateway{API: a.client, Registry: a.registry}
}

// printEvent is the default event sink for plain-output commands; the
// upload progress UI swaps in its own.
func (a *app) printEvent(ev model.Event) {
	if globalFlags.Quiet {
		return
	}
	name := ev.Name
	if name == "" {
		name = ev.DocumentID
	}
	switch ev.Kind {
	case model.EventError:
		fmt.Fprintf(os.Stderr, "%s %s: %s\n", a.styles.errPrefix(), name, ev.Message)
	default:
		fmt.Fprintf(os.Stderr, "%s %s\n", a.styles.dim(name+":"), ev.Message)
	}
}
