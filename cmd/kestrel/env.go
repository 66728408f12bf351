package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ChamsBouzaiene/kestrel/internal/agent"
	"github.com/ChamsBouzaiene/kestrel/internal/config"
	"github.com/ChamsBouzaiene/kestrel/internal/knowledge"
	"github.com/ChamsBouzaiene/kestrel/internal/llm"
	"github.com/ChamsBouzaiene/kestrel/internal/providers"
	"github.com/ChamsBouzaiene/kestrel/internal/sandbox"
	"github.com/ChamsBouzaiene/kestrel/internal/session"
	"github.com/ChamsBouzaiene/kestrel/internal/tools"
	"github.com/ChamsBouzaiene/kestrel/internal/tracer"
)

// runtimeEnv bundles the per-run infrastructure: telemetry sinks, the
// knowledge index, the sandbox layer, and the model backend.
type runtimeEnv struct {
	Config    *config.Config
	RunID     string
	RunDir    string
	Tracer    tracer.Tracer
	Knowledge *knowledge.Index
	Sessions  *session.Store
	Registry  *agent.Registry
	Client    llm.Client
	LLMConfig llm.Config

	provisioner *sandbox.DockerProvisioner
	store       *tracer.Store
}

func (e *runtimeEnv) Close() {
	if e.provisioner != nil {
		e.provisioner.Close()
	}
	if e.Knowledge != nil {
		e.Knowledge.Close()
	}
	if e.store != nil {
		e.store.Close()
	}
}

// Provisioner returns the sandbox provisioner, nil when running locally.
func (e *runtimeEnv) Provisioner() sandbox.Provisioner {
	if e.provisioner == nil {
		return nil
	}
	return e.provisioner
}

func prepareRuntimeEnv(ctx context.Context, runID string) (*runtimeEnv, error) {
	manager, err := config.NewManager()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize config manager: %w", err)
	}
	cfg, err := manager.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	runsRoot, err := manager.ResolveRunDir(cfg)
	if err != nil {
		return nil, err
	}
	if runID == "" {
		runID = time.Now().UTC().Format("20060102-150405") + "-" + uuid.NewString()[:8]
	}
	runDir := filepath.Join(runsRoot, runID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create run dir: %w", err)
	}
	log.Printf("Run directory: %s", runDir)

	env := &runtimeEnv{
		Config: cfg,
		RunID:  runID,
		RunDir: runDir,
	}

	// Telemetry: human-readable log plus a queryable SQLite trace.
	sinks := []tracer.Tracer{tracer.NewLogTracer(log.Default())}
	store, err := tracer.NewStore(ctx, filepath.Join(runDir, "trace.db"))
	if err != nil {
		log.Printf("warning: trace store unavailable: %v (continuing with log only)", err)
	} else {
		env.store = store
		sinks = append(sinks, store)
	}
	env.Tracer = tracer.NewMulti(sinks...)

	index, err := knowledge.Open(filepath.Join(runDir, "knowledge.bleve"))
	if err != nil {
		log.Printf("warning: knowledge index unavailable: %v (notes disabled)", err)
	} else {
		env.Knowledge = index
	}

	env.Sessions = session.NewStore(runsRoot)

	// Model backend. The resolved config is registered under "default" so
	// profiles can reference it by name.
	llmCfg := llm.Config{
		Provider: cfg.LLMProvider,
		APIKey:   cfg.APIKey,
		Model:    cfg.Model,
		BaseURL:  cfg.BaseURL,
	}
	client, resolved, err := providers.NewClient(llmCfg)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.Client = client
	env.LLMConfig = resolved
	llm.RegisterConfig("default", resolved)

	// Sandbox layer. Inside a provisioned workspace (or with Docker
	// disabled) commands run directly on the local machine.
	var executor sandbox.Executor
	if sandbox.InSandboxMode() || os.Getenv("KESTREL_NO_DOCKER") != "" {
		executor = &sandbox.LocalExecutor{}
		log.Println("Sandbox: local execution (no container isolation)")
	} else {
		sandboxCfg := sandbox.DefaultConfig()
		if cfg.SandboxImage != "" {
			sandboxCfg.Image = cfg.SandboxImage
		}
		provisioner, perr := sandbox.NewDockerProvisioner(sandboxCfg)
		if perr != nil {
			log.Printf("warning: Docker unavailable: %v (falling back to local execution)", perr)
			executor = &sandbox.LocalExecutor{}
		} else {
			env.provisioner = provisioner
			executor = provisioner
			log.Printf("Sandbox: Docker, image %s", sandboxCfg.Image)
		}
	}

	env.Registry = tools.BuildRegistry(tools.Deps{
		Executor:     executor,
		Knowledge:    env.Knowledge,
		FirecrawlKey: cfg.FirecrawlKey,
		Synthesizer:  client,
		Model:        resolved.Model,
	})

	return env, nil
}

// startSourceSync begins mirroring local source edits into the agent's
// workspace once it has been provisioned. Returns a stop function.
func startSourceSync(st *agent.State, sources []string, provisioner *sandbox.DockerProvisioner) func() {
	if provisioner == nil || len(sources) == 0 {
		return func() {}
	}

	stopped := make(chan struct{})
	var mu sync.Mutex
	var syncer *sandbox.SourceSyncer

	go func() {
		// The workspace handle appears on the state during bootstrap.
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		deadline := time.After(2 * time.Minute)
		for {
			select {
			case <-stopped:
				return
			case <-deadline:
				return
			case <-ticker.C:
				info, ok := st.Sandbox()
				if !ok {
					continue
				}
				s, err := sandbox.NewSourceSyncer(info.WorkspaceID, sources, provisioner)
				if err != nil {
					log.Printf("warning: source sync unavailable: %v", err)
					return
				}
				if err := s.Start(); err != nil {
					log.Printf("warning: source sync failed to start: %v", err)
					return
				}
				mu.Lock()
				syncer = s
				mu.Unlock()
				log.Printf("Source sync active for %d path(s)", len(sources))
				return
			}
		}
	}()

	return func() {
		close(stopped)
		mu.Lock()
		defer mu.Unlock()
		if syncer != nil {
			syncer.Stop()
		}
	}
}
