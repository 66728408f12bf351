package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/ChamsBouzaiene/kestrel/internal/llm"
	"github.com/ChamsBouzaiene/kestrel/internal/prompts"
	"github.com/ChamsBouzaiene/kestrel/internal/sandbox"
	"github.com/ChamsBouzaiene/kestrel/internal/tracer"
)

// Options configures an agent at construction.
type Options struct {
	// AgentType selects the profile (system prompt, budget, toolset).
	AgentType string
	// Name overrides the agent name; defaults to the agent type.
	Name string

	// LocalSources are directories or files to upload into the sandbox.
	LocalSources []string
	// NonInteractive makes every stopping condition terminal instead of
	// entering a resumable waiting state.
	NonInteractive bool
	// MaxIterations overrides the profile's advisory budget.
	MaxIterations int

	// LLMConfigName resolves a registered backend configuration; LLMConfig
	// overrides it directly. One of the two must yield a configuration.
	LLMConfigName string
	LLMConfig     *llm.Config

	// State resumes from a prior state record instead of creating fresh.
	State *State

	// Client is the provider client the LLM wrapper drives.
	Client llm.Client
	// Tools is the full tool registry; the profile's toolset restricts it.
	Tools *Registry
	// Provisioner creates the sandbox; nil skips provisioning.
	Provisioner sandbox.Provisioner
	// Tracer receives telemetry; nil means no telemetry.
	Tracer tracer.Tracer

	// Profiles overrides the profile registry; nil uses the default.
	Profiles *prompts.ProfileRegistry

	// OnIterationError decides whether a recoverable iteration error should
	// keep the loop running. Nil means always recover.
	OnIterationError func(err error) bool
}

// Agent is one control loop instance pursuing a single task.
type Agent struct {
	profile        *prompts.Profile
	state          *State
	llm            *llm.LLM
	dispatcher     *Dispatcher
	tracer         tracer.Tracer
	provisioner    sandbox.Provisioner
	localSources   []string
	nonInteractive bool
	onIterError    func(err error) bool

	mu             sync.Mutex
	cancelDispatch context.CancelFunc
}

// New builds an agent from options. A model backend configuration is
// required; its absence is a construction-time failure.
func New(opts Options) (*Agent, error) {
	profiles := opts.Profiles
	if profiles == nil {
		profiles = prompts.DefaultRegistry()
	}
	profile, err := profiles.Get(opts.AgentType)
	if err != nil {
		return nil, err
	}

	cfg, err := resolveLLMConfig(opts, profile)
	if err != nil {
		return nil, err
	}

	if opts.Client == nil {
		return nil, fmt.Errorf("llm client is required")
	}
	if opts.Tools == nil {
		return nil, fmt.Errorf("tool registry is required")
	}

	maxIterations := profile.DefaultMaxIterations
	if opts.MaxIterations > 0 {
		maxIterations = opts.MaxIterations
	}

	name := opts.Name
	if name == "" {
		name = profile.Type
	}

	st := opts.State
	if st == nil {
		st = NewState(name, profile.Type, maxIterations)
	}

	tr := opts.Tracer
	if tr == nil {
		tr = tracer.Noop{}
	}

	toolset := opts.Tools.Subset(profile.Toolset)
	model := llm.New(opts.Client, cfg, toolset.Schemas())
	model.SetAgentIdentity(name, st.AgentID())

	a := &Agent{
		profile:        profile,
		state:          st,
		llm:            model,
		dispatcher:     NewDispatcher(toolset, tr),
		tracer:         tr,
		provisioner:    opts.Provisioner,
		localSources:   opts.LocalSources,
		nonInteractive: opts.NonInteractive,
		onIterError:    opts.OnIterationError,
	}

	tr.LogAgentCreation(st.AgentID(), st.AgentName(), st.Task(), "")
	return a, nil
}

func resolveLLMConfig(opts Options, profile *prompts.Profile) (llm.Config, error) {
	if opts.LLMConfig != nil {
		return *opts.LLMConfig, nil
	}
	name := opts.LLMConfigName
	if name == "" {
		name = profile.LLMConfigName
	}
	if name == "" {
		name = "default"
	}
	return llm.LookupConfig(name)
}

// State exposes the state record for external observation and resume/stop
// signalling.
func (a *Agent) State() *State { return a.state }

// CancelCurrentExecution aborts the in-flight tool-dispatch unit, if any.
// Calling it with nothing in flight is a no-op.
func (a *Agent) CancelCurrentExecution() {
	a.mu.Lock()
	cancel := a.cancelDispatch
	a.cancelDispatch = nil
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Resume injects operator input into a waiting agent and wakes it.
func (a *Agent) Resume(input string) {
	if input != "" {
		a.state.AddMessage(llm.RoleUser, input)
		a.tracer.LogChatMessage(a.state.AgentID(), string(llm.RoleUser), input)
	}
	a.state.ResumeFromWaiting()
	a.tracer.UpdateAgentStatus(a.state.AgentID(), tracer.StatusRunning, "")
}

// initialize provisions the sandbox (unless the process already runs inside
// one), renders the system prompt, and records the task as the first user
// turn.
func (a *Agent) initialize(ctx context.Context, task string) error {
	if _, ok := a.state.Sandbox(); !ok && !sandbox.InSandboxMode() && a.provisioner != nil {
		info, err := a.provisioner.CreateSandbox(ctx, a.state.AgentID(), a.state.SandboxToken(), a.localSources)
		if err != nil {
			return fmt.Errorf("failed to provision sandbox: %w", err)
		}
		a.state.SetSandbox(info)
	}

	a.state.SetTask(task)

	if len(a.state.History()) == 0 {
		workspaceID := ""
		if info, ok := a.state.Sandbox(); ok {
			workspaceID = info.WorkspaceID
		}
		system, err := prompts.RenderSystemPrompt(a.profile, prompts.Context{
			AgentName:    a.state.AgentName(),
			AgentID:      a.state.AgentID(),
			Task:         a.state.Task(),
			WorkspaceID:  workspaceID,
			SandboxToken: a.state.SandboxToken(),
		})
		if err != nil {
			return err
		}
		a.state.AddMessage(llm.RoleSystem, system)
	}

	// Resumed runs may pass an empty task; the restored history already
	// carries the original request.
	if task != "" {
		a.state.AddMessage(llm.RoleUser, task)
		a.tracer.LogChatMessage(a.state.AgentID(), string(llm.RoleUser), task)
	}
	return nil
}
