// Command kestrel runs an autonomous security-scan agent against a target
// described by a task prompt. By default it is interactive: the agent works
// until it needs input, then waits for follow-up instructions on stdin.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/ChamsBouzaiene/kestrel/internal/agent"
	"github.com/ChamsBouzaiene/kestrel/internal/session"
)

func main() {
	_ = godotenv.Load()

	fs := flag.NewFlagSet("kestrel", flag.ExitOnError)
	taskFlag := fs.String("task", "", "Task prompt for the agent (or pass it as positional arguments)")
	typeFlag := fs.String("type", "scanner", "Agent profile to run")
	nameFlag := fs.String("name", "", "Agent name (default: the profile name)")
	sourceFlag := fs.String("source", "", "Comma-separated local paths to upload into the workspace")
	maxIterFlag := fs.Int("max-iterations", 0, "Override the profile's iteration budget")
	nonInteractive := fs.Bool("non-interactive", false, "Exit when the agent stops instead of waiting for input")
	resumeFlag := fs.String("resume", "", "Run ID to resume from its latest snapshot")

	if err := fs.Parse(os.Args[1:]); err != nil {
		log.Fatal(err)
	}

	task := strings.TrimSpace(*taskFlag)
	if task == "" {
		task = strings.TrimSpace(strings.Join(fs.Args(), " "))
	}
	if task == "" && *resumeFlag == "" {
		fmt.Fprintln(os.Stderr, "usage: kestrel [flags] <task>")
		fs.PrintDefaults()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sources []string
	for _, s := range strings.Split(*sourceFlag, ",") {
		if s = strings.TrimSpace(s); s != "" {
			sources = append(sources, s)
		}
	}

	err := run(ctx, runOptions{
		Task:           task,
		AgentType:      *typeFlag,
		Name:           *nameFlag,
		Sources:        sources,
		MaxIterations:  *maxIterFlag,
		NonInteractive: *nonInteractive,
		ResumeRunID:    *resumeFlag,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("kestrel: %v", err)
	}
}

type runOptions struct {
	Task           string
	AgentType      string
	Name           string
	Sources        []string
	MaxIterations  int
	NonInteractive bool
	ResumeRunID    string
}

func run(ctx context.Context, opts runOptions) error {
	env, err := prepareRuntimeEnv(ctx, opts.ResumeRunID)
	if err != nil {
		return err
	}
	defer env.Close()

	var restored *agent.State
	if opts.ResumeRunID != "" {
		restored, err = loadLatestState(env)
		if err != nil {
			return err
		}
		log.Printf("Resuming agent %s at iteration %d", restored.AgentID(), restored.Iteration())
	}

	ag, err := agent.New(agent.Options{
		AgentType:      opts.AgentType,
		Name:           opts.Name,
		LocalSources:   opts.Sources,
		NonInteractive: opts.NonInteractive,
		MaxIterations:  opts.MaxIterations,
		LLMConfigName:  "default",
		State:          restored,
		Client:         env.Client,
		Tools:          env.Registry,
		Provisioner:    env.Provisioner(),
		Tracer:         env.Tracer,
	})
	if err != nil {
		return err
	}

	stopSync := startSourceSync(ag.State(), opts.Sources, env.provisioner)
	defer stopSync()
	defer saveSnapshot(ctx, env, ag)

	if opts.NonInteractive {
		result, err := ag.Run(ctx, opts.Task)
		if err != nil {
			return err
		}
		printResult(result)
		return nil
	}

	return runInteractive(ctx, ag, opts.Task)
}

// runInteractive drives the agent while relaying stdin: plain lines resume a
// waiting agent, slash commands control the run.
func runInteractive(ctx context.Context, ag *agent.Agent, task string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := ag.Run(ctx, task)
		done <- err
	}()

	lines := make(chan string)
	go func() {
		s := bufio.NewScanner(os.Stdin)
		for s.Scan() {
			lines <- s.Text()
		}
		close(lines)
	}()

	fmt.Println("Commands: /stop (pause after this iteration), /cancel (abort in-flight tools), /exit")
	for {
		select {
		case err := <-done:
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		case line, ok := <-lines:
			if !ok {
				cancel()
				err := <-done
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			}
			line = strings.TrimSpace(line)
			switch {
			case line == "":
			case line == "/exit":
				cancel()
				<-done
				return nil
			case line == "/stop":
				ag.State().RequestStop()
			case line == "/cancel":
				ag.CancelCurrentExecution()
			case ag.State().IsWaitingForInput() || ag.State().IsLLMFailed():
				ag.Resume(line)
			default:
				log.Println("agent is busy; use /cancel to interrupt or wait for it to pause")
			}
		}
	}
}

// loadLatestState restores the most recent snapshot of the resumed run.
func loadLatestState(env *runtimeEnv) (*agent.State, error) {
	metas, err := env.Sessions.List(env.RunID)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots for run %s: %w", env.RunID, err)
	}
	if len(metas) == 0 {
		return nil, fmt.Errorf("no snapshots found for run %s", env.RunID)
	}
	snap, err := env.Sessions.Load(env.RunID, metas[0].AgentID)
	if err != nil {
		return nil, err
	}
	return agent.RestoreState(snap), nil
}

// saveSnapshot persists the agent's state for later resumption, attaching a
// model-generated summary when the backend is reachable.
func saveSnapshot(ctx context.Context, env *runtimeEnv, ag *agent.Agent) {
	snap := ag.State().Snapshot()
	if len(snap.History) == 0 {
		return
	}

	if env.Client != nil && ctx.Err() == nil {
		summarizer := session.NewSummarizer(env.Client, env.LLMConfig.Model)
		if summary, err := summarizer.GenerateSummary(ctx, snap.History); err == nil {
			snap.Summary = summary
		}
	}

	if err := env.Sessions.Save(env.RunID, snap); err != nil {
		log.Printf("warning: failed to save session snapshot: %v", err)
	} else {
		log.Printf("Session saved; resume with: kestrel -resume %s", env.RunID)
	}
}

func printResult(result agent.Result) {
	if content, ok := result["content"].(string); ok && content != "" {
		fmt.Println(content)
		return
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Printf("%v\n", result)
		return
	}
	fmt.Println(string(data))
}
