package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/ChamsBouzaiene/kestrel/internal/llm"
	"github.com/ChamsBouzaiene/kestrel/internal/tracer"
)

// Outcome is the tri-state result of dispatching one tool batch.
type Outcome int

const (
	// OutcomeContinue means the loop proceeds to the next iteration.
	OutcomeContinue Outcome = iota
	// OutcomeFinish means a tool requested run termination.
	OutcomeFinish
	// OutcomeCancelled means the batch was aborted cooperatively.
	OutcomeCancelled
)

// Dispatcher executes one batch of tool invocations as a single cancellable
// unit of work.
type Dispatcher struct {
	registry *Registry
	tracer   tracer.Tracer
}

// NewDispatcher creates a dispatcher over the given tool registry.
func NewDispatcher(registry *Registry, tr tracer.Tracer) *Dispatcher {
	if tr == nil {
		tr = tracer.Noop{}
	}
	return &Dispatcher{registry: registry, tracer: tr}
}

// Process runs the batch against the given history snapshot and returns the
// extended history. Tool failures are folded into the history as error
// results (the model sees them and adapts); they never abort the batch.
// Cooperative cancellation does abort it: Process returns OutcomeCancelled
// with a nil history, and the caller must not commit any partial results.
func (d *Dispatcher) Process(ctx context.Context, batch []llm.ToolInvocation, history []llm.Message, st *State) ([]llm.Message, Outcome, error) {
	finish := false

	for _, inv := range batch {
		if err := ctx.Err(); err != nil {
			return nil, OutcomeCancelled, err
		}

		result, err := d.runOne(ctx, inv, st)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
				return nil, OutcomeCancelled, context.Canceled
			}
			result = Output{Content: fmt.Sprintf("Error: %v", err)}
		}

		history = append(history, llm.Message{
			Role:    llm.RoleTool,
			Name:    inv.ID,
			Content: result.Content,
		})
		if result.Finish {
			finish = true
		}
	}

	if finish {
		return history, OutcomeFinish, nil
	}
	return history, OutcomeContinue, nil
}

// runOne validates and executes a single invocation, reporting it to the
// telemetry sink.
func (d *Dispatcher) runOne(ctx context.Context, inv llm.ToolInvocation, st *State) (Output, error) {
	tool, err := d.registry.Get(inv.Name)
	if err != nil {
		return Output{}, err
	}

	execID := d.tracer.LogToolExecutionStart(st.AgentID(), inv.Name, inv.Args)

	if err := tool.ValidateArgs(inv.Args); err != nil {
		d.tracer.UpdateToolExecution(execID, "failed", err.Error())
		return Output{}, err
	}

	out, err := tool.Run(ctx, inv.Args, st)
	if err != nil {
		d.tracer.UpdateToolExecution(execID, "failed", err.Error())
		return Output{}, err
	}

	d.tracer.UpdateToolExecution(execID, "completed", out.Content)
	return out, nil
}
