package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/nguyentuongbachhy/Interact-UI-Agent/internal/action"
	"github.com/nguyentuongbachhy/Interact-UI-Agent/internal/snapshot"
)

const (
	DefaultMaxSteps          = 20
	DefaultMaxRetriesPerStep = 3
)

// Oracle is the decision-making service consulted for the next action and
// for task-completion judgement. Treated as untrusted input: free text comes
// back and everything downstream validates it.
type Oracle interface {
	Decide(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Surface is the browser the loop drives: fresh context snapshots in, typed
// actions out.
type Surface interface {
	ExtractContext(ctx context.Context) (snapshot.Context, error)
	ExecuteAction(ctx context.Context, req action.Request) (action.Response, error)
}

// Config is supplied once at run start and is immutable for the run.
// MaxSteps == 0 and MaxRetriesPerStep == 0 are valid: they mean a zero-step
// run and single-attempt steps respectively.
type Config struct {
	MaxSteps          int
	MaxRetriesPerStep int
}

func DefaultConfig() Config {
	return Config{
		MaxSteps:          DefaultMaxSteps,
		MaxRetriesPerStep: DefaultMaxRetriesPerStep,
	}
}

// Runner drives a task to one of three terminal conditions: completion,
// step exhaustion, or fatal error. Every exit produces a structured result;
// the runner never raises an unhandled fault to its caller.
type Runner struct {
	cfg     Config
	oracle  Oracle
	surface Surface
	logger  zerolog.Logger
}

func NewRunner(cfg Config, oracle Oracle, surface Surface, logger zerolog.Logger) *Runner {
	return &Runner{
		cfg:     cfg,
		oracle:  oracle,
		surface: surface,
		logger:  logger,
	}
}

// Run executes the multi-step feedback loop for a task.
func (r *Runner) Run(ctx context.Context, task string) MultiStepExecutionResult {
	steps := make([]ConversationStep, 0, r.cfg.MaxSteps)
	totalRetries := 0

	r.logger.Info().
		Str("task", task).
		Int("max_steps", r.cfg.MaxSteps).
		Int("max_retries", r.cfg.MaxRetriesPerStep).
		Msg("starting multi-step run")

	engine := &stepEngine{
		oracle:     r.oracle,
		surface:    r.surface,
		logger:     r.logger,
		maxRetries: r.cfg.MaxRetriesPerStep,
	}

	for stepNum := 1; stepNum <= r.cfg.MaxSteps; stepNum++ {
		r.logger.Info().Int("step", stepNum).Int("max_steps", r.cfg.MaxSteps).Msg("step")

		// Context extraction failure at the top of a step is fatal for the run.
		pageCtx, err := r.surface.ExtractContext(ctx)
		if err != nil {
			return MultiStepExecutionResult{
				TaskCompleted: false,
				StepsTaken:    len(steps),
				MaxSteps:      r.cfg.MaxSteps,
				Steps:         steps,
				Error:         fmt.Sprintf("failed to extract context at step %d: %v", stepNum, err),
				RetriesCount:  totalRetries,
			}
		}

		r.logger.Info().
			Str("url", pageCtx.URL).
			Str("title", pageCtx.Title).
			Int("elements", len(pageCtx.Elements)).
			Msg("snapshot")

		userPrompt := BuildUserPrompt(pageCtx, task)
		outcome, err := engine.run(ctx, pageCtx, task, BuildSystemPrompt(), userPrompt)
		if err != nil {
			finalCtx := pageCtx
			return MultiStepExecutionResult{
				TaskCompleted: false,
				StepsTaken:    len(steps),
				MaxSteps:      r.cfg.MaxSteps,
				Steps:         steps,
				FinalContext:  &finalCtx,
				Error:         fmt.Sprintf("failed at step %d after retries: %v", stepNum, err),
				RetriesCount:  totalRetries,
			}
		}
		totalRetries += outcome.retries

		// Post-action extraction failure is non-fatal: the run continues on
		// the pre-action context.
		contextAfter, err := r.surface.ExtractContext(ctx)
		if err != nil {
			r.logger.Warn().Err(err).Msg("failed to extract context after action")
			contextAfter = pageCtx
		}

		steps = append(steps, ConversationStep{
			StepNumber:    stepNum,
			ActionDecided: outcome.action,
			ActionResult:  outcome.response,
			ContextAfter:  contextAfter,
			RawDecision:   outcome.rawText,
		})

		completed, err := r.checkCompletion(ctx, contextAfter, task, steps)
		if err != nil {
			finalCtx := contextAfter
			return MultiStepExecutionResult{
				TaskCompleted: false,
				StepsTaken:    len(steps),
				MaxSteps:      r.cfg.MaxSteps,
				Steps:         steps,
				FinalContext:  &finalCtx,
				Error:         fmt.Sprintf("completion check failed at step %d: %v", stepNum, err),
				RetriesCount:  totalRetries,
			}
		}
		if completed {
			r.logger.Info().Int("step", stepNum).Msg("task completed")
			finalCtx := contextAfter
			return MultiStepExecutionResult{
				TaskCompleted: true,
				StepsTaken:    stepNum,
				MaxSteps:      r.cfg.MaxSteps,
				Steps:         steps,
				FinalContext:  &finalCtx,
				RetriesCount:  totalRetries,
			}
		}

		r.logger.Info().Msg("task not yet complete, continuing")
	}

	// Step budget exhausted without completion.
	var finalCtx *snapshot.Context
	if extracted, err := r.surface.ExtractContext(ctx); err == nil {
		finalCtx = &extracted
	}
	return MultiStepExecutionResult{
		TaskCompleted: false,
		StepsTaken:    r.cfg.MaxSteps,
		MaxSteps:      r.cfg.MaxSteps,
		Steps:         steps,
		FinalContext:  finalCtx,
		Error:         fmt.Sprintf("Reached maximum steps (%d) without completing task", r.cfg.MaxSteps),
		RetriesCount:  totalRetries,
	}
}

const completionSystemPrompt = "You are a task completion evaluator."

// checkCompletion asks the completion oracle whether the task is done based
// on the full step history and the current page. A reply that fails to parse
// never counts as success; it means "keep going".
func (r *Runner) checkCompletion(ctx context.Context, pageCtx snapshot.Context, task string, steps []ConversationStep) (bool, error) {
	var summary strings.Builder
	for _, step := range steps {
		desc := step.ActionResult.Reason
		if desc == "" {
			desc = step.ActionResult.Error
		}
		if desc == "" {
			desc = "completed"
		}
		fmt.Fprintf(&summary, "Step %d: %s - %s\n", step.StepNumber, step.ActionDecided.Serialized(), desc)
	}

	prompt := fmt.Sprintf(`You are evaluating if a task has been completed.

Original Task: %s

Steps taken so far:
%s

Current page state:
URL: %s
Title: %s

Question: Has the task been fully completed based on the steps taken and current page state?

Respond with a JSON object:
{
  "completed": true or false,
  "reason": "brief explanation"
}

IMPORTANT: Respond ONLY with valid JSON.`,
		task, summary.String(), pageCtx.URL, pageCtx.Title)

	reply, err := r.oracle.Decide(ctx, completionSystemPrompt, prompt)
	if err != nil {
		return false, err
	}

	var verdict struct {
		Completed bool   `json:"completed"`
		Reason    string `json:"reason"`
	}
	jsonStr, err := action.ExtractJSON(reply)
	if err != nil {
		r.logger.Warn().Str("reply", reply).Msg("completion reply did not contain JSON, assuming not complete")
		return false, nil
	}
	if err := json.Unmarshal([]byte(jsonStr), &verdict); err != nil {
		r.logger.Warn().Err(err).Msg("failed to parse completion reply, assuming not complete")
		return false, nil
	}

	r.logger.Info().
		Bool("completed", verdict.Completed).
		Str("reason", verdict.Reason).
		Msg("completion check")
	return verdict.Completed, nil
}
