package agent

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/nguyentuongbachhy/Interact-UI-Agent/internal/action"
	"github.com/nguyentuongbachhy/Interact-UI-Agent/internal/snapshot"
)

// StepState names the phases of one step attempt. The bounded-retry contract
// is easier to test with the machine spelled out than with nested branching.
type StepState int

const (
	StateDeciding StepState = iota
	StateParsing
	StateExecuting
	StateRetrying
	StateSucceeded
	StateExhausted
)

func (s StepState) String() string {
	switch s {
	case StateDeciding:
		return "deciding"
	case StateParsing:
		return "parsing"
	case StateExecuting:
		return "executing"
	case StateRetrying:
		return "retrying"
	case StateSucceeded:
		return "succeeded"
	case StateExhausted:
		return "exhausted"
	}
	return "unknown"
}

// stepOutcome is what a successful step hands back to the controller.
type stepOutcome struct {
	action   action.Request
	response action.Response
	rawText  string
	retries  int
}

// stepEngine drives decide -> parse -> execute for one step, with bounded
// feedback-augmented retries. maxRetries is inclusive of the final attempt:
// maxRetries+1 total oracle rounds.
type stepEngine struct {
	oracle  Oracle
	surface Surface
	logger  zerolog.Logger

	maxRetries int
}

// lastFailure memoizes what went wrong in the previous attempt so the retry
// prompt can feed it back to the oracle.
type lastFailure struct {
	failedAction string
	errMsg       string
	suggestion   string
}

// run executes the per-step state machine.
//
// Transition rules:
//   - oracle transport failure is fatal and propagates immediately; the
//     engine never masks oracle unavailability behind a retry
//   - unparseable decision text retries with the same prompt (there is no
//     action to describe yet)
//   - a structured action rejection retries with the feedback-augmented
//     prompt built from the serialized action, the failure message, and the
//     executor's suggestion
//   - a hard execution error retries with a generic suggestion; if exhausted
//     the error propagates
func (e *stepEngine) run(ctx context.Context, pageCtx snapshot.Context, task, systemPrompt, userPrompt string) (stepOutcome, error) {
	currentPrompt := userPrompt
	attempt := 0
	state := StateDeciding

	var (
		rawText  string
		act      action.Request
		accepted action.Response
		memo     lastFailure
		lastErr  error
	)

	for {
		switch state {
		case StateDeciding:
			if attempt > 0 {
				e.logger.Info().
					Int("attempt", attempt).
					Int("max_retries", e.maxRetries).
					Msg("step retry")
			}
			text, err := e.oracle.Decide(ctx, systemPrompt, currentPrompt)
			if err != nil {
				return stepOutcome{}, fmt.Errorf("oracle decision: %w", err)
			}
			rawText = text
			state = StateParsing

		case StateParsing:
			parsed, err := action.ParseRequest(rawText)
			if err != nil {
				e.logger.Warn().Err(err).Msg("decision did not parse as an action")
				lastErr = fmt.Errorf("failed to parse oracle decision: %w", err)
				if attempt < e.maxRetries {
					// No action to describe yet, so retry with the same prompt.
					attempt++
					state = StateDeciding
					continue
				}
				state = StateExhausted
				continue
			}
			act = parsed
			state = StateExecuting

		case StateExecuting:
			e.logger.Debug().Str("action", act.Serialized()).Msg("attempting action")
			resp, err := e.surface.ExecuteAction(ctx, act)
			if err != nil {
				e.logger.Warn().Err(err).Msg("action execution error")
				lastErr = err
				memo = lastFailure{
					failedAction: act.Serialized(),
					errMsg:       err.Error(),
					suggestion:   "Check if the element exists and is interactable",
				}
				if attempt < e.maxRetries {
					state = StateRetrying
					continue
				}
				state = StateExhausted
				continue
			}
			if !resp.Success {
				msg := resp.Message()
				e.logger.Warn().Str("error", msg).Msg("action rejected")
				lastErr = fmt.Errorf("action failed after %d retries: %s", e.maxRetries, msg)
				memo = lastFailure{
					failedAction: act.Serialized(),
					errMsg:       msg,
					suggestion:   resp.SuggestionOrDefault(),
				}
				if attempt < e.maxRetries {
					state = StateRetrying
					continue
				}
				state = StateExhausted
				continue
			}
			accepted = resp
			state = StateSucceeded

		case StateRetrying:
			currentPrompt = BuildRetryPrompt(pageCtx, task, memo.failedAction, memo.errMsg, memo.suggestion)
			attempt++
			state = StateDeciding

		case StateSucceeded:
			e.logger.Debug().Int("retries", attempt).Msg("action succeeded")
			return stepOutcome{action: act, response: accepted, rawText: rawText, retries: attempt}, nil

		case StateExhausted:
			return stepOutcome{}, lastErr
		}
	}
}
