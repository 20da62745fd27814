package agent

import (
	"context"
	"fmt"

	"github.com/nguyentuongbachhy/Interact-UI-Agent/internal/action"
)

// RunSingle performs exactly one decide-execute cycle with no retries and no
// completion check. Useful for interactive drivers that want to own the loop
// themselves. Every failure is reported through the result, never raised.
func (r *Runner) RunSingle(ctx context.Context, task string) SingleStepResult {
	pageCtx, err := r.surface.ExtractContext(ctx)
	if err != nil {
		return SingleStepResult{
			Success: false,
			Error:   fmt.Sprintf("failed to extract context: %v", err),
		}
	}

	rawText, err := r.oracle.Decide(ctx, BuildSystemPrompt(), BuildUserPrompt(pageCtx, task))
	if err != nil {
		return SingleStepResult{
			Success:        false,
			CurrentContext: &pageCtx,
			Error:          fmt.Sprintf("oracle decision: %v", err),
		}
	}

	act, err := action.ParseRequest(rawText)
	if err != nil {
		return SingleStepResult{
			Success:        false,
			CurrentContext: &pageCtx,
			Error:          fmt.Sprintf("failed to parse oracle decision: %v", err),
			RawDecision:    rawText,
		}
	}

	resp, err := r.surface.ExecuteAction(ctx, act)
	if err != nil {
		return SingleStepResult{
			Success:        false,
			ActionDecided:  &act,
			CurrentContext: &pageCtx,
			Error:          fmt.Sprintf("action execution: %v", err),
			RawDecision:    rawText,
		}
	}

	// Re-snapshot so the caller sees the post-action page. Failure here is
	// non-fatal; the pre-action context is kept.
	if after, err := r.surface.ExtractContext(ctx); err == nil {
		pageCtx = after
	} else {
		r.logger.Warn().Err(err).Msg("failed to extract context after action")
	}

	return SingleStepResult{
		Success:        resp.Success,
		ActionDecided:  &act,
		ActionResult:   &resp,
		CurrentContext: &pageCtx,
		RawDecision:    rawText,
	}
}
