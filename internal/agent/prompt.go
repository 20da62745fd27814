package agent

import (
	"fmt"
	"strings"

	"github.com/nguyentuongbachhy/Interact-UI-Agent/internal/snapshot"
)

// Prompt builders are pure: same inputs, byte-identical output. No I/O, no
// clock, no randomness, so they unit test without a live oracle or browser.

const systemPrompt = `You are a UI automation agent that controls a web browser to accomplish user tasks.

Your capabilities:
1. You can see the current page context as an Accessibility Tree (AXTree)
2. You can execute actions: click, type, scroll, wait_for_element, navigate
3. You receive smart feedback when actions fail with suggestions for recovery

Action Format (respond in JSON):
{
  "tool": "click" | "type" | "scroll" | "wait_for_element" | "navigate",
  "role": "button" | "link" | "textbox" | "combobox" | etc,
  "name": "element name from AXTree",
  "text": "text to type (for type action)",
  "direction": "up" | "down" | "left" | "right" (for scroll),
  "amount": number (for scroll, optional),
  "url": "URL to navigate to (for navigate)"
}

Guidelines:
1. Always use semantic selectors (role + name) from the AXTree context
2. Prefer elements that are in_viewport: true
3. If an element is not in viewport, scroll to it first
4. If an action fails, read the suggestion in the error response
5. Be precise with element names - match exactly as shown in the AXTree

Example AXTree format:
[1] Button('Login') - in_viewport: true
[2] Textbox('Username') - in_viewport: true
[3] Textbox('Password') - in_viewport: false

Example actions:
- Click login button: {"tool": "click", "role": "button", "name": "Login"}
- Type username: {"tool": "type", "role": "textbox", "name": "Username", "text": "john@example.com"}
- Scroll to see password field: {"tool": "scroll", "direction": "down", "amount": 300}

IMPORTANT: Respond ONLY with a single valid JSON action object. No explanations, no markdown, just JSON.`

// BuildSystemPrompt returns the fixed instruction block for the decision
// oracle: action vocabulary, selector model, and the bare-JSON reply rule.
func BuildSystemPrompt() string {
	return systemPrompt
}

// BuildUserPrompt renders the page state plus the task. An empty element
// list is valid and renders as an empty block.
func BuildUserPrompt(ctx snapshot.Context, task string) string {
	return fmt.Sprintf(`Current Page State:
URL: %s
Title: %s
Viewport: %dx%d (scroll: %g, %g)

Available Elements (Accessibility Tree):
%s

Your Task: %s

Please provide the NEXT SINGLE ACTION to accomplish this task as a JSON object.`,
		ctx.URL,
		ctx.Title,
		ctx.Viewport.Width,
		ctx.Viewport.Height,
		ctx.Viewport.ScrollX,
		ctx.Viewport.ScrollY,
		renderElements(ctx.Elements),
		task,
	)
}

// BuildRetryPrompt renders the same context block plus the failed action,
// the error, and the recovery suggestion, asking for a corrected action.
func BuildRetryPrompt(ctx snapshot.Context, task, failedAction, errorMessage, suggestion string) string {
	return fmt.Sprintf(`Current Page State:
URL: %s
Title: %s

Available Elements (Accessibility Tree):
%s

Your Task: %s

Previous Action Attempted:
%s

This action failed with error: %s

Suggestion: %s

Based on this feedback, please provide the CORRECTED NEXT ACTION as a JSON object.`,
		ctx.URL,
		ctx.Title,
		renderElements(ctx.Elements),
		task,
		failedAction,
		errorMessage,
		suggestion,
	)
}

func renderElements(elements []snapshot.Element) string {
	var sb strings.Builder
	for _, el := range elements {
		fmt.Fprintf(&sb, "%s - in_viewport: %t\n", el.Display, el.InViewport)
	}
	return strings.TrimSpace(sb.String())
}
