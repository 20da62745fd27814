package action

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultScrollAmount is applied when a scroll request omits "amount".
	DefaultScrollAmount = 300
	// DefaultWaitTimeout is applied when wait_for_element omits "timeout_ms".
	DefaultWaitTimeout = 5 * time.Second
)

// Tool names the action variant. The decision oracle selects exactly one
// per reply via the "tool" discriminant field.
type Tool string

const (
	ToolClick          Tool = "click"
	ToolType           Tool = "type"
	ToolScroll         Tool = "scroll"
	ToolWaitForElement Tool = "wait_for_element"
	ToolNavigate       Tool = "navigate"
)

// Selector addresses an element by accessibility role plus human-readable
// name. Name matching is contains-semantics, not exact.
type Selector struct {
	Role        string `json:"role"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	CSSFallback string `json:"css_fallback,omitempty"`
}

func (s Selector) String() string {
	if s.Name == "" {
		return s.Role
	}
	return fmt.Sprintf("%s(%q)", s.Role, s.Name)
}

// Request is one decision from the oracle. The wire form is a single JSON
// object; which fields are meaningful depends on Tool.
type Request struct {
	Tool     Tool `json:"tool"`
	Selector      // flattened: role, name, description, css_fallback

	// type
	Text string `json:"text,omitempty"`

	// scroll
	Direction ScrollDirection `json:"direction,omitempty"`
	Amount    *int            `json:"amount,omitempty"`

	// wait_for_element
	TimeoutMs *int `json:"timeout_ms,omitempty"`

	// navigate
	URL string `json:"url,omitempty"`
}

// ScrollAmount returns the requested scroll distance or the default.
func (r Request) ScrollAmount() int {
	if r.Amount != nil && *r.Amount > 0 {
		return *r.Amount
	}
	return DefaultScrollAmount
}

// WaitTimeout returns the requested wait deadline or the default.
func (r Request) WaitTimeout() time.Duration {
	if r.TimeoutMs != nil && *r.TimeoutMs > 0 {
		return time.Duration(*r.TimeoutMs) * time.Millisecond
	}
	return DefaultWaitTimeout
}

// Serialized returns the wire form of the request for re-injection into a
// retry prompt. Falls back to a plain string when marshalling fails.
func (r Request) Serialized() string {
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Sprintf("%+v", r)
	}
	return string(raw)
}

type ScrollDirection string

const (
	ScrollUp    ScrollDirection = "up"
	ScrollDown  ScrollDirection = "down"
	ScrollLeft  ScrollDirection = "left"
	ScrollRight ScrollDirection = "right"
)

// Delta maps a direction and distance to window.scrollBy deltas:
// down -> (0,+a), up -> (0,-a), right -> (+a,0), left -> (-a,0).
func (d ScrollDirection) Delta(amount int) (dx, dy int) {
	switch d {
	case ScrollDown:
		return 0, amount
	case ScrollUp:
		return 0, -amount
	case ScrollRight:
		return amount, 0
	case ScrollLeft:
		return -amount, 0
	}
	return 0, 0
}

func (d ScrollDirection) valid() bool {
	switch d {
	case ScrollUp, ScrollDown, ScrollLeft, ScrollRight:
		return true
	}
	return false
}

// ParseRequest extracts the single JSON object from the oracle's reply text
// and decodes it into a validated Request. The oracle is instructed to return
// bare JSON, but replies wrapped in prose or markdown fences still parse as
// long as exactly one object is present.
func ParseRequest(text string) (Request, error) {
	jsonStr, err := ExtractJSON(text)
	if err != nil {
		return Request{}, err
	}
	var req Request
	if err := json.Unmarshal([]byte(jsonStr), &req); err != nil {
		return Request{}, fmt.Errorf("decode action: %w", err)
	}
	if err := req.validate(); err != nil {
		return Request{}, err
	}
	return req, nil
}

func (r Request) validate() error {
	switch r.Tool {
	case ToolClick, ToolWaitForElement:
		if r.Role == "" && r.CSSFallback == "" {
			return fmt.Errorf("%s action requires a selector role", r.Tool)
		}
	case ToolType:
		if r.Role == "" && r.CSSFallback == "" {
			return fmt.Errorf("type action requires a selector role")
		}
		if r.Text == "" {
			return fmt.Errorf("type action requires text")
		}
	case ToolScroll:
		if !r.Direction.valid() {
			return fmt.Errorf("scroll action requires direction up|down|left|right, got %q", r.Direction)
		}
	case ToolNavigate:
		if strings.TrimSpace(r.URL) == "" {
			return fmt.Errorf("navigate action requires url")
		}
	case "":
		return fmt.Errorf("missing tool field")
	default:
		return fmt.Errorf("unknown tool %q", r.Tool)
	}
	return nil
}

// ExtractJSON finds the first balanced top-level JSON object in text,
// honoring strings and escapes. Oracle replies are supposed to be bare JSON,
// but prose or markdown fences around the object are tolerated.
func ExtractJSON(text string) (string, error) {
	depth := 0
	start := -1
	inStr := false
	esc := false
	for i := 0; i < len(text); i++ {
		ch := text[i]
		if esc {
			esc = false
			continue
		}
		switch ch {
		case '\\':
			if inStr {
				esc = true
			}
		case '"':
			inStr = !inStr
		case '{':
			if !inStr {
				if depth == 0 {
					start = i
				}
				depth++
			}
		case '}':
			if !inStr && depth > 0 {
				depth--
				if depth == 0 && start != -1 {
					return text[start : i+1], nil
				}
			}
		}
	}
	return "", fmt.Errorf("json not found")
}
