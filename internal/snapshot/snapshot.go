package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/nguyentuongbachhy/Interact-UI-Agent/internal/action"
)

// Viewport describes the visible window and scroll offset at snapshot time.
type Viewport struct {
	Width   int     `json:"width"`
	Height  int     `json:"height"`
	ScrollX float64 `json:"scroll_x"`
	ScrollY float64 `json:"scroll_y"`
}

// Element is one interactive node, simplified for oracle consumption.
// Display is the prompt-facing label, e.g. "[1] Button('Login')".
type Element struct {
	ID         int             `json:"id"`
	Display    string          `json:"display"`
	Selector   action.Selector `json:"selector"`
	InViewport bool            `json:"in_viewport"`
}

// Context is a compact view of the current page. Instances are created fresh
// before every oracle decision and never mutated, only replaced.
type Context struct {
	URL      string    `json:"url"`
	Title    string    `json:"title"`
	Viewport Viewport  `json:"viewport"`
	Elements []Element `json:"elements"`
}

// NewElement builds an element with its display label. IDs are sequential
// and unique within one Context.
func NewElement(id int, role, name string, inViewport bool) Element {
	display := fmt.Sprintf("[%d] %s", id, displayRole(role))
	if name != "" {
		display = fmt.Sprintf("[%d] %s('%s')", id, displayRole(role), name)
	}
	return Element{
		ID:      id,
		Display: display,
		Selector: action.Selector{
			Role: role,
			Name: name,
		},
		InViewport: inViewport,
	}
}

func displayRole(role string) string {
	if role == "" {
		return role
	}
	return strings.ToUpper(role[:1]) + role[1:]
}

// rawElement mirrors what the page script returns before simplification.
type rawElement struct {
	Role        string `json:"role"`
	Name        string `json:"name"`
	Value       string `json:"value"`
	Description string `json:"description"`
	Enabled     bool   `json:"enabled"`
	Visible     bool   `json:"visible"`
	Rect        *rect  `json:"rect"`
}

type rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Collect extracts a full page snapshot: url, title, viewport, and the
// simplified element list.
func Collect(ctx context.Context, page playwright.Page) (Context, error) {
	if err := ctx.Err(); err != nil {
		return Context{}, err
	}

	title, err := page.Title()
	if err != nil {
		return Context{}, fmt.Errorf("page title: %w", err)
	}
	url := page.URL()

	vp, err := collectViewport(page)
	if err != nil {
		return Context{}, fmt.Errorf("viewport: %w", err)
	}

	raw, err := collectElements(page)
	if err != nil {
		return Context{}, fmt.Errorf("elements: %w", err)
	}

	elements := make([]Element, 0, len(raw))
	for i, re := range raw {
		el := NewElement(i+1, re.Role, re.Name, re.Rect != nil && inViewport(*re.Rect, vp))
		el.Selector.Description = re.Description
		elements = append(elements, el)
	}

	return Context{
		URL:      url,
		Title:    title,
		Viewport: vp,
		Elements: elements,
	}, nil
}

func collectViewport(page playwright.Page) (Viewport, error) {
	script := `() => ({
		width: window.innerWidth,
		height: window.innerHeight,
		scroll_x: window.scrollX || window.pageXOffset,
		scroll_y: window.scrollY || window.pageYOffset
	})`
	val, err := page.Evaluate(script)
	if err != nil {
		return Viewport{}, err
	}
	bytes, err := json.Marshal(val)
	if err != nil {
		return Viewport{}, err
	}
	var vp Viewport
	if err := json.Unmarshal(bytes, &vp); err != nil {
		return Viewport{}, err
	}
	if vp.Width == 0 {
		vp.Width = 1280
	}
	if vp.Height == 0 {
		vp.Height = 720
	}
	return vp, nil
}

func collectElements(page playwright.Page) ([]rawElement, error) {
	script := `() => {
		const out = [];

		function isVisible(el) {
			if (!el) return false;
			const style = window.getComputedStyle(el);
			return style.display !== 'none' &&
			       style.visibility !== 'hidden' &&
			       style.opacity !== '0';
		}

		function accessibleName(el) {
			if (el.getAttribute('aria-label')) return el.getAttribute('aria-label');
			const labelledBy = el.getAttribute('aria-labelledby');
			if (labelledBy) {
				const label = document.getElementById(labelledBy);
				if (label) return label.textContent.trim();
			}
			if (el.id) {
				const label = document.querySelector('label[for="' + el.id + '"]');
				if (label) return label.textContent.trim();
			}
			if (el.placeholder) return el.placeholder;
			if (el.tagName === 'BUTTON' || el.tagName === 'A') {
				return el.textContent.trim();
			}
			if (el.value) return el.value;
			return '';
		}

		function roleOf(el) {
			const ariaRole = el.getAttribute('role');
			if (ariaRole) return ariaRole;
			const tagRoles = {
				'BUTTON': 'button',
				'A': 'link',
				'INPUT': el.type === 'submit' ? 'button' : 'textbox',
				'TEXTAREA': 'textbox',
				'SELECT': 'combobox',
				'H1': 'heading', 'H2': 'heading', 'H3': 'heading',
				'IMG': 'img',
				'NAV': 'navigation',
				'MAIN': 'main',
				'HEADER': 'banner',
				'FOOTER': 'contentinfo',
				'SECTION': 'region',
				'FORM': 'form',
			};
			return tagRoles[el.tagName] || 'generic';
		}

		const selectors = [
			'button', 'a[href]', 'input', 'textarea', 'select',
			'[role="button"]', '[role="link"]', '[role="textbox"]',
			'[role="combobox"]', '[role="checkbox"]', '[role="radio"]',
			'[role="tab"]', '[role="menuitem"]',
			'h1', 'h2', 'h3', 'h4', 'h5', 'h6',
			'[aria-label]',
		];

		for (const el of document.querySelectorAll(selectors.join(','))) {
			const role = roleOf(el);
			const name = accessibleName(el);
			if (!name && role !== 'heading') continue;
			const r = el.getBoundingClientRect();
			out.push({
				role: role,
				name: name,
				value: el.value || '',
				description: el.getAttribute('aria-description') || el.title || '',
				enabled: !el.disabled,
				visible: isVisible(el),
				rect: { x: r.x, y: r.y, width: r.width, height: r.height },
			});
		}
		return out;
	}`
	val, err := page.Evaluate(script)
	if err != nil {
		return nil, err
	}
	bytes, err := json.Marshal(val)
	if err != nil {
		return nil, err
	}
	var elems []rawElement
	if err := json.Unmarshal(bytes, &elems); err != nil {
		return nil, err
	}
	return elems, nil
}

// inViewport reports whether the element rect overlaps the visible window.
func inViewport(r rect, vp Viewport) bool {
	viewportBottom := vp.ScrollY + float64(vp.Height)
	viewportRight := vp.ScrollX + float64(vp.Width)
	return r.Y < viewportBottom &&
		r.Y+r.Height > vp.ScrollY &&
		r.X < viewportRight &&
		r.X+r.Width > vp.ScrollX
}

// WithDeadline shortens context to avoid long snapshot waits.
func WithDeadline(ctx context.Context, dur time.Duration) (context.Context, context.CancelFunc) {
	if dur <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, dur)
}
