package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/rs/zerolog"

	"github.com/nguyentuongbachhy/Interact-UI-Agent/internal/action"
	"github.com/nguyentuongbachhy/Interact-UI-Agent/internal/snapshot"
)

const (
	defaultNavTimeout = 30 * time.Second

	// snapshotTimeout bounds a single context extraction so a wedged page
	// cannot stall the step loop.
	snapshotTimeout = 10 * time.Second

	// settleDelay lets DOM mutations propagate after a state-changing action
	// before the caller re-snapshots context.
	settleDelay = 100 * time.Millisecond
)

// Launcher owns playwright lifecycle.
type Launcher struct {
	pw       *playwright.Playwright
	browser  playwright.Browser
	headless bool
}

func NewLauncher(ctx context.Context, headless bool) (*Launcher, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ensureDeps(); err != nil {
		return nil, err
	}
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(headless),
		Args: []string{
			"--disable-dev-shm-usage",
			"--no-sandbox",
		},
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("launch chromium: %w", err)
	}
	return &Launcher{pw: pw, browser: browser, headless: headless}, nil
}

// NewController opens a fresh page, optionally navigated to initialURL.
func (l *Launcher) NewController(ctx context.Context, initialURL string, logger zerolog.Logger) (*Controller, error) {
	bctx, err := l.browser.NewContext(playwright.BrowserNewContextOptions{
		IgnoreHttpsErrors: playwright.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("new context: %w", err)
	}
	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		return nil, fmt.Errorf("new page: %w", err)
	}
	page.SetDefaultTimeout(float64(defaultNavTimeout.Milliseconds()))

	ctrl := &Controller{context: bctx, page: page, logger: logger}
	if strings.TrimSpace(initialURL) != "" {
		if _, err := ctrl.ExecuteAction(ctx, action.Request{Tool: action.ToolNavigate, URL: initialURL}); err != nil {
			_ = ctrl.Close(ctx)
			return nil, fmt.Errorf("initial navigation: %w", err)
		}
	}
	return ctrl, nil
}

func (l *Launcher) Close() error {
	if l.browser != nil {
		_ = l.browser.Close()
	}
	if l.pw != nil {
		return l.pw.Stop()
	}
	return nil
}

// Controller is the browser surface for one session: it extracts context
// snapshots and executes typed actions against the page. The mutex keeps a
// snapshot from interleaving with an action on the same page; mid-mutation
// snapshots would yield an inconsistent element list.
type Controller struct {
	context playwright.BrowserContext
	page    playwright.Page
	mu      sync.Mutex
	logger  zerolog.Logger
}

func (c *Controller) Close(ctx context.Context) error {
	_ = ctx
	if c.page != nil {
		_ = c.page.Close()
	}
	if c.context != nil {
		return c.context.Close()
	}
	return nil
}

// ExtractContext takes a fresh snapshot of the current page.
func (c *Controller) ExtractContext(ctx context.Context) (snapshot.Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ctx, cancel := snapshot.WithDeadline(ctx, snapshotTimeout)
	defer cancel()
	return snapshot.Collect(ctx, c.page)
}

// ExecuteAction performs one typed action. Structured failures (element not
// found, not visible, not enabled, timeout, resolver errors) come back as a
// Response with success=false; hard driver failures come back as an error.
func (c *Controller) ExecuteAction(ctx context.Context, req action.Request) (action.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return action.Response{}, err
	}

	c.logger.Debug().
		Str("tool", string(req.Tool)).
		Str("selector", req.Selector.String()).
		Msg("execute action")

	switch req.Tool {
	case action.ToolClick:
		return c.click(req.Selector)
	case action.ToolType:
		return c.typeText(req.Selector, req.Text)
	case action.ToolScroll:
		return c.scroll(req.Direction, req.ScrollAmount())
	case action.ToolWaitForElement:
		return c.waitForElement(req.Selector, req.WaitTimeout())
	case action.ToolNavigate:
		return c.navigate(req.URL)
	default:
		return action.Response{}, fmt.Errorf("unknown tool %q", req.Tool)
	}
}

func (c *Controller) click(sel action.Selector) (action.Response, error) {
	handle, err := c.findElement(sel)
	if err != nil {
		return action.ErrorWithSuggestion(
			action.ErrKindExecution,
			fmt.Sprintf("Failed to click: %s", err),
			"try get_context() to verify element exists",
		), nil
	}
	if handle == nil {
		return action.ElementNotFound(sel), nil
	}

	// Visibility before enabled-state: an invisible-but-enabled element must
	// report visibility first.
	visible, err := handle.IsVisible()
	if err != nil {
		return action.Response{}, wrap(err)
	}
	if !visible {
		return action.ElementNotVisible(selName(sel), sel.Role), nil
	}
	enabled, err := handle.IsEnabled()
	if err != nil {
		return action.Response{}, wrap(err)
	}
	if !enabled {
		return action.ElementNotEnabled(selName(sel)), nil
	}

	if err := handle.Click(); err != nil {
		return action.Response{}, wrap(err)
	}
	time.Sleep(settleDelay)
	return action.Success(), nil
}

func (c *Controller) typeText(sel action.Selector, text string) (action.Response, error) {
	handle, err := c.findElement(sel)
	if err != nil {
		return action.ErrorWithSuggestion(
			action.ErrKindExecution,
			fmt.Sprintf("Failed to type: %s", err),
			"try get_context() to verify element exists and is a text input",
		), nil
	}
	if handle == nil {
		return action.ElementNotFound(sel), nil
	}

	visible, err := handle.IsVisible()
	if err != nil {
		return action.Response{}, wrap(err)
	}
	if !visible {
		return action.ElementNotVisible(selName(sel), sel.Role), nil
	}
	enabled, err := handle.IsEnabled()
	if err != nil {
		return action.Response{}, wrap(err)
	}
	if !enabled {
		return action.ElementNotEnabled(selName(sel)), nil
	}

	// Fill clears existing content before typing.
	if err := handle.Fill(text); err != nil {
		return action.Response{}, wrap(err)
	}
	return action.Success(), nil
}

func (c *Controller) scroll(dir action.ScrollDirection, amount int) (action.Response, error) {
	dx, dy := dir.Delta(amount)
	script := fmt.Sprintf("() => window.scrollBy(%d, %d)", dx, dy)
	if _, err := c.page.Evaluate(script); err != nil {
		return action.Response{}, wrap(err)
	}
	time.Sleep(settleDelay)
	return action.Success(), nil
}

func (c *Controller) waitForElement(sel action.Selector, timeout time.Duration) (action.Response, error) {
	css := cssSelector(sel)
	_, err := c.page.WaitForSelector(css, playwright.PageWaitForSelectorOptions{
		State:   playwright.WaitForSelectorStateAttached,
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	if err == nil {
		return action.Success(), nil
	}
	if strings.Contains(strings.ToLower(err.Error()), "timeout") {
		return action.ErrorWithSuggestion(
			action.ErrKindTimeout,
			fmt.Sprintf("Element did not appear within %dms", timeout.Milliseconds()),
			"try increasing timeout or verify element exists",
		), nil
	}
	return action.ErrorWithSuggestion(
		action.ErrKindNotFound,
		fmt.Sprintf("Element did not appear: %s", err),
		"verify the selector is correct or increase timeout",
	), nil
}

func (c *Controller) navigate(url string) (action.Response, error) {
	_, err := c.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateLoad,
		Timeout:   playwright.Float(float64(defaultNavTimeout.Milliseconds())),
	})
	if err != nil {
		return action.Response{}, wrap(err)
	}
	return action.Success(), nil
}

// findElement resolves a semantic selector: role + contains-matched
// accessible name in the live page, then the CSS fallback if present.
// A nil handle with nil error means "not found".
func (c *Controller) findElement(sel action.Selector) (playwright.ElementHandle, error) {
	if sel.Role != "" {
		marker, err := c.page.Evaluate(findElementScript, map[string]interface{}{
			"role": sel.Role,
			"name": sel.Name,
		})
		if err != nil {
			return nil, err
		}
		if id, ok := marker.(string); ok && id != "" {
			handle, err := c.page.QuerySelector(fmt.Sprintf("[data-agent-target=%q]", id))
			if err == nil && handle != nil {
				return handle, nil
			}
		}
	}

	if sel.CSSFallback != "" {
		handle, err := c.page.QuerySelector(sel.CSSFallback)
		if err != nil {
			return nil, nil // invalid fallback selector counts as not found
		}
		return handle, nil
	}
	return nil, nil
}

// findElementScript walks the DOM matching role and contains-semantics
// accessible name, marks the first hit, and returns the marker.
const findElementScript = `(args) => {
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
		};
		return tagRoles[el.tagName] || '';
	}

	for (const el of document.querySelectorAll('*')) {
		const role = roleOf(el);
		const name = accessibleName(el);
		if (role === args.role && (!args.name || name.includes(args.name))) {
			const id = Math.random().toString(36).slice(2);
			el.setAttribute('data-agent-target', id);
			return id;
		}
	}
	return null;
}`

// cssSelector builds a CSS fallback for wait_for_element resolution.
func cssSelector(sel action.Selector) string {
	if sel.CSSFallback != "" {
		return sel.CSSFallback
	}
	switch sel.Role {
	case "button":
		if sel.Name != "" {
			return fmt.Sprintf("button:has-text(%q), [role='button']:has-text(%q)", sel.Name, sel.Name)
		}
		return "button, [role='button']"
	case "link":
		if sel.Name != "" {
			return fmt.Sprintf("a:has-text(%q)", sel.Name)
		}
		return "a"
	case "textbox":
		return "input[type='text'], input:not([type]), textarea, [role='textbox']"
	default:
		if sel.Name != "" {
			return fmt.Sprintf("[role=%q]:has-text(%q)", sel.Role, sel.Name)
		}
		return fmt.Sprintf("[role=%q]", sel.Role)
	}
}

func selName(sel action.Selector) string {
	if sel.Name == "" {
		return "unknown"
	}
	return sel.Name
}

func wrap(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("playwright: %w", err)
}

func ensureDeps() error {
	// Browsers usually preinstalled in this workspace. Hook for future checks.
	return nil
}
