package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nguyentuongbachhy/Interact-UI-Agent/internal/action"
)

func TestCSSSelectorPrefersExplicitFallback(t *testing.T) {
	sel := action.Selector{Role: "button", Name: "Login", CSSFallback: "#login-btn"}
	assert.Equal(t, "#login-btn", cssSelector(sel))
}

func TestCSSSelectorByRole(t *testing.T) {
	assert.Equal(t,
		`button:has-text("Login"), [role='button']:has-text("Login")`,
		cssSelector(action.Selector{Role: "button", Name: "Login"}))
	assert.Equal(t, "button, [role='button']", cssSelector(action.Selector{Role: "button"}))
	assert.Equal(t, `a:has-text("Docs")`, cssSelector(action.Selector{Role: "link", Name: "Docs"}))
	assert.Equal(t,
		"input[type='text'], input:not([type]), textarea, [role='textbox']",
		cssSelector(action.Selector{Role: "textbox", Name: "Username"}))
	assert.Equal(t,
		`[role="tab"]:has-text("Settings")`,
		cssSelector(action.Selector{Role: "tab", Name: "Settings"}))
	assert.Equal(t, `[role="tab"]`, cssSelector(action.Selector{Role: "tab"}))
}

func TestSelName(t *testing.T) {
	assert.Equal(t, "Login", selName(action.Selector{Name: "Login"}))
	assert.Equal(t, "unknown", selName(action.Selector{}))
}
