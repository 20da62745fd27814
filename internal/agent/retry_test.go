package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nguyentuongbachhy/Interact-UI-Agent/internal/action"
	"github.com/nguyentuongbachhy/Interact-UI-Agent/internal/snapshot"
)

type oracleReply struct {
	text string
	err  error
}

// fakeOracle replays scripted replies and records every prompt it saw.
type fakeOracle struct {
	replies []oracleReply
	systems []string
	users   []string
}

func (o *fakeOracle) Decide(_ context.Context, systemPrompt, userPrompt string) (string, error) {
	o.systems = append(o.systems, systemPrompt)
	o.users = append(o.users, userPrompt)
	if len(o.replies) == 0 {
		return "", errors.New("fake oracle: no scripted reply")
	}
	r := o.replies[0]
	o.replies = o.replies[1:]
	return r.text, r.err
}

type extractResult struct {
	ctx snapshot.Context
	err error
}

type execResult struct {
	resp action.Response
	err  error
}

// fakeSurface replays scripted snapshot and execution results; once a queue
// runs dry it keeps succeeding.
type fakeSurface struct {
	extracts []extractResult
	execs    []execResult

	defaultCtx snapshot.Context
	execCalls  []action.Request
}

func (s *fakeSurface) ExtractContext(context.Context) (snapshot.Context, error) {
	if len(s.extracts) == 0 {
		return s.defaultCtx, nil
	}
	r := s.extracts[0]
	s.extracts = s.extracts[1:]
	return r.ctx, r.err
}

func (s *fakeSurface) ExecuteAction(_ context.Context, req action.Request) (action.Response, error) {
	s.execCalls = append(s.execCalls, req)
	if len(s.execs) == 0 {
		return action.Success(), nil
	}
	r := s.execs[0]
	s.execs = s.execs[1:]
	return r.resp, r.err
}

func testContext() snapshot.Context {
	return snapshot.Context{
		URL:      "https://example.com/login",
		Title:    "Login",
		Viewport: snapshot.Viewport{Width: 1280, Height: 720},
		Elements: []snapshot.Element{
			snapshot.NewElement(1, "button", "Login", true),
			snapshot.NewElement(2, "textbox", "Username", true),
		},
	}
}

const clickLoginJSON = `{"tool": "click", "role": "button", "name": "Login"}`

func newEngine(oracle *fakeOracle, surface *fakeSurface, maxRetries int) *stepEngine {
	return &stepEngine{
		oracle:     oracle,
		surface:    surface,
		logger:     zerolog.Nop(),
		maxRetries: maxRetries,
	}
}

func TestStepEngineHappyPath(t *testing.T) {
	oracle := &fakeOracle{replies: []oracleReply{{text: clickLoginJSON}}}
	surface := &fakeSurface{defaultCtx: testContext()}
	engine := newEngine(oracle, surface, 3)

	pageCtx := testContext()
	outcome, err := engine.run(context.Background(), pageCtx, "log in", BuildSystemPrompt(), BuildUserPrompt(pageCtx, "log in"))
	require.NoError(t, err)
	assert.Equal(t, action.ToolClick, outcome.action.Tool)
	assert.Equal(t, clickLoginJSON, outcome.rawText)
	assert.Equal(t, 0, outcome.retries)
	assert.Len(t, surface.execCalls, 1)
}

func TestStepEngineRetriesUnparseableWithSamePrompt(t *testing.T) {
	oracle := &fakeOracle{replies: []oracleReply{
		{text: "I think you should click the login button"},
		{text: "still not json"},
		{text: "nope"},
	}}
	surface := &fakeSurface{defaultCtx: testContext()}
	engine := newEngine(oracle, surface, 2)

	pageCtx := testContext()
	userPrompt := BuildUserPrompt(pageCtx, "log in")
	_, err := engine.run(context.Background(), pageCtx, "log in", BuildSystemPrompt(), userPrompt)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse oracle decision")

	// maxRetries inclusive: 2 means three total attempts.
	require.Len(t, oracle.users, 3)
	for _, u := range oracle.users {
		assert.Equal(t, userPrompt, u)
	}
	assert.Empty(t, surface.execCalls)
}

func TestStepEngineFeedsRejectionBack(t *testing.T) {
	oracle := &fakeOracle{replies: []oracleReply{
		{text: clickLoginJSON},
		{text: `{"tool": "scroll", "direction": "down"}`},
	}}
	surface := &fakeSurface{
		defaultCtx: testContext(),
		execs: []execResult{
			{resp: action.ErrorWithSuggestion(action.ErrKindNotVisible, "Element 'Login' (button) was found but is below viewport.", "call scroll_down() or wait_for_element()")},
			{resp: action.Success()},
		},
	}
	engine := newEngine(oracle, surface, 3)

	pageCtx := testContext()
	outcome, err := engine.run(context.Background(), pageCtx, "log in", BuildSystemPrompt(), BuildUserPrompt(pageCtx, "log in"))
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.retries)
	assert.Equal(t, action.ToolScroll, outcome.action.Tool)

	require.Len(t, oracle.users, 2)
	retryPrompt := oracle.users[1]
	assert.Contains(t, retryPrompt, "Previous Action Attempted:")
	assert.Contains(t, retryPrompt, `"tool":"click"`)
	assert.Contains(t, retryPrompt, "This action failed with error: element_not_visible")
	assert.Contains(t, retryPrompt, "Suggestion: call scroll_down() or wait_for_element()")
}

func TestStepEngineDefaultSuggestionOnBareRejection(t *testing.T) {
	oracle := &fakeOracle{replies: []oracleReply{
		{text: clickLoginJSON},
		{text: clickLoginJSON},
	}}
	surface := &fakeSurface{
		defaultCtx: testContext(),
		execs: []execResult{
			{resp: action.Response{Success: false, Reason: "something went wrong"}},
			{resp: action.Success()},
		},
	}
	engine := newEngine(oracle, surface, 3)

	pageCtx := testContext()
	_, err := engine.run(context.Background(), pageCtx, "log in", BuildSystemPrompt(), BuildUserPrompt(pageCtx, "log in"))
	require.NoError(t, err)
	require.Len(t, oracle.users, 2)
	assert.Contains(t, oracle.users[1], "This action failed with error: something went wrong")
	assert.Contains(t, oracle.users[1], "Suggestion: Try a different approach")
}

func TestStepEngineHardErrorSuggestion(t *testing.T) {
	oracle := &fakeOracle{replies: []oracleReply{
		{text: clickLoginJSON},
		{text: clickLoginJSON},
	}}
	surface := &fakeSurface{
		defaultCtx: testContext(),
		execs: []execResult{
			{err: errors.New("playwright: target closed")},
			{resp: action.Success()},
		},
	}
	engine := newEngine(oracle, surface, 3)

	pageCtx := testContext()
	outcome, err := engine.run(context.Background(), pageCtx, "log in", BuildSystemPrompt(), BuildUserPrompt(pageCtx, "log in"))
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.retries)
	require.Len(t, oracle.users, 2)
	assert.Contains(t, oracle.users[1], "Suggestion: Check if the element exists and is interactable")
}

func TestStepEngineOracleFailureIsFatal(t *testing.T) {
	oracle := &fakeOracle{replies: []oracleReply{{err: errors.New("connection refused")}}}
	surface := &fakeSurface{defaultCtx: testContext()}
	engine := newEngine(oracle, surface, 3)

	pageCtx := testContext()
	_, err := engine.run(context.Background(), pageCtx, "log in", BuildSystemPrompt(), BuildUserPrompt(pageCtx, "log in"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oracle decision")
	assert.Contains(t, err.Error(), "connection refused")
	// No retry masks oracle unavailability.
	assert.Len(t, oracle.users, 1)
	assert.Empty(t, surface.execCalls)
}

func TestStepEngineZeroRetriesMeansSingleAttempt(t *testing.T) {
	oracle := &fakeOracle{replies: []oracleReply{{text: clickLoginJSON}}}
	surface := &fakeSurface{
		defaultCtx: testContext(),
		execs: []execResult{
			{resp: action.ElementNotFound(action.Selector{Role: "button", Name: "Login"})},
		},
	}
	engine := newEngine(oracle, surface, 0)

	pageCtx := testContext()
	_, err := engine.run(context.Background(), pageCtx, "log in", BuildSystemPrompt(), BuildUserPrompt(pageCtx, "log in"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "action failed after 0 retries")
	assert.Len(t, oracle.users, 1)
	assert.Len(t, surface.execCalls, 1)
}

func TestStepEngineExhaustionReportsLastFailure(t *testing.T) {
	oracle := &fakeOracle{replies: []oracleReply{
		{text: clickLoginJSON},
		{text: clickLoginJSON},
	}}
	surface := &fakeSurface{
		defaultCtx: testContext(),
		execs: []execResult{
			{resp: action.ElementNotFound(action.Selector{Role: "button", Name: "Login"})},
			{resp: action.ElementNotFound(action.Selector{Role: "button", Name: "Login"})},
		},
	}
	engine := newEngine(oracle, surface, 1)

	pageCtx := testContext()
	_, err := engine.run(context.Background(), pageCtx, "log in", BuildSystemPrompt(), BuildUserPrompt(pageCtx, "log in"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "action failed after 1 retries")
	assert.Contains(t, err.Error(), action.ErrKindNotFound)
	assert.Len(t, oracle.users, 2)
}

func TestStepStateString(t *testing.T) {
	assert.Equal(t, "deciding", StateDeciding.String())
	assert.Equal(t, "retrying", StateRetrying.String())
	assert.Equal(t, "exhausted", StateExhausted.String())
}
