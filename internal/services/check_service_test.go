package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierrors "langworker/internal/errors"
	"langworker/internal/engine"
	"langworker/internal/grammar"
	"langworker/internal/guard"
	"langworker/internal/shared/testutil"
	"langworker/internal/speller"
	api "langworker/pkg/contracts/api/v1"
)

var factories = engine.Factories{
	engine.KindSpeller: speller.New,
	engine.KindGrammar: grammar.New,
}

func openResource(t *testing.T, path string) *engine.Resource {
	t.Helper()
	res, err := engine.Open(path, engine.KindAny, factories)
	require.NoError(t, err)
	t.Cleanup(func() { _ = res.Close() })
	return res
}

// stubAnalyzer records the last request and returns a canned answer
type stubAnalyzer struct {
	last engine.Request
	res  engine.Result
	err  error
}

func (s *stubAnalyzer) Analyze(_ context.Context, req engine.Request) (engine.Result, error) {
	s.last = req
	return s.res, s.err
}

func TestCheckSpeller(t *testing.T) {
	logger, logs := testutil.NewTestLogger(t)
	res := openResource(t, testutil.NewArchiveFixtures(t).Speller(t, "en", nil))
	g := guard.New(res, guard.DefaultConfig(), guard.WithLogger(logger))
	svc := NewCheckService(g, res.Language(), res.Kind(), 5, logger)

	resp, err := svc.Check(context.Background(), api.CheckRequest{Text: "helo wrold"})
	require.NoError(t, err)

	assert.Equal(t, "helo wrold", resp.Text)
	assert.Equal(t, "en", resp.Language)
	assert.Equal(t, "speller", resp.Kind)
	assert.Nil(t, resp.Errors)
	require.Len(t, resp.Results, 2)

	for _, r := range resp.Results {
		assert.False(t, r.IsCorrect, r.Word)
		assert.NotEmpty(t, r.Suggestions, r.Word)
		assert.LessOrEqual(t, len(r.Suggestions), 5)
	}
	assert.Equal(t, "hello", resp.Results[0].Suggestions[0].Value)
	assert.Equal(t, "world", resp.Results[1].Suggestions[0].Value)
	assert.Equal(t, 5, resp.Results[1].Start)
	assert.Equal(t, 10, resp.Results[1].End)

	for _, msg := range []string{"request received", "request validated", "request in flight", "analysis completed"} {
		assert.True(t, logs.ContainsMessage(msg), msg)
	}
}

func TestCheckGrammar(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	res := openResource(t, testutil.NewArchiveFixtures(t).Grammar(t, "en", nil))
	svc := NewCheckService(guard.New(res, guard.DefaultConfig()), res.Language(), res.Kind(), 0, logger)

	resp, err := svc.Check(context.Background(), api.CheckRequest{Text: "It could of been an car."})
	require.NoError(t, err)

	assert.Equal(t, "grammar", resp.Kind)
	assert.Nil(t, resp.Results)
	require.Len(t, resp.Errors, 2)
	assert.Equal(t, "modal-of", resp.Errors[0].RuleID)
	assert.Equal(t, []string{"could have"}, resp.Errors[0].Suggestions)
	assert.Equal(t, "an-consonant", resp.Errors[1].RuleID)
	assert.Equal(t, "an car", resp.Errors[1].Text)
}

func TestCheckCleanGrammarTextReturnsEmptyList(t *testing.T) {
	stub := &stubAnalyzer{res: engine.Result{Kind: engine.KindGrammar, Text: "fine"}}
	svc := NewCheckService(stub, "en", engine.KindGrammar, 0, nil)

	resp, err := svc.Check(context.Background(), api.CheckRequest{Text: "fine"})
	require.NoError(t, err)
	assert.NotNil(t, resp.Errors)
	assert.Empty(t, resp.Errors)
}

func TestCheckValidation(t *testing.T) {
	tests := []struct {
		name      string
		req       api.CheckRequest
		wantField string
	}{
		{name: "empty text", req: api.CheckRequest{}, wantField: "text"},
		{name: "negative limit", req: api.CheckRequest{Text: "a", MaxSuggestions: -1}, wantField: "max_suggestions"},
		{name: "limit too large", req: api.CheckRequest{Text: "a", MaxSuggestions: 1000}, wantField: "max_suggestions"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubAnalyzer{}
			svc := NewCheckService(stub, "en", engine.KindSpeller, 0, nil)

			_, err := svc.Check(context.Background(), tt.req)

			var reqErr *apierrors.RequestError
			require.ErrorAs(t, err, &reqErr)
			assert.Equal(t, apierrors.BadPayload, reqErr.Code)
			require.Len(t, reqErr.Fields, 1)
			assert.Equal(t, tt.wantField, reqErr.Fields[0].Field)
			assert.Empty(t, stub.last.Text, "engine must not be called")
		})
	}
}

func TestCheckDefaultsMaxSuggestions(t *testing.T) {
	stub := &stubAnalyzer{res: engine.Result{Kind: engine.KindSpeller}}
	svc := NewCheckService(stub, "en", engine.KindSpeller, 7, nil)

	_, err := svc.Check(context.Background(), api.CheckRequest{Text: "a", Locale: "en-GB"})
	require.NoError(t, err)
	assert.Equal(t, 7, stub.last.MaxSuggestions)
	assert.Equal(t, "en-GB", stub.last.Locale)

	_, err = svc.Check(context.Background(), api.CheckRequest{Text: "a", MaxSuggestions: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, stub.last.MaxSuggestions)
}

func TestCheckPropagatesAnalysisErrors(t *testing.T) {
	for _, code := range []engine.AnalysisCode{engine.Overloaded, engine.Timeout, engine.EngineFault, engine.InvalidInput} {
		t.Run(string(code), func(t *testing.T) {
			stub := &stubAnalyzer{err: engine.NewAnalysisError(code, errors.New("stub"))}
			svc := NewCheckService(stub, "en", engine.KindSpeller, 0, nil)

			_, err := svc.Check(context.Background(), api.CheckRequest{Text: "a"})
			got, ok := engine.CodeOf(err)
			require.True(t, ok)
			assert.Equal(t, code, got)
		})
	}
}

func TestCheckIsIdempotent(t *testing.T) {
	res := openResource(t, testutil.NewArchiveFixtures(t).Speller(t, "en", nil))
	svc := NewCheckService(guard.New(res, guard.DefaultConfig()), res.Language(), res.Kind(), 0, nil)

	req := api.CheckRequest{Text: "the quikc brwn fox"}
	first, err := svc.Check(context.Background(), req)
	require.NoError(t, err)
	second, err := svc.Check(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
