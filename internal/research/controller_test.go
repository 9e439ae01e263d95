package research

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/model"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/searcher/strategy"
	apperrors "github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/pkg/errors"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type staticBuilder struct {
	files []indexer.File
	err   error
	calls int
}

func (b *staticBuilder) Build(_ context.Context, root string) (*indexer.Corpus, error) {
	b.calls++
	if b.err != nil {
		return nil, b.err
	}
	return indexer.NewCorpus(root, b.files, indexer.ChunkOptions{Size: 100, Overlap: 10}), nil
}

func dispatcher(c *indexer.Corpus) Executor {
	return strategy.NewDispatcher(c, strategy.DefaultOptions())
}

// failingExecutor fails one tool and delegates the rest.
type failingExecutor struct {
	next Executor
	fail model.Tool
}

func (e failingExecutor) Execute(ctx context.Context, tool model.Tool, query string) ([]model.SearchResult, error) {
	if tool == e.fail {
		return nil, errors.New("index unavailable")
	}
	return e.next.Execute(ctx, tool, query)
}

// cancellingExecutor cancels the run from inside the search stage.
type cancellingExecutor struct {
	cancel context.CancelFunc
}

func (e cancellingExecutor) Execute(ctx context.Context, _ model.Tool, _ string) ([]model.SearchResult, error) {
	e.cancel()
	return nil, ctx.Err()
}

func foxCorpus() *staticBuilder {
	return &staticBuilder{files: []indexer.File{
		{Source: "a.txt", Text: "the quick fox"},
		{Source: "b.txt", Text: "the quick dog"},
	}}
}

func settings(maxIterations int) Settings {
	s := DefaultSettings()
	s.MaxIterations = maxIterations
	return s
}

func countStatus(history []Status, s Status) int {
	n := 0
	for _, h := range history {
		if h == s {
			n++
		}
	}
	return n
}

func TestRunIteratesUntilMaxIterations(t *testing.T) {
	c := NewController(foxCorpus(), dispatcher, settings(3))
	out, err := c.Run(context.Background(), "fox", t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, out.Status)
	require.Len(t, out.Iterations, 4)
	assert.Equal(t, 3, countStatus(out.History, StatusIterating))
	assert.Equal(t, "fox", out.Iterations[0].Query)
	assert.Equal(t, "Deep dive into specific files: a.txt", out.Iterations[1].Query)
	for _, r := range out.Results {
		assert.Equal(t, "a.txt", r.Source)
	}
	assert.Len(t, out.Strategies, 2+2+4+4)
	assert.Equal(t, model.ToolHybrid, out.Strategies[len(out.Strategies)-1].Tool)
	assert.InDelta(t, 2.0/3.0, out.Confidence, 1e-9)
	assert.False(t, out.Aborted)
	assert.Equal(t, 2, out.FilesDiscovered)
	assert.Contains(t, out.StageDurations, "searching")
}

func TestRunMaxIterationsZeroNeverIterates(t *testing.T) {
	c := NewController(foxCorpus(), dispatcher, settings(0))
	out, err := c.Run(context.Background(), "fox", t.TempDir())
	require.NoError(t, err)

	want := []Status{StatusPlanning, StatusSearching, StatusAnalyzing, StatusSynthesizing, StatusCompleted}
	assert.Equal(t, want, out.History)
	require.Len(t, out.Iterations, 1)
	assert.Equal(t, []string{
		"High activity in file: a.txt (1 relevant matches)",
		"Tool 'direct_match' found 1 relevant results",
	}, out.Insights)
}

func TestRunEmptyCorpus(t *testing.T) {
	c := NewController(&staticBuilder{}, dispatcher, settings(3))
	out, err := c.Run(context.Background(), "anything useful", t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, out.Status)
	assert.Empty(t, out.Results)
	assert.Equal(t, MinConfidence, out.Confidence)
	assert.NotContains(t, out.History, StatusIterating)
	require.Len(t, out.Iterations, 1)
	assert.Empty(t, out.Iterations[0].Results)
}

func TestRunStepCeilingAborts(t *testing.T) {
	s := settings(3)
	s.MaxSteps = 2
	c := NewController(foxCorpus(), dispatcher, s)
	out, err := c.Run(context.Background(), "fox", t.TempDir())
	require.NoError(t, err)

	assert.True(t, out.Aborted)
	assert.Equal(t, StatusCompleted, out.Status)
	assert.Empty(t, out.Iterations)
	require.NotEmpty(t, out.Warnings)
	assert.Contains(t, out.Warnings[0], "step ceiling of 2")
	assert.GreaterOrEqual(t, out.Confidence, MinConfidence)
	assert.LessOrEqual(t, out.Confidence, 1.0)
}

func TestRunFatalErrors(t *testing.T) {
	b := foxCorpus()
	c := NewController(b, dispatcher, settings(3))

	_, err := c.Run(context.Background(), "   ", t.TempDir())
	assert.ErrorIs(t, err, apperrors.ErrInvalidQuery)
	_, err = c.Run(context.Background(), "a b", t.TempDir())
	assert.ErrorIs(t, err, apperrors.ErrInvalidQuery)
	_, err = c.Run(context.Background(), "fox", "/definitely/not/here")
	assert.ErrorIs(t, err, apperrors.ErrInvalidDirectory)
	assert.Zero(t, b.calls)
}

func TestRunCancellation(t *testing.T) {
	b := foxCorpus()
	c := NewController(b, dispatcher, settings(3))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out, err := c.Run(ctx, "fox", t.TempDir())
	assert.Nil(t, out)
	assert.True(t, IsCancelled(err))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, b.calls)

	ctx, cancel = context.WithCancel(context.Background())
	defer cancel()
	c = NewController(foxCorpus(), func(*indexer.Corpus) Executor {
		return cancellingExecutor{cancel: cancel}
	}, settings(3))
	out, err = c.Run(ctx, "fox", t.TempDir())
	assert.Nil(t, out)
	assert.ErrorIs(t, err, apperrors.ErrCancelled)
}

func TestRunRecoversStrategyFailure(t *testing.T) {
	c := NewController(foxCorpus(), func(corpus *indexer.Corpus) Executor {
		return failingExecutor{next: dispatcher(corpus), fail: model.ToolLexical}
	}, settings(0))
	out, err := c.Run(context.Background(), "fox", t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, out.Status)
	require.Len(t, out.Strategies, 2)
	assert.Equal(t, model.ToolDirectMatch, out.Strategies[0].Tool)
	assert.Equal(t, "index unavailable", out.Strategies[1].Error)
	assert.Contains(t, strings.Join(out.Warnings, "\n"), "strategy lexical failed")
	require.Len(t, out.Results, 1)
	assert.Equal(t, model.ToolDirectMatch, out.Results[0].ToolUsed)
}

func TestRunWithExecutorOverride(t *testing.T) {
	c := NewController(foxCorpus(), dispatcher, settings(0))
	s := c.Settings()
	s.NewExecutor = func(corpus *indexer.Corpus) Executor {
		return failingExecutor{next: dispatcher(corpus), fail: model.ToolLexical}
	}

	out, err := c.RunWith(context.Background(), "fox", t.TempDir(), s)
	require.NoError(t, err)
	require.Len(t, out.Strategies, 2)
	assert.Equal(t, "index unavailable", out.Strategies[1].Error)

	out, err = c.Run(context.Background(), "fox", t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, out.Strategies[1].Error)
}

func TestRunRecoversIndexBuildFailure(t *testing.T) {
	c := NewController(&staticBuilder{err: apperrors.ErrIndexBuild}, dispatcher, settings(3))
	out, err := c.Run(context.Background(), "fox", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, out.Status)
	assert.Equal(t, MinConfidence, out.Confidence)
	assert.Contains(t, out.Warnings[0], "index build failed")
}

func TestRunThresholdFallback(t *testing.T) {
	s := settings(0)
	s.SimilarityThreshold = 1
	c := NewController(foxCorpus(), dispatcher, s)
	out, err := c.Run(context.Background(), "fox", t.TempDir())
	require.NoError(t, err)

	assert.True(t, out.ThresholdFallback)
	require.Len(t, out.Iterations, 1)
	it := out.Iterations[0]
	assert.True(t, it.ThresholdFallback)
	require.Len(t, it.Results, 2)
	assert.Equal(t, model.ToolDirectMatch, it.Results[0].ToolUsed)
}

func TestRunAlwaysTerminates(t *testing.T) {
	b := &staticBuilder{files: []indexer.File{
		{Source: "svc/auth.go", Text: "func Login(user string) error {\n\treturn checkPassword(user)\n}\ntype Session struct {}"},
		{Source: "svc/cache.go", Text: "func Get(key string) ([]byte, error) {\n\t// cache lookup with login token\n}"},
		{Source: "docs/auth.md", Text: "login flow: the user sends a password and receives a session token"},
		{Source: "config.yaml", Text: "login:\n  session_ttl: 10m\n  token_secret: x\n"},
	}}
	for maxIter := 0; maxIter <= 5; maxIter++ {
		for _, sel := range []FollowUpSelector{SelectFirst, SelectLongest} {
			s := settings(maxIter)
			s.FollowUp = sel
			out, err := NewController(b, dispatcher, s).Run(context.Background(), "how does login token config work", t.TempDir())
			require.NoError(t, err)
			assert.Equal(t, StatusCompleted, out.Status)
			assert.LessOrEqual(t, len(out.Iterations), maxIter+1)
			assert.LessOrEqual(t, countStatus(out.History, StatusIterating), maxIter)
			assert.GreaterOrEqual(t, out.Confidence, MinConfidence)
			assert.LessOrEqual(t, out.Confidence, 1.0)
		}
	}
}

func TestFilterRelevant(t *testing.T) {
	results := []model.SearchResult{
		{Source: "a", RelevanceScore: 0.2},
		{Source: "b", RelevanceScore: 0.5},
		{Source: "c", RelevanceScore: 0.1},
	}
	got, fallback := FilterRelevant(results, 0.3, 10)
	assert.False(t, fallback)
	assert.Equal(t, []model.SearchResult{results[1]}, got)

	got, fallback = FilterRelevant(results, 0.9, 2)
	assert.True(t, fallback)
	assert.Equal(t, []model.SearchResult{results[1], results[0]}, got)

	got, fallback = FilterRelevant(nil, 0.3, 10)
	assert.False(t, fallback)
	assert.Empty(t, got)
}

func TestStatusTransitions(t *testing.T) {
	assert.True(t, StatusPlanning.CanTransition(StatusSearching))
	assert.True(t, StatusSearching.CanTransition(StatusSearching))
	assert.True(t, StatusAnalyzing.CanTransition(StatusIterating))
	assert.True(t, StatusIterating.CanTransition(StatusSearching))
	assert.True(t, StatusSynthesizing.CanTransition(StatusCompleted))
	assert.False(t, StatusPlanning.CanTransition(StatusAnalyzing))
	assert.False(t, StatusCompleted.CanTransition(StatusPlanning))
	assert.False(t, StatusAnalyzing.CanTransition(StatusCompleted))

	st := newState("id", "q", "/", DefaultSettings())
	assert.Panics(t, func() { st.transition(StatusCompleted) })
}
