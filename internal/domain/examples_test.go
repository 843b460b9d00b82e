package domain

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *ExampleStore {
	t.Helper()
	s, err := NewExampleStore(filepath.Join(t.TempDir(), "fewshot.json"))
	require.NoError(t, err)
	return s
}

func TestExampleBoundEviction(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 12; i++ {
		err := s.Add("answer", "", "histoire", Example{
			Question: fmt.Sprintf("q%d", i),
			Answer:   fmt.Sprintf("a%d", i),
		})
		require.NoError(t, err)
	}

	assert.Equal(t, 10, s.Count("answer", "", "histoire"))

	// the oldest two were evicted, the newest survives
	selected := s.Select("answer", "", "histoire")
	require.NotEmpty(t, selected)
	assert.Equal(t, "q11", selected[len(selected)-1].Question)
}

func TestSelectResolutionOrder(t *testing.T) {
	s := newTestStore(t)

	// a task the seed corpus does not populate, so only these four keys exist
	require.NoError(t, s.Add("translate", "", "", Example{Original: "task-only", Reformulated: "x"}))
	require.NoError(t, s.Add("translate", "academic", "", Example{Original: "task-style", Reformulated: "x"}))
	require.NoError(t, s.Add("translate", "", "sciences", Example{Original: "task-domain", Reformulated: "x"}))
	require.NoError(t, s.Add("translate", "academic", "sciences", Example{Original: "exact", Reformulated: "x"}))

	got := s.Select("translate", "academic", "sciences")
	require.Len(t, got, 1)
	assert.Equal(t, "exact", got[0].Original)

	got = s.Select("translate", "academic", "histoire")
	require.Len(t, got, 1)
	assert.Equal(t, "task-style", got[0].Original)

	got = s.Select("translate", "formal", "sciences")
	require.Len(t, got, 1)
	assert.Equal(t, "task-domain", got[0].Original)

	got = s.Select("translate", "formal", "histoire")
	require.Len(t, got, 1)
	assert.Equal(t, "task-only", got[0].Original)
}

func TestSelectNeverEmptyWhenTaskHasExamples(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Add("summarize", "", "", Example{Text: "t", Summary: "s"}))

	got := s.Select("summarize", "unknown-style", "unknown-domain")
	assert.NotEmpty(t, got)
}

func TestSelectCapsAtThree(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 6; i++ {
		require.NoError(t, s.Add("answer", "", "", Example{Question: fmt.Sprintf("q%d", i), Answer: "a"}))
	}
	assert.Len(t, s.Select("answer", "", ""), 3)
}

func TestSeedCorpusCoversAllTasks(t *testing.T) {
	s := newTestStore(t)
	for _, task := range []string{"answer", "reformulate", "summarize", "plan"} {
		assert.NotEmpty(t, s.Select(task, "", ""), "task %s", task)
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fewshot.json")

	s, err := NewExampleStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Add("answer", "", "sciences", Example{Question: "persisted", Answer: "yes"}))

	reloaded, err := NewExampleStore(path)
	require.NoError(t, err)
	got := reloaded.Select("answer", "", "sciences")
	require.NotEmpty(t, got)
	assert.Equal(t, "persisted", got[len(got)-1].Question)
}
