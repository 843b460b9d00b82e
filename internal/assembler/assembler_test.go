package assembler

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plume-ai/backend/internal/knowledge"
)

type fakeSearcher struct {
	results []knowledge.Result
	err     error
	gotOpts knowledge.SearchOptions
}

func (f *fakeSearcher) Search(_ context.Context, _ string, opts knowledge.SearchOptions) ([]knowledge.Result, error) {
	f.gotOpts = opts
	return f.results, f.err
}

func newTestAssembler(s searcher) *Assembler {
	return &Assembler{store: s}
}

func TestPriorityOrder(t *testing.T) {
	store := &fakeSearcher{results: []knowledge.Result{
		{ChunkID: "c1", Text: "Chunk de la base documentaire.", Score: 0.9, SourceKind: "builtin", Title: "Doc"},
	}}
	a := newTestAssembler(store)

	out, err := a.Assemble(context.Background(), "question", Request{
		ExplicitContext: "Contexte fourni par l'appelant.",
		WebResults:      []WebResult{{Title: "Page", Snippet: "Extrait du web."}},
	})
	require.NoError(t, err)

	require.Len(t, out.Sources, 3)
	assert.Equal(t, "explicit", out.Sources[0].Kind)
	assert.Equal(t, "web", out.Sources[1].Kind)
	assert.Equal(t, "builtin", out.Sources[2].Kind)

	parts := strings.Split(out.Context, "\n\n")
	require.Len(t, parts, 3)
	assert.Equal(t, "Contexte fourni par l'appelant.", parts[0])
	assert.Equal(t, "[Page] Extrait du web.", parts[1])
}

func TestDedupByPrefix(t *testing.T) {
	dup := "Cette phrase apparaît deux fois dans les sources."
	store := &fakeSearcher{results: []knowledge.Result{
		{ChunkID: "c1", Text: dup, Score: 0.8, SourceKind: "user"},
	}}
	a := newTestAssembler(store)

	out, err := a.Assemble(context.Background(), "question", Request{ExplicitContext: dup})
	require.NoError(t, err)

	assert.Len(t, out.Sources, 1)
	assert.Equal(t, "explicit", out.Sources[0].Kind)
	assert.Equal(t, 1, strings.Count(out.Context, "apparaît"))
}

func TestDedupIgnoresDivergentTails(t *testing.T) {
	prefix := strings.Repeat("a", 200)
	store := &fakeSearcher{results: []knowledge.Result{
		{ChunkID: "c1", Text: prefix + " suite une.", Score: 0.8, SourceKind: "user"},
		{ChunkID: "c2", Text: prefix + " suite deux.", Score: 0.7, SourceKind: "user"},
	}}
	a := newTestAssembler(store)

	out, err := a.Assemble(context.Background(), "question", Request{})
	require.NoError(t, err)
	assert.Len(t, out.Sources, 1)
}

func TestBudgetCutsAtSentenceBoundary(t *testing.T) {
	long := "Première phrase complète. Deuxième phrase complète. Troisième phrase qui sera coupée avant la fin car elle dépasse largement le budget imparti."
	a := newTestAssembler(&fakeSearcher{})

	out, err := a.Assemble(context.Background(), "q", Request{
		ExplicitContext: long,
		MaxChars:        60,
	})
	require.NoError(t, err)

	assert.LessOrEqual(t, len(out.Context), 60)
	assert.True(t, strings.HasSuffix(out.Context, "."), "context must end at a sentence boundary: %q", out.Context)
	assert.Len(t, out.Sources, 1)
}

func TestBudgetDropsPartsAfterCut(t *testing.T) {
	store := &fakeSearcher{results: []knowledge.Result{
		{ChunkID: "c1", Text: "Un chunk qui ne tiendra jamais dans le budget restant du contexte.", Score: 0.9, SourceKind: "builtin"},
	}}
	a := newTestAssembler(store)

	out, err := a.Assemble(context.Background(), "q", Request{
		ExplicitContext: "Phrase courte.",
		MaxChars:        20,
	})
	require.NoError(t, err)

	assert.Equal(t, "Phrase courte.", out.Context)
	require.Len(t, out.Sources, 1)
	assert.Equal(t, "explicit", out.Sources[0].Kind)
}

func TestNoCompleteSentenceFitsYieldsEmpty(t *testing.T) {
	a := newTestAssembler(&fakeSearcher{})
	out, err := a.Assemble(context.Background(), "q", Request{
		ExplicitContext: "Une très longue phrase sans aucune ponctuation interne qui dépasse le budget",
		MaxChars:        30,
	})
	require.NoError(t, err)
	assert.Empty(t, out.Context)
	assert.Empty(t, out.Sources)
}

func TestCutAtSentenceMultibyteTerminatorRespectsLimit(t *testing.T) {
	// "Voilà…" is 9 bytes: the ellipsis starts inside the limit but its last
	// byte falls outside, so it must not count as a cut point.
	assert.Empty(t, cutAtSentence("Voilà… et la suite continue ici", 8))

	// An earlier in-budget terminator still wins.
	got := cutAtSentence("Ab. c… et encore du texte", 6)
	assert.Equal(t, "Ab.", got)
	assert.LessOrEqual(t, len(got), 6)
}

func TestSearchOptionsPassthrough(t *testing.T) {
	store := &fakeSearcher{}
	a := newTestAssembler(store)

	_, err := a.Assemble(context.Background(), "q", Request{UserID: "alice", Domain: "sciences", MaxChunks: 2})
	require.NoError(t, err)

	assert.Equal(t, "alice", store.gotOpts.UserID)
	assert.Equal(t, "sciences", store.gotOpts.Domain)
	assert.Equal(t, 2, store.gotOpts.TopK)
}

func TestSearchErrorIsNotFatal(t *testing.T) {
	store := &fakeSearcher{err: assert.AnError}
	a := newTestAssembler(store)

	out, err := a.Assemble(context.Background(), "q", Request{ExplicitContext: "Contexte explicite."})
	require.NoError(t, err)
	assert.Equal(t, "Contexte explicite.", out.Context)
}

func TestEmptyWebSnippetsSkipped(t *testing.T) {
	a := newTestAssembler(&fakeSearcher{})
	out, err := a.Assemble(context.Background(), "q", Request{
		WebResults: []WebResult{{Title: "Vide", Snippet: "   "}},
	})
	require.NoError(t, err)
	assert.Empty(t, out.Sources)
}
