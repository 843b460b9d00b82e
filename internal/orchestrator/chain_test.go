package orchestrator

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plume-ai/backend/internal/assembler"
	"github.com/plume-ai/backend/internal/backend"
	"github.com/plume-ai/backend/internal/domain"
	"github.com/plume-ai/backend/internal/knowledge"
	"github.com/plume-ai/backend/internal/preferences"
	"github.com/plume-ai/backend/internal/validator"
	"github.com/plume-ai/backend/pkg/config"
)

// fakeOllama is an in-process stand-in for a local Ollama server: it lists
// one installed model and streams a fixed completion as line-delimited JSON.
type fakeOllama struct {
	mu      sync.Mutex
	failing bool
	temps   []float64
	calls   int
}

func (f *fakeOllama) setFailing(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing = v
}

func (f *fakeOllama) temperatures() []float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]float64, len(f.temps))
	copy(out, f.temps)
	return out
}

func (f *fakeOllama) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newFakeOllama(t *testing.T) (*fakeOllama, *httptest.Server) {
	t.Helper()
	f := &fakeOllama{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"models":[{"name":"test-model"}]}`)
	})
	mux.HandleFunc("/api/generate", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model   string         `json:"model"`
			Options map[string]any `json:"options"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		f.mu.Lock()
		f.calls++
		if temp, ok := req.Options["temperature"].(float64); ok {
			f.temps = append(f.temps, temp)
		}
		failing := f.failing
		f.mu.Unlock()

		if failing {
			http.Error(w, "model crashed", http.StatusInternalServerError)
			return
		}
		fmt.Fprintln(w, `{"response":"Bonjour "}`)
		fmt.Fprintln(w, `{"response":"le monde.","done":true}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return f, srv
}

func newChainConfig(url string) *config.Config {
	return &config.Config{
		Ollama: config.OllamaConfig{
			URL:            url,
			Model:          "test-model",
			TimeoutSec:     5,
			PullTimeoutSec: 1,
		},
		Tasks: config.TasksConfig{
			DeadlineSec:      30,
			MaxContextChars:  2000,
			MaxContextChunks: 3,
		},
	}
}

func newChainOrchestrator(t *testing.T, cfg *config.Config) (*Orchestrator, *backend.Registry) {
	t.Helper()
	reg := backend.NewRegistry(cfg)
	examples, err := domain.NewExampleStore(filepath.Join(t.TempDir(), "fewshot.json"))
	require.NoError(t, err)
	return New(cfg, reg, examples, nil, nil, nil, nil), reg
}

func TestChainAdvancesPastUnknownBackend(t *testing.T) {
	_, srv := newFakeOllama(t)
	o, _ := newChainOrchestrator(t, newChainConfig(srv.URL))

	// No seq2seq endpoint is configured, so the first step fails and the
	// local LLM serves the request.
	prompt := func() string { return "Question simple." }
	res, err := o.runChain(context.Background(), []genStep{
		{backendID: backend.IDSeq2Seq, prompt: prompt, params: backend.Params{}},
		{backendID: backend.IDOllama, prompt: prompt, params: backend.Params{}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Bonjour le monde.", res.Text)
	assert.Equal(t, backend.IDOllama, res.Backend)
}

func TestChainRecoversAfterBackendError(t *testing.T) {
	fake, srv := newFakeOllama(t)
	o, _ := newChainOrchestrator(t, newChainConfig(srv.URL))

	prompt := func() string { return "Question simple." }
	steps := []genStep{{backendID: backend.IDOllama, prompt: prompt, params: backend.Params{}}}

	fake.setFailing(true)
	_, err := o.runChain(context.Background(), steps)
	require.Error(t, err)

	// One failure leaves the backend degraded, not parked: the next call
	// goes straight through.
	fake.setFailing(false)
	res, err := o.runChain(context.Background(), steps)
	require.NoError(t, err)
	assert.Equal(t, "Bonjour le monde.", res.Text)
}

func TestAnswerStreamDeliversBackendDeltas(t *testing.T) {
	_, srv := newFakeOllama(t)
	cfg := newChainConfig(srv.URL)
	reg := backend.NewRegistry(cfg)

	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "knowledge.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	store, err := knowledge.NewStore(db, nil)
	require.NoError(t, err)

	examples, err := domain.NewExampleStore(filepath.Join(t.TempDir(), "fewshot.json"))
	require.NoError(t, err)

	o := New(cfg, reg, examples, assembler.New(store), validator.New(nil), nil, nil)

	var deltas []string
	env, err := o.AnswerStream(context.Background(), AnswerRequest{
		Question: "Comment saluer le monde en français ?",
	}, func(delta string) {
		deltas = append(deltas, delta)
	})
	require.NoError(t, err)

	// The deltas are the backend's own fragments, not a replay of the
	// final text.
	require.NotEmpty(t, deltas)
	assert.Equal(t, "Bonjour le monde.", strings.Join(deltas, ""))
	assert.Equal(t, "Bonjour le monde.", env.Answer)
	assert.Equal(t, backend.IDOllama, env.Backend)
}

func TestChunkedSummarizeAppliesUserParameters(t *testing.T) {
	fake, srv := newFakeOllama(t)
	cfg := newChainConfig(srv.URL)
	reg := backend.NewRegistry(cfg)

	examples, err := domain.NewExampleStore(filepath.Join(t.TempDir(), "fewshot.json"))
	require.NoError(t, err)
	prefs, err := preferences.NewStore(t.TempDir())
	require.NoError(t, err)
	prefs.RecordFeedback(preferences.Feedback{
		UserID: "alice", Task: "summarize",
		Kind: preferences.KindRating, Rating: 5,
		Params: backend.Params{"temperature": 0.9},
	})

	o := New(cfg, reg, examples, nil, validator.New(nil), prefs, nil)

	// Over the chunking threshold, so every chunk call must carry the
	// adapted temperature: (0.3 + 0.9*5) / (1 + 5) = 0.8.
	text := strings.Repeat("Le chat dort sur le tapis rouge du salon. ", 120)
	_, err = o.Summarize(context.Background(), text, "medium", "alice")
	require.NoError(t, err)

	temps := fake.temperatures()
	require.NotEmpty(t, temps)
	require.Positive(t, fake.callCount())
	for _, temp := range temps {
		assert.InDelta(t, 0.8, temp, 1e-9)
	}
}
