package assembler

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/plume-ai/backend/internal/knowledge"
	"github.com/plume-ai/backend/internal/metrics"
	"github.com/plume-ai/backend/pkg/logger"
)

const (
	DefaultMaxChunks = 5
	DefaultMaxChars  = 2000

	dedupPrefixLen = 200
)

// WebResult is a web-search snippet supplied by the caller.
type WebResult struct {
	Title   string
	Snippet string
	URL     string
}

// Source attributes one piece of the assembled context, in context order.
type Source struct {
	Kind  string  `json:"kind"` // "explicit", "web", "builtin", "user"
	Title string  `json:"title,omitempty"`
	Score float64 `json:"score,omitempty"`
}

// Request controls one assembly.
type Request struct {
	UserID          string
	Domain          string
	MaxChunks       int
	MaxChars        int
	ExplicitContext string
	WebResults      []WebResult
}

// Assembled is the budget-trimmed context plus its attributions.
type Assembled struct {
	Context string
	Sources []Source
}

type searcher interface {
	Search(ctx context.Context, query string, opts knowledge.SearchOptions) ([]knowledge.Result, error)
}

// Assembler builds grounding context for a query from explicit caller
// context, web snippets, and the knowledge store, in that priority order.
type Assembler struct {
	store searcher
}

func New(store *knowledge.Store) *Assembler {
	return &Assembler{store: store}
}

func (a *Assembler) Assemble(ctx context.Context, question string, req Request) (*Assembled, error) {
	if req.MaxChunks <= 0 {
		req.MaxChunks = DefaultMaxChunks
	}
	if req.MaxChars <= 0 {
		req.MaxChars = DefaultMaxChars
	}

	var parts []string
	var sources []Source
	seen := make(map[string]bool)

	add := func(text string, src Source) {
		key := dedupKey(text)
		if text == "" || seen[key] {
			return
		}
		seen[key] = true
		parts = append(parts, text)
		sources = append(sources, src)
	}

	if strings.TrimSpace(req.ExplicitContext) != "" {
		add(strings.TrimSpace(req.ExplicitContext), Source{Kind: "explicit"})
	}

	for _, wr := range req.WebResults {
		snippet := strings.TrimSpace(wr.Snippet)
		if snippet == "" {
			continue
		}
		text := snippet
		if wr.Title != "" {
			text = fmt.Sprintf("[%s] %s", wr.Title, snippet)
		}
		add(text, Source{Kind: "web", Title: wr.Title})
	}

	if a.store != nil {
		results, err := a.store.Search(ctx, question, knowledge.SearchOptions{
			UserID: req.UserID,
			Domain: req.Domain,
			TopK:   req.MaxChunks,
		})
		if err != nil {
			logger.Warn("knowledge search failed during assembly", zap.Error(err))
		}
		metrics.RetrievedChunks.Observe(float64(len(results)))
		for _, r := range results {
			add(r.Text, Source{Kind: r.SourceKind, Title: r.Title, Score: r.Score})
		}
	}

	contextStr, kept := truncate(parts, req.MaxChars)
	return &Assembled{Context: contextStr, Sources: sources[:kept]}, nil
}

func dedupKey(text string) string {
	if len(text) > dedupPrefixLen {
		text = text[:dedupPrefixLen]
	}
	return text
}

// truncate joins parts with blank lines under the character budget. The part
// that crosses the budget is cut back to its last full sentence; parts after
// it are dropped. Returns the string and how many parts contributed.
func truncate(parts []string, maxChars int) (string, int) {
	var b strings.Builder
	kept := 0
	for _, part := range parts {
		sep := ""
		if b.Len() > 0 {
			sep = "\n\n"
		}
		if b.Len()+len(sep)+len(part) <= maxChars {
			b.WriteString(sep)
			b.WriteString(part)
			kept++
			continue
		}

		room := maxChars - b.Len() - len(sep)
		trimmed := cutAtSentence(part, room)
		if trimmed != "" {
			b.WriteString(sep)
			b.WriteString(trimmed)
			kept++
		}
		break
	}
	return b.String(), kept
}

// cutAtSentence returns the longest prefix of text within limit that ends at
// a sentence terminator, or "" when no complete sentence fits.
func cutAtSentence(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if len(text) <= limit {
		return text
	}
	cut := -1
	for i, r := range text {
		if i >= limit {
			break
		}
		switch r {
		case '.', '!', '?', '…':
			if end := i + len(string(r)); end <= limit {
				cut = end
			}
		}
	}
	if cut <= 0 {
		return ""
	}
	return strings.TrimSpace(text[:cut])
}
