package preferences

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/plume-ai/backend/internal/backend"
	"github.com/plume-ai/backend/pkg/logger"
)

const (
	maxFeedbackPerKey = 100
	maxSuccessfulSets = 20
	maxFailedSets     = 10
	maxRatings        = 50

	adaptTopSets = 5

	// Positive feedback carries no explicit rating; it weighs in as a
	// solid-but-not-perfect score.
	defaultPositiveRating = 4.0

	// Disk writes are batched: at most one flush per this many records
	// per (user, task). The buffer is flushed on shutdown.
	flushEvery = 5
)

// FeedbackKind classifies one feedback record.
type FeedbackKind string

const (
	KindPositive FeedbackKind = "positive"
	KindNegative FeedbackKind = "negative"
	KindRating   FeedbackKind = "rating"
)

// Feedback is one user signal about a generated output, with a snapshot of
// the parameters and backend that produced it.
type Feedback struct {
	UserID    string         `json:"user_id"`
	Task      string         `json:"task"`
	Kind      FeedbackKind   `json:"kind"`
	Rating    float64        `json:"rating,omitempty"`
	Comment   string         `json:"comment,omitempty"`
	Params    backend.Params `json:"params,omitempty"`
	BackendID string         `json:"backend_id,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

type backendStats struct {
	Usage     int     `json:"usage"`
	Positive  int     `json:"positive"`
	RatingSum float64 `json:"rating_sum"`
	RatingN   int     `json:"rating_n"`
}

// ratedParams is one successful parameter set together with the rating that
// marked it successful, so later blending can weight each set individually.
type ratedParams struct {
	Params backend.Params `json:"params"`
	Rating float64        `json:"rating"`
}

// summary is the derived per-(user, task) preference state.
type summary struct {
	Positive   int                      `json:"positive"`
	Negative   int                      `json:"negative"`
	Ratings    []float64                `json:"ratings"`
	Successful []ratedParams            `json:"successful_params"`
	Failed     []backend.Params         `json:"failed_params"`
	Backends   map[string]*backendStats `json:"backends"`
}

// Stats is the read-side view returned by Stats.
type Stats struct {
	Records       int     `json:"records"`
	Positive      int     `json:"positive"`
	Negative      int     `json:"negative"`
	AverageRating float64 `json:"average_rating"`
}

// Store records feedback and derives adapted generation parameters and
// backend preferences per (user, task). State persists as two JSON files.
type Store struct {
	mu         sync.Mutex
	dir        string
	feedback   map[string][]Feedback
	summaries  map[string]*summary
	sinceFlush map[string]int
}

func NewStore(dir string) (*Store, error) {
	s := &Store{
		dir:        dir,
		feedback:   make(map[string][]Feedback),
		summaries:  make(map[string]*summary),
		sinceFlush: make(map[string]int),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func key(userID, task string) string {
	return fmt.Sprintf("%s_%s", userID, task)
}

// RecordFeedback appends one feedback record and updates the derived
// summary. Successful parameter sets come from positive feedback or ratings
// of four and above.
func (s *Store) RecordFeedback(fb Feedback) Feedback {
	if fb.CreatedAt.IsZero() {
		fb.CreatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(fb.UserID, fb.Task)
	ring := append(s.feedback[k], fb)
	if len(ring) > maxFeedbackPerKey {
		ring = ring[len(ring)-maxFeedbackPerKey:]
	}
	s.feedback[k] = ring

	sum := s.summaries[k]
	if sum == nil {
		sum = &summary{Backends: make(map[string]*backendStats)}
		s.summaries[k] = sum
	}

	successful := fb.Kind == KindPositive || (fb.Kind == KindRating && fb.Rating >= 4)
	failed := fb.Kind == KindNegative || (fb.Kind == KindRating && fb.Rating <= 2)

	switch fb.Kind {
	case KindPositive:
		sum.Positive++
	case KindNegative:
		sum.Negative++
	case KindRating:
		sum.Ratings = append(sum.Ratings, fb.Rating)
		if len(sum.Ratings) > maxRatings {
			sum.Ratings = sum.Ratings[len(sum.Ratings)-maxRatings:]
		}
	}

	if len(fb.Params) > 0 {
		if successful {
			rating := fb.Rating
			if fb.Kind == KindPositive {
				rating = defaultPositiveRating
			}
			sum.Successful = append(sum.Successful, ratedParams{Params: fb.Params.Clone(), Rating: rating})
			if len(sum.Successful) > maxSuccessfulSets {
				sum.Successful = sum.Successful[len(sum.Successful)-maxSuccessfulSets:]
			}
		} else if failed {
			sum.Failed = append(sum.Failed, fb.Params.Clone())
			if len(sum.Failed) > maxFailedSets {
				sum.Failed = sum.Failed[len(sum.Failed)-maxFailedSets:]
			}
		}
	}

	if fb.BackendID != "" {
		bs := sum.Backends[fb.BackendID]
		if bs == nil {
			bs = &backendStats{}
			sum.Backends[fb.BackendID] = bs
		}
		bs.Usage++
		if fb.Kind == KindPositive {
			bs.Positive++
		}
		if fb.Kind == KindRating {
			bs.RatingSum += fb.Rating
			bs.RatingN++
		}
	}

	s.sinceFlush[k]++
	if s.sinceFlush[k] >= flushEvery {
		s.sinceFlush[k] = 0
		if err := s.saveLocked(); err != nil {
			logger.Error("preference flush failed", zap.Error(err))
		}
	}
	return fb
}

// AdaptParameters blends the defaults with the five most recent successful
// parameter sets for (user, task), each weighted by the rating recorded with
// it. Non-numeric values pass through unchanged. With no recorded sets, or
// an empty user id, the defaults come back verbatim.
func (s *Store) AdaptParameters(userID, task string, defaults backend.Params) backend.Params {
	out := defaults.Clone()
	if userID == "" {
		return out
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sum := s.summaries[key(userID, task)]
	if sum == nil || len(sum.Successful) == 0 {
		return out
	}

	sets := sum.Successful
	if len(sets) > adaptTopSets {
		sets = sets[len(sets)-adaptTopSets:]
	}

	for name, def := range defaults {
		defNum, ok := toFloat(def)
		if !ok {
			continue
		}
		weighted := defNum
		weightSum := 1.0
		for _, set := range sets {
			val, ok := toFloat(set.Params[name])
			if !ok {
				continue
			}
			weighted += val * set.Rating
			weightSum += set.Rating
		}
		blended := weighted / weightSum

		switch def.(type) {
		case int:
			out[name] = int(blended + 0.5)
		default:
			out[name] = blended
		}
	}
	return out
}

// PreferredBackend scores each candidate by half positive-share and half
// normalized average rating, returning the best candidate with score > 0 or
// "" when no candidate has any signal.
func (s *Store) PreferredBackend(userID, task string, candidates []string) string {
	if userID == "" || len(candidates) == 0 {
		return ""
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sum := s.summaries[key(userID, task)]
	if sum == nil {
		return ""
	}

	best := ""
	bestScore := 0.0
	for _, id := range candidates {
		bs := sum.Backends[id]
		if bs == nil {
			continue
		}
		usage := bs.Usage
		if usage < 1 {
			usage = 1
		}
		avg := 0.0
		if bs.RatingN > 0 {
			avg = bs.RatingSum / float64(bs.RatingN)
		}
		score := 0.5*(float64(bs.Positive)/float64(usage)) + 0.5*(avg/5)
		if score > bestScore {
			best = id
			bestScore = score
		}
	}
	return best
}

// StatsFor summarizes recorded feedback. Empty userID or task aggregates
// over all keys.
func (s *Store) StatsFor(userID, task string) Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out Stats
	var ratingSum float64
	var ratingN int
	for k, ring := range s.feedback {
		if userID != "" && task != "" && k != key(userID, task) {
			continue
		}
		for _, fb := range ring {
			if userID != "" && fb.UserID != userID {
				continue
			}
			if task != "" && fb.Task != task {
				continue
			}
			out.Records++
			switch fb.Kind {
			case KindPositive:
				out.Positive++
			case KindNegative:
				out.Negative++
			case KindRating:
				ratingSum += fb.Rating
				ratingN++
			}
		}
	}
	if ratingN > 0 {
		out.AverageRating = ratingSum / float64(ratingN)
	}
	return out
}

// Flush forces pending state to disk. Called on shutdown.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.sinceFlush {
		s.sinceFlush[k] = 0
	}
	return s.saveLocked()
}

func (s *Store) feedbackPath() string    { return filepath.Join(s.dir, "feedback.json") }
func (s *Store) preferencesPath() string { return filepath.Join(s.dir, "preferences.json") }

func (s *Store) load() error {
	if s.dir == "" {
		return nil
	}
	if err := readJSON(s.feedbackPath(), &s.feedback); err != nil {
		return err
	}
	if err := readJSON(s.preferencesPath(), &s.summaries); err != nil {
		return err
	}
	for _, sum := range s.summaries {
		if sum.Backends == nil {
			sum.Backends = make(map[string]*backendStats)
		}
	}
	return nil
}

func (s *Store) saveLocked() error {
	if s.dir == "" {
		return nil
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	if err := writeJSON(s.feedbackPath(), s.feedback); err != nil {
		return err
	}
	return writeJSON(s.preferencesPath(), s.summaries)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	return json.Unmarshal(data, v)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
