package preferences

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plume-ai/backend/internal/backend"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestAdaptWithoutHistoryReturnsDefaults(t *testing.T) {
	s := newTestStore(t)
	defaults := backend.Params{"temperature": 0.3, "top_k": 3, "style": "academic"}

	got := s.AdaptParameters("alice", "answer", defaults)
	assert.Equal(t, defaults, got)
}

func TestAdaptAnonymousUserReturnsDefaults(t *testing.T) {
	s := newTestStore(t)
	s.RecordFeedback(Feedback{
		UserID: "", Task: "answer", Kind: KindPositive,
		Params: backend.Params{"temperature": 0.9},
	})

	defaults := backend.Params{"temperature": 0.3}
	assert.Equal(t, defaults, s.AdaptParameters("", "answer", defaults))
}

func TestAdaptDoesNotMutateDefaults(t *testing.T) {
	s := newTestStore(t)
	s.RecordFeedback(Feedback{
		UserID: "alice", Task: "answer", Kind: KindPositive,
		Params: backend.Params{"temperature": 0.9},
	})

	defaults := backend.Params{"temperature": 0.3}
	_ = s.AdaptParameters("alice", "answer", defaults)
	assert.Equal(t, 0.3, defaults["temperature"])
}

func TestAdaptBlendsTowardSuccessfulSets(t *testing.T) {
	s := newTestStore(t)
	s.RecordFeedback(Feedback{
		UserID: "alice", Task: "answer", Kind: KindPositive,
		Params: backend.Params{"temperature": 0.9},
	})

	got := s.AdaptParameters("alice", "answer", backend.Params{"temperature": 0.3})
	temp := got["temperature"].(float64)
	assert.Greater(t, temp, 0.3)
	assert.Less(t, temp, 0.9)
}

func TestAdaptIntDefaultsStayInts(t *testing.T) {
	s := newTestStore(t)
	s.RecordFeedback(Feedback{
		UserID: "alice", Task: "answer", Kind: KindPositive,
		Params: backend.Params{"top_k": 5},
	})

	got := s.AdaptParameters("alice", "answer", backend.Params{"top_k": 3})
	v, ok := got["top_k"].(int)
	require.True(t, ok, "top_k must stay an int, got %T", got["top_k"])
	assert.GreaterOrEqual(t, v, 3)
	assert.LessOrEqual(t, v, 5)
}

func TestAdaptWeighsEachSetByItsOwnRating(t *testing.T) {
	s := newTestStore(t)
	s.RecordFeedback(Feedback{
		UserID: "alice", Task: "answer", Kind: KindRating, Rating: 5,
		Params: backend.Params{"temperature": 1.0},
	})
	s.RecordFeedback(Feedback{
		UserID: "alice", Task: "answer", Kind: KindPositive,
		Params: backend.Params{"temperature": 0.0},
	})

	// (0.2*1 + 1.0*5 + 0.0*4) / (1 + 5 + 4): the rated-5 set pulls harder
	// than the plain positive one.
	got := s.AdaptParameters("alice", "answer", backend.Params{"temperature": 0.2})
	assert.InDelta(t, 0.52, got["temperature"].(float64), 1e-9)
}

func TestAdaptNonNumericPassThrough(t *testing.T) {
	s := newTestStore(t)
	s.RecordFeedback(Feedback{
		UserID: "alice", Task: "reformulate", Kind: KindPositive,
		Params: backend.Params{"style": "simplification"},
	})

	got := s.AdaptParameters("alice", "reformulate", backend.Params{"style": "academic"})
	assert.Equal(t, "academic", got["style"])
}

func TestNegativeFeedbackDoesNotAdapt(t *testing.T) {
	s := newTestStore(t)
	s.RecordFeedback(Feedback{
		UserID: "alice", Task: "answer", Kind: KindNegative,
		Params: backend.Params{"temperature": 0.9},
	})

	defaults := backend.Params{"temperature": 0.3}
	assert.Equal(t, defaults, s.AdaptParameters("alice", "answer", defaults))
}

func TestLowRatingCountsAsFailed(t *testing.T) {
	s := newTestStore(t)
	s.RecordFeedback(Feedback{
		UserID: "alice", Task: "answer", Kind: KindRating, Rating: 2,
		Params: backend.Params{"temperature": 0.9},
	})

	defaults := backend.Params{"temperature": 0.3}
	assert.Equal(t, defaults, s.AdaptParameters("alice", "answer", defaults))
}

func TestPreferredBackendNoSignal(t *testing.T) {
	s := newTestStore(t)
	assert.Empty(t, s.PreferredBackend("alice", "answer", []string{"ollama", "qa"}))
	assert.Empty(t, s.PreferredBackend("", "answer", []string{"ollama"}))
}

func TestPreferredBackendReturnsCandidate(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 3; i++ {
		s.RecordFeedback(Feedback{UserID: "alice", Task: "answer", Kind: KindPositive, BackendID: "ollama"})
	}
	s.RecordFeedback(Feedback{UserID: "alice", Task: "answer", Kind: KindNegative, BackendID: "qa"})

	got := s.PreferredBackend("alice", "answer", []string{"ollama", "qa"})
	assert.Equal(t, "ollama", got)
}

func TestPreferredBackendIgnoresNonCandidates(t *testing.T) {
	s := newTestStore(t)
	s.RecordFeedback(Feedback{UserID: "alice", Task: "answer", Kind: KindPositive, BackendID: "other"})

	assert.Empty(t, s.PreferredBackend("alice", "answer", []string{"ollama", "qa"}))
}

func TestPreferredBackendWeighsRatings(t *testing.T) {
	s := newTestStore(t)
	s.RecordFeedback(Feedback{UserID: "alice", Task: "answer", Kind: KindRating, Rating: 5, BackendID: "qa"})
	s.RecordFeedback(Feedback{UserID: "alice", Task: "answer", Kind: KindRating, Rating: 1, BackendID: "ollama"})

	assert.Equal(t, "qa", s.PreferredBackend("alice", "answer", []string{"ollama", "qa"}))
}

func TestStatsForRecordedFeedback(t *testing.T) {
	s := newTestStore(t)
	s.RecordFeedback(Feedback{UserID: "alice", Task: "answer", Kind: KindPositive})
	s.RecordFeedback(Feedback{UserID: "alice", Task: "answer", Kind: KindNegative})
	s.RecordFeedback(Feedback{UserID: "alice", Task: "answer", Kind: KindRating, Rating: 4})

	st := s.StatsFor("alice", "answer")
	assert.Equal(t, 3, st.Records)
	assert.Equal(t, 1, st.Positive)
	assert.Equal(t, 1, st.Negative)
	assert.InDelta(t, 4.0, st.AverageRating, 1e-9)
}

func TestStatsForExcludesOtherUsers(t *testing.T) {
	s := newTestStore(t)
	s.RecordFeedback(Feedback{UserID: "alice", Task: "answer", Kind: KindPositive})
	s.RecordFeedback(Feedback{UserID: "bob", Task: "answer", Kind: KindPositive})

	assert.Equal(t, 1, s.StatsFor("alice", "answer").Records)
}

func TestFeedbackRingBounded(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < maxFeedbackPerKey+20; i++ {
		s.RecordFeedback(Feedback{UserID: "alice", Task: "answer", Kind: KindPositive, Comment: fmt.Sprintf("n%d", i)})
	}

	st := s.StatsFor("alice", "answer")
	assert.Equal(t, maxFeedbackPerKey, st.Records)
}

func TestPersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	require.NoError(t, err)

	s.RecordFeedback(Feedback{
		UserID: "alice", Task: "answer", Kind: KindRating, Rating: 5,
		BackendID: "ollama", Params: backend.Params{"temperature": 0.7},
	})
	require.NoError(t, s.Flush())

	reloaded, err := NewStore(dir)
	require.NoError(t, err)

	st := reloaded.StatsFor("alice", "answer")
	assert.Equal(t, 1, st.Records)
	assert.InDelta(t, 5.0, st.AverageRating, 1e-9)
	assert.Equal(t, "ollama", reloaded.PreferredBackend("alice", "answer", []string{"ollama"}))

	adapted := reloaded.AdaptParameters("alice", "answer", backend.Params{"temperature": 0.3})
	assert.Greater(t, adapted["temperature"].(float64), 0.3)
}
