package session

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s, err := NewStore(db)
	require.NoError(t, err)
	return s
}

func TestAppendAndReadTurns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id1, err := s.AppendTurn(ctx, "s1", RoleUser, "Bonjour", nil)
	require.NoError(t, err)
	id2, err := s.AppendTurn(ctx, "s1", RoleAssistant, "Bonjour, comment puis-je aider ?", &Metadata{
		TaskType:   "answer",
		BackendID:  "ollama",
		Confidence: 0.8,
		Sources:    []string{"builtin:Doc"},
	})
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	turns, err := s.Turns(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, turns, 2)

	assert.Equal(t, 1, turns[0].Ordinal)
	assert.Equal(t, RoleUser, turns[0].Role)
	assert.Equal(t, "Bonjour", turns[0].Text)

	assert.Equal(t, 2, turns[1].Ordinal)
	assert.Equal(t, RoleAssistant, turns[1].Role)
	assert.Equal(t, "answer", turns[1].TaskType)
	assert.Equal(t, "ollama", turns[1].BackendID)
	assert.InDelta(t, 0.8, turns[1].Confidence, 1e-9)
	assert.Equal(t, []string{"builtin:Doc"}, turns[1].Sources)
}

func TestFirstTurnMustBeUser(t *testing.T) {
	s := newTestStore(t)
	_, err := s.AppendTurn(context.Background(), "s1", RoleAssistant, "je commence", nil)
	assert.ErrorIs(t, err, ErrRoleOrder)
}

func TestRolesMustAlternate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.AppendTurn(ctx, "s1", RoleUser, "premier", nil)
	require.NoError(t, err)

	_, err = s.AppendTurn(ctx, "s1", RoleUser, "encore moi", nil)
	assert.ErrorIs(t, err, ErrRoleOrder)

	// A rejected turn must not consume an ordinal.
	_, err = s.AppendTurn(ctx, "s1", RoleAssistant, "réponse", nil)
	require.NoError(t, err)

	turns, err := s.Turns(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, []int{1, 2}, []int{turns[0].Ordinal, turns[1].Ordinal})
}

func TestUnknownRoleRejected(t *testing.T) {
	s := newTestStore(t)
	_, err := s.AppendTurn(context.Background(), "s1", "system", "texte", nil)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrRoleOrder)
}

func TestSessionsAreIndependent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.AppendTurn(ctx, "s1", RoleUser, "question s1", nil)
	require.NoError(t, err)

	// A fresh session starts its own alternation and ordinals.
	_, err = s.AppendTurn(ctx, "s2", RoleUser, "question s2", nil)
	require.NoError(t, err)

	turns, err := s.Turns(ctx, "s2")
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, 1, turns[0].Ordinal)
}

func TestUpdateTitle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.AppendTurn(ctx, "s1", RoleUser, "bonjour", nil)
	require.NoError(t, err)

	assert.NoError(t, s.UpdateTitle(ctx, "s1", "Dissertation sur Camus"))
	assert.ErrorIs(t, s.UpdateTitle(ctx, "inconnue", "titre"), ErrSessionNotFound)
}

func TestDeleteSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.AppendTurn(ctx, "s1", RoleUser, "bonjour", nil)
	require.NoError(t, err)
	require.NoError(t, s.DeleteSession(ctx, "s1"))

	turns, err := s.Turns(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, turns)

	// The session id is free again: a new first turn must be a user turn.
	_, err = s.AppendTurn(ctx, "s1", RoleAssistant, "réponse", nil)
	assert.ErrorIs(t, err, ErrRoleOrder)
}

func TestDeleteTurnRestoresAlternation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.AppendTurn(ctx, "s1", RoleUser, "question qui échoue", nil)
	require.NoError(t, err)

	// A second user turn is blocked while the failed one lingers.
	_, err = s.AppendTurn(ctx, "s1", RoleUser, "nouvelle tentative", nil)
	require.ErrorIs(t, err, ErrRoleOrder)

	require.NoError(t, s.DeleteTurn(ctx, "s1", id))

	turns, err := s.Turns(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, turns)

	_, err = s.AppendTurn(ctx, "s1", RoleUser, "nouvelle tentative", nil)
	assert.NoError(t, err)
}

func TestDeleteTurnOnlyRemovesLast(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	userID, err := s.AppendTurn(ctx, "s1", RoleUser, "bonjour", nil)
	require.NoError(t, err)
	_, err = s.AppendTurn(ctx, "s1", RoleAssistant, "bonjour à vous", nil)
	require.NoError(t, err)

	assert.ErrorIs(t, s.DeleteTurn(ctx, "s1", userID), ErrTurnNotLast)
	assert.ErrorIs(t, s.DeleteTurn(ctx, "s1", "inconnu"), ErrTurnNotLast)

	turns, err := s.Turns(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, turns, 2)
}

func TestTurnsUnknownSessionEmpty(t *testing.T) {
	s := newTestStore(t)
	turns, err := s.Turns(context.Background(), "absente")
	require.NoError(t, err)
	assert.Empty(t, turns)
}
