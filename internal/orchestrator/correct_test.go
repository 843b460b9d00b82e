package orchestrator

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plume-ai/backend/pkg/config"
)

func newBareOrchestrator() *Orchestrator {
	return New(&config.Config{}, nil, nil, nil, nil, nil, nil)
}

func TestCorrectGreetingShortcut(t *testing.T) {
	o := newBareOrchestrator()

	env, err := o.Correct(context.Background(), "Bo njour")
	require.NoError(t, err)

	assert.Equal(t, "bonjour", env.Corrected)
	assert.Equal(t, "rule-based", env.Backend)
	require.Len(t, env.Corrections, 1)
	assert.Equal(t, "Bo njour", env.Corrections[0].Original)
}

func TestCorrectGreetingVariants(t *testing.T) {
	o := newBareOrchestrator()
	for in, want := range map[string]string{
		"bon jour": "bonjour",
		"bon soir": "bonsoir",
		"s alut":   "salut",
	} {
		env, err := o.Correct(context.Background(), in)
		require.NoError(t, err, "input %q", in)
		assert.Equal(t, want, env.Corrected)
	}
}

func TestCorrectEmptyInput(t *testing.T) {
	o := newBareOrchestrator()

	_, err := o.Correct(context.Background(), "   ")
	require.Error(t, err)

	var te *TaskError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, CodeInputInvalid, te.Code)
	assert.Equal(t, 400, te.Status)
}

func TestWithinLengthTolerance(t *testing.T) {
	ref := strings.Repeat("a", 100)

	assert.True(t, withinLengthTolerance(strings.Repeat("b", 100), ref))
	assert.True(t, withinLengthTolerance(strings.Repeat("b", 70), ref))
	assert.True(t, withinLengthTolerance(strings.Repeat("b", 142), ref))
	assert.False(t, withinLengthTolerance(strings.Repeat("b", 50), ref))
	assert.False(t, withinLengthTolerance(strings.Repeat("b", 200), ref))
	assert.False(t, withinLengthTolerance("", ref))
	assert.False(t, withinLengthTolerance("x", ""))
}
