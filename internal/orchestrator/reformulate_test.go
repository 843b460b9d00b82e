package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStyleDefaults(t *testing.T) {
	p := styleDefaults("paraphrase")
	assert.Equal(t, 0.9, p["temperature"])
	assert.Equal(t, 0.95, p["top_p"])

	a := styleDefaults("academic")
	assert.Equal(t, 0.2, a["temperature"])
	assert.Equal(t, 4, a["num_beams"])

	s := styleDefaults("simple")
	assert.Equal(t, styleDefaults("simplification"), s)

	u := styleDefaults("inconnu")
	assert.Equal(t, 0.5, u["temperature"])
}

func TestReformStylesAccepted(t *testing.T) {
	for _, style := range []string{"academic", "formal", "paraphrase", "simplification", "simple"} {
		assert.True(t, reformStyles[style], style)
	}
	assert.False(t, reformStyles["poétique"])
}
