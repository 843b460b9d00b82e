package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectSciences(t *testing.T) {
	got := Detect("Qu'est-ce que la photosynthèse ?")
	assert.Equal(t, Sciences, got)
}

func TestDetectTwoKeywords(t *testing.T) {
	got := Detect("L'inflation et la croissance du marché inquiètent les banques.")
	assert.Equal(t, Economie, got)
}

func TestDetectGeneralFallback(t *testing.T) {
	assert.Equal(t, General, Detect("Bonjour, comment vas-tu ?"))
	assert.Equal(t, General, Detect(""))
}

func TestDetectSingleWeakMatchDoesNotWin(t *testing.T) {
	// "théorie" is a sciences keyword but not a strong indicator.
	assert.Equal(t, General, Detect("J'ai une théorie sur ce sujet."))
}

func TestDetectSingleStrongIndicatorWins(t *testing.T) {
	assert.Equal(t, Sciences, Detect("Parle-moi de la mitochondrie."))
}

func TestDetectCountsRepeatedKeyword(t *testing.T) {
	// One occurrence of a weak keyword is not enough, two of the same are.
	assert.Equal(t, General, Detect("La guerre fut longue."))
	assert.Equal(t, Histoire, Detect("La guerre éclata, puis la guerre cessa."))
}

func TestDetectDeterministic(t *testing.T) {
	inputs := []string{
		"Qu'est-ce que la photosynthèse ?",
		"La Révolution française et l'empire napoléonien",
		"Bonjour",
		"Un algorithme de programmation en intelligence artificielle",
	}
	for _, input := range inputs {
		first := Detect(input)
		for i := 0; i < 5; i++ {
			assert.Equal(t, first, Detect(input), "input %q", input)
		}
	}
}

func TestDetectInformatique(t *testing.T) {
	got := Detect("Comment fonctionne un algorithme de machine learning sur un serveur ?")
	assert.Equal(t, Informatique, got)
}
