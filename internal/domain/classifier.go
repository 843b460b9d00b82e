package domain

import (
	"strings"
)

// Academic domains recognized by the classifier. General is the fallback
// when no keyword scores above threshold.
const (
	Sciences     = "sciences"
	Litterature  = "littérature"
	Histoire     = "histoire"
	Philosophie  = "philosophie"
	Economie     = "économie"
	Informatique = "informatique"
	Psychologie  = "psychologie"
	Geographie   = "géographie"
	Sociologie   = "sociologie"
	General      = "general"
)

// All lists every domain, fallback last.
func All() []string {
	return []string{
		Sciences, Litterature, Histoire, Philosophie, Economie,
		Informatique, Psychologie, Geographie, Sociologie, General,
	}
}

type domainProfile struct {
	keywords []string
	strong   []string
}

var domainProfiles = map[string]domainProfile{
	Sciences: {
		keywords: []string{
			"science", "scientifique", "biologie", "chimie", "physique",
			"cellule", "molécule", "atome", "énergie", "expérience",
			"photosynthèse", "adn", "gène", "évolution", "écosystème",
			"mitochondrie", "organisme", "réaction", "théorie", "laboratoire",
		},
		strong: []string{"photosynthèse", "mitochondrie", "adn", "molécule", "biologie", "chimie", "physique"},
	},
	Litterature: {
		keywords: []string{
			"littérature", "roman", "poésie", "poème", "auteur", "écrivain",
			"personnage", "narrateur", "récit", "nouvelle", "théâtre",
			"métaphore", "style", "œuvre", "chapitre", "vers", "strophe",
		},
		strong: []string{"littérature", "poésie", "roman", "narrateur", "métaphore"},
	},
	Histoire: {
		keywords: []string{
			"histoire", "historique", "guerre", "révolution", "empire",
			"roi", "reine", "siècle", "moyen âge", "antiquité", "dynastie",
			"traité", "bataille", "colonisation", "monarchie", "république",
		},
		strong: []string{"révolution", "empire", "moyen âge", "antiquité", "dynastie"},
	},
	Philosophie: {
		keywords: []string{
			"philosophie", "philosophe", "éthique", "morale", "métaphysique",
			"conscience", "liberté", "existence", "raison", "vérité",
			"kant", "descartes", "platon", "aristote", "nietzsche", "dialectique",
		},
		strong: []string{"philosophie", "métaphysique", "éthique", "dialectique"},
	},
	Economie: {
		keywords: []string{
			"économie", "économique", "marché", "inflation", "croissance",
			"pib", "monnaie", "banque", "investissement", "capital",
			"offre", "demande", "chômage", "commerce", "entreprise", "fiscal",
		},
		strong: []string{"économie", "inflation", "pib", "fiscal"},
	},
	Informatique: {
		keywords: []string{
			"informatique", "ordinateur", "logiciel", "algorithme", "programme",
			"programmation", "code", "données", "réseau", "internet",
			"intelligence artificielle", "machine learning", "serveur",
			"base de données", "cybersécurité", "processeur",
		},
		strong: []string{"algorithme", "programmation", "intelligence artificielle", "cybersécurité"},
	},
	Psychologie: {
		keywords: []string{
			"psychologie", "psychologique", "comportement", "cognitif",
			"émotion", "mémoire", "apprentissage", "motivation", "perception",
			"inconscient", "freud", "thérapie", "anxiété", "stress", "personnalité",
		},
		strong: []string{"psychologie", "cognitif", "inconscient", "thérapie"},
	},
	Geographie: {
		keywords: []string{
			"géographie", "géographique", "climat", "continent", "océan",
			"montagne", "fleuve", "population", "urbanisation", "territoire",
			"relief", "carte", "région", "frontière", "désert", "mondialisation",
		},
		strong: []string{"géographie", "urbanisation", "mondialisation", "relief"},
	},
	Sociologie: {
		keywords: []string{
			"sociologie", "société", "social", "culture", "inégalité",
			"classe sociale", "institution", "norme", "socialisation",
			"durkheim", "bourdieu", "weber", "communauté", "identité", "genre",
		},
		strong: []string{"sociologie", "socialisation", "classe sociale", "inégalité"},
	},
}

// Detect maps free text to one academic domain by keyword scoring. A domain
// wins with score >= 2, or score >= 1 plus a strong indicator; otherwise the
// result is General. Pure function of its input.
func Detect(text string) string {
	lowered := strings.ToLower(text)

	best := General
	bestScore := 0
	bestStrong := false

	for _, name := range All() {
		profile, ok := domainProfiles[name]
		if !ok {
			continue
		}
		score := 0
		strong := false
		for _, kw := range profile.keywords {
			score += strings.Count(lowered, kw)
		}
		for _, kw := range profile.strong {
			if strings.Contains(lowered, kw) {
				strong = true
				break
			}
		}
		if score > bestScore || (score == bestScore && strong && !bestStrong) {
			best = name
			bestScore = score
			bestStrong = strong
		}
	}

	if bestScore >= 2 || (bestScore >= 1 && bestStrong) {
		return best
	}
	return General
}
