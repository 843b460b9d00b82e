package domain

import (
	"fmt"
	"strings"
)

// BuildAnswerPrompt assembles a QA prompt: role description, then the
// few-shot examples, then the labeled context and question.
func BuildAnswerPrompt(question, context string, examples []Example) string {
	var b strings.Builder
	b.WriteString("Tu es un assistant académique francophone. Réponds de façon précise et concise en te fondant sur le contexte fourni.\n\n")

	for _, ex := range examples {
		if ex.Question == "" || ex.Answer == "" {
			continue
		}
		if ex.Context != "" {
			fmt.Fprintf(&b, "Contexte : %s\n", ex.Context)
		}
		fmt.Fprintf(&b, "Question : %s\nRéponse : %s\n\n", ex.Question, ex.Answer)
	}

	if context != "" {
		fmt.Fprintf(&b, "Contexte : %s\n", context)
	}
	fmt.Fprintf(&b, "Question : %s\nRéponse :", question)
	return b.String()
}

var styleInstructions = map[string]string{
	"academic":       "Réécris le texte dans un registre académique soutenu, avec un vocabulaire précis et des connecteurs logiques.",
	"formal":         "Réécris le texte dans un registre formel et professionnel.",
	"paraphrase":     "Reformule le texte avec des mots et une structure différents, sans en changer le sens.",
	"simplification": "Réécris le texte en langage simple et accessible, avec des phrases courtes.",
	"simple":         "Réécris le texte en langage simple et accessible, avec des phrases courtes.",
}

// BuildReformulatePrompt assembles a style-rewrite prompt with examples
// preceding the labeled input.
func BuildReformulatePrompt(text, style string, examples []Example) string {
	instruction, ok := styleInstructions[style]
	if !ok {
		instruction = styleInstructions["paraphrase"]
	}

	var b strings.Builder
	b.WriteString(instruction)
	b.WriteString(" Réponds uniquement avec le texte réécrit.\n\n")

	for _, ex := range examples {
		if ex.Original == "" || ex.Reformulated == "" {
			continue
		}
		fmt.Fprintf(&b, "Texte : %s\nRéécriture : %s\n\n", ex.Original, ex.Reformulated)
	}

	fmt.Fprintf(&b, "Texte : %s\nRéécriture :", text)
	return b.String()
}

// BuildSummarizePrompt assembles a summarization prompt. minWords and
// maxWords bound the requested output length.
func BuildSummarizePrompt(text string, minWords, maxWords int, examples []Example) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Résume le texte suivant en français, en %d à %d mots. Conserve les idées essentielles.\n\n", minWords, maxWords)

	for _, ex := range examples {
		if ex.Text == "" || ex.Summary == "" {
			continue
		}
		fmt.Fprintf(&b, "Texte : %s\nRésumé : %s\n\n", ex.Text, ex.Summary)
	}

	fmt.Fprintf(&b, "Texte : %s\nRésumé :", text)
	return b.String()
}

// BuildCorrectionPrompt asks a generative backend to catch residual issues
// after the grammar checker has run.
func BuildCorrectionPrompt(original, corrected string) string {
	var b strings.Builder
	b.WriteString("Tu es un correcteur de français. Vérifie le texte corrigé ci-dessous et corrige toute erreur restante (orthographe, grammaire, accords). Réponds uniquement avec le texte final corrigé.\n\n")
	fmt.Fprintf(&b, "Texte original : %s\n", original)
	fmt.Fprintf(&b, "Texte corrigé : %s\n", corrected)
	b.WriteString("Texte final :")
	return b.String()
}

// planSkeletons maps plan type to the canonical sub-points of each section.
var planSkeletons = map[string][3]string{
	"academic": {
		"présentation du sujet, problématique, annonce du plan",
		"arguments principaux appuyés sur des références, analyse critique",
		"synthèse des arguments, réponse à la problématique, ouverture",
	},
	"argumentative": {
		"accroche, mise en contexte, thèse défendue",
		"arguments pour, réfutation des objections, exemples",
		"bilan de l'argumentation, réaffirmation de la thèse, ouverture",
	},
	"analytical": {
		"présentation de l'objet d'étude, angles d'analyse",
		"analyse par aspect, causes et conséquences, interprétation",
		"synthèse de l'analyse, portée des résultats",
	},
	"comparative": {
		"présentation des éléments comparés, critères de comparaison",
		"points communs, différences, évaluation croisée",
		"bilan comparatif, jugement argumenté",
	},
}

// BuildPlanPrompt assembles an essay-plan prompt around the canonical
// Introduction / Développement / Conclusion skeleton for the plan type.
func BuildPlanPrompt(topic, planType, structure string, examples []Example) string {
	skeleton, ok := planSkeletons[planType]
	if !ok {
		skeleton = planSkeletons["academic"]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Rédige un plan de dissertation de type %s, avec une structure %s, sur le sujet donné. Le plan comporte trois parties numérotées en chiffres romains :\n", planType, structure)
	fmt.Fprintf(&b, "I. Introduction (%s)\n", skeleton[0])
	fmt.Fprintf(&b, "II. Développement (%s)\n", skeleton[1])
	fmt.Fprintf(&b, "III. Conclusion (%s)\n\n", skeleton[2])

	for _, ex := range examples {
		if ex.Topic == "" || ex.Plan == "" {
			continue
		}
		fmt.Fprintf(&b, "Sujet : %s\nPlan : %s\n\n", ex.Topic, ex.Plan)
	}

	fmt.Fprintf(&b, "Sujet : %s\nPlan :", topic)
	return b.String()
}
