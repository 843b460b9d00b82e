package orchestrator

import (
	"regexp"
	"strings"

	"github.com/plume-ai/backend/internal/knowledge"
)

// Rule-based rewrite pass used when a model output stays too close to its
// input. One synonym table per domain, selected by the detected domain;
// unknown domains use the general table.

var generalSynonyms = map[string]string{
	"important":    "essentiel",
	"importante":   "essentielle",
	"grand":        "considérable",
	"grande":       "considérable",
	"petit":        "réduit",
	"petite":       "réduite",
	"montre":       "révèle",
	"montrent":     "révèlent",
	"utilise":      "emploie",
	"utilisent":    "emploient",
	"permet":       "autorise",
	"permettent":   "autorisent",
	"beaucoup":     "de nombreux",
	"aussi":        "également",
	"mais":         "cependant",
	"donc":         "par conséquent",
	"transforme":   "modifie en profondeur",
	"transforment": "modifient en profondeur",
	"société":      "corps social",
	"problème":     "difficulté",
	"problèmes":    "difficultés",
	"changement":   "évolution",
	"changements":  "évolutions",
}

var domainSynonyms = map[string]map[string]string{
	"sciences": {
		"étude":      "analyse expérimentale",
		"résultat":   "observation",
		"résultats":  "observations",
		"expérience": "protocole expérimental",
	},
	"informatique": {
		"programme":    "logiciel",
		"ordinateur":   "système informatique",
		"données":      "informations",
		"intelligence": "capacité cognitive",
	},
	"économie": {
		"argent":     "capital",
		"entreprise": "organisation",
		"croissance": "expansion",
	},
	"littérature": {
		"livre":    "ouvrage",
		"auteur":   "écrivain",
		"histoire": "récit",
	},
}

// aggressiveSynonyms is applied on top of the domain table when the first
// pass still leaves the text too similar.
var aggressiveSynonyms = map[string]string{
	"est":      "constitue",
	"sont":     "constituent",
	"a":        "possède",
	"ont":      "possèdent",
	"fait":     "réalise",
	"font":     "réalisent",
	"notre":    "notre propre",
	"très":     "particulièrement",
	"nouveau":  "inédit",
	"nouvelle": "inédite",
}

func synonymTable(domainName string) map[string]string {
	table := make(map[string]string, len(generalSynonyms))
	for k, v := range generalSynonyms {
		table[k] = v
	}
	for k, v := range domainSynonyms[domainName] {
		table[k] = v
	}
	return table
}

var wordSplit = regexp.MustCompile(`(\pL+|\PL+)`)

// applySynonyms substitutes whole words, keeping a leading capital.
func applySynonyms(text string, table map[string]string) string {
	parts := wordSplit.FindAllString(text, -1)
	var b strings.Builder
	for _, part := range parts {
		lowered := strings.ToLower(part)
		repl, ok := table[lowered]
		if !ok {
			b.WriteString(part)
			continue
		}
		if part != lowered && len(repl) > 0 {
			repl = strings.ToUpper(repl[:1]) + repl[1:]
		}
		b.WriteString(repl)
	}
	return b.String()
}

// passivePattern matches a simple "sujet verbe complément." French clause
// in passé composé, the only construction the transform handles reliably.
var passivePattern = regexp.MustCompile(`^(Le |La |Les |L')([\pL\s']+?) a ([\pL]+é) (le |la |les |l')([\pL\s']+?)([.!?]?)$`)

// togglePassive rewrites "Le X a Vé le Y." as "Le Y a été Vé par le X."
// Sentences that do not match come back unchanged.
func togglePassive(sentence string) string {
	m := passivePattern.FindStringSubmatch(strings.TrimSpace(sentence))
	if m == nil {
		return sentence
	}
	objArt := strings.ToUpper(m[4][:1]) + m[4][1:]
	subjArt := strings.ToLower(m[1])
	return objArt + m[5] + " a été " + m[3] + " par " + subjArt + m[2] + m[6]
}

// reorderClauses moves a trailing comma clause to the front.
func reorderClauses(sentence string) string {
	trimmed := strings.TrimSpace(sentence)
	terminator := ""
	if n := len(trimmed); n > 0 && strings.ContainsRune(".!?", rune(trimmed[n-1])) {
		terminator = string(trimmed[n-1])
		trimmed = trimmed[:n-1]
	}
	idx := strings.LastIndex(trimmed, ", ")
	if idx <= 0 {
		return sentence
	}
	head := trimmed[:idx]
	tail := strings.TrimSpace(trimmed[idx+2:])
	if tail == "" {
		return sentence
	}
	tail = strings.ToUpper(tail[:1]) + tail[1:]
	head = strings.ToLower(head[:1]) + head[1:]
	return tail + ", " + head + terminator
}

// rewritePass is the first-stage rule rewrite: domain synonyms everywhere,
// active/passive toggling on alternate sentences.
func rewritePass(text, domainName string) string {
	table := synonymTable(domainName)
	sentences := knowledge.SplitSentences(text)
	out := make([]string, 0, len(sentences))
	for i, s := range sentences {
		s = applySynonyms(s, table)
		if i%2 == 1 {
			s = togglePassive(s)
		}
		out = append(out, strings.TrimSpace(s))
	}
	return strings.Join(out, " ")
}

// aggressiveRewrite adds the aggressive table and clause reordering.
func aggressiveRewrite(text, domainName string) string {
	table := synonymTable(domainName)
	for k, v := range aggressiveSynonyms {
		table[k] = v
	}
	sentences := knowledge.SplitSentences(text)
	out := make([]string, 0, len(sentences))
	for _, s := range sentences {
		s = applySynonyms(s, table)
		s = reorderClauses(s)
		out = append(out, strings.TrimSpace(s))
	}
	return strings.Join(out, " ")
}
