package orchestrator

import (
	"context"
	"regexp"
	"strings"

	"github.com/plume-ai/backend/internal/backend"
	"github.com/plume-ai/backend/internal/domain"
)

const planMinTopicChars = 10

var planTypes = map[string]bool{
	"academic":      true,
	"argumentative": true,
	"analytical":    true,
	"comparative":   true,
}

var planStructures = map[string]bool{
	"classic":          true,
	"thematic":         true,
	"chronological":    true,
	"problem-solution": true,
}

// PlanSections holds the three canonical parts of an essay plan.
type PlanSections struct {
	Introduction string `json:"introduction"`
	Development  string `json:"development"`
	Conclusion   string `json:"conclusion"`
}

// PlanEnvelope is the result of one plan task.
type PlanEnvelope struct {
	Topic     string       `json:"topic"`
	PlanType  string       `json:"plan_type"`
	Structure string       `json:"structure"`
	Sections  PlanSections `json:"sections"`
	FullPlan  string       `json:"full_plan"`
	WordCount int          `json:"word_count"`
	Backend   string       `json:"backend"`
}

// Plan generates a three-part essay plan for a topic.
func (o *Orchestrator) Plan(ctx context.Context, topic, planType, structure string) (*PlanEnvelope, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, errInputEmpty()
	}
	if len(topic) < planMinTopicChars {
		return nil, errInputTooShort(planMinTopicChars)
	}
	if !planTypes[planType] {
		planType = "academic"
	}
	if !planStructures[structure] {
		structure = "classic"
	}

	ctx, cancel := o.withDeadline(ctx)
	defer cancel()

	prompt := func() string {
		examples := o.examples.Select("plan", "", "")
		return domain.BuildPlanPrompt(topic, planType, structure, examples)
	}
	params := backend.Params{
		"temperature": 0.5,
		"max_length":  800,
	}

	res, err := o.runChain(ctx, []genStep{
		{backendID: backend.IDOllama, prompt: prompt, params: params},
		{backendID: backend.IDSeq2Seq, prompt: prompt, params: params},
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, errTimeout()
		}
		return nil, convert(err)
	}

	fullPlan := stripPreamble(res.Text)
	sections := parsePlanSections(fullPlan)

	return &PlanEnvelope{
		Topic:     topic,
		PlanType:  planType,
		Structure: structure,
		Sections:  sections,
		FullPlan:  fullPlan,
		WordCount: wordCount(fullPlan),
		Backend:   res.Backend,
	}, nil
}

// section headings the parser recognizes: Roman numerals or bare French
// labels at the start of a line.
var headingLine = regexp.MustCompile(`(?mi)^\s*(I{1,3}V?|IV)\s*[.)-]|^\s*(introduction|développement|developpement|conclusion)\b`)

// parsePlanSections splits model output into the three canonical parts. If
// no heading is found, the text is split in three length-proportional parts.
func parsePlanSections(text string) PlanSections {
	lines := strings.Split(text, "\n")

	sections := make([]string, 0, 3)
	var current []string
	started := false
	for _, line := range lines {
		if headingLine.MatchString(line) {
			if started && len(current) > 0 {
				sections = append(sections, strings.TrimSpace(strings.Join(current, "\n")))
			}
			started = true
			current = []string{line}
			continue
		}
		if started {
			current = append(current, line)
		}
	}
	if started && len(current) > 0 {
		sections = append(sections, strings.TrimSpace(strings.Join(current, "\n")))
	}

	if len(sections) >= 3 {
		return PlanSections{
			Introduction: sections[0],
			Development:  strings.Join(sections[1:len(sections)-1], "\n\n"),
			Conclusion:   sections[len(sections)-1],
		}
	}

	return proportionalSplit(text)
}

// proportionalSplit is the parsing fallback: a 3-way split at word
// boundaries, weighted 25/50/25.
func proportionalSplit(text string) PlanSections {
	words := strings.Fields(text)
	n := len(words)
	if n == 0 {
		return PlanSections{}
	}

	introEnd := n / 4
	devEnd := introEnd + n/2
	if introEnd == 0 {
		introEnd = 1
	}
	if devEnd <= introEnd {
		devEnd = introEnd
	}
	if devEnd > n {
		devEnd = n
	}

	return PlanSections{
		Introduction: strings.Join(words[:introEnd], " "),
		Development:  strings.Join(words[introEnd:devEnd], " "),
		Conclusion:   strings.Join(words[devEnd:], " "),
	}
}
