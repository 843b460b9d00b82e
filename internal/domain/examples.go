package domain

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/plume-ai/backend/pkg/logger"
)

const (
	maxExamplesPerKey  = 10
	maxExamplesPerPick = 3
)

// Example is a few-shot exemplar. Fields are task-specific: QA examples use
// Question/Context/Answer, reformulation uses Original/Reformulated, and so on.
type Example struct {
	Question     string `json:"question,omitempty"`
	Context      string `json:"context,omitempty"`
	Answer       string `json:"answer,omitempty"`
	Original     string `json:"original,omitempty"`
	Reformulated string `json:"reformulated,omitempty"`
	Text         string `json:"text,omitempty"`
	Summary      string `json:"summary,omitempty"`
	Topic        string `json:"topic,omitempty"`
	Plan         string `json:"plan,omitempty"`
}

// ExampleStore is the persistent few-shot corpus, keyed by
// <task>[_<style>][_<domain>] and bounded to 10 examples per key.
type ExampleStore struct {
	mu       sync.RWMutex
	path     string
	examples map[string][]Example
}

func NewExampleStore(path string) (*ExampleStore, error) {
	s := &ExampleStore{
		path:     path,
		examples: make(map[string][]Example),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	if len(s.examples) == 0 {
		s.seed()
	}
	return s, nil
}

func exampleKey(task, style, domain string) string {
	key := task
	if style != "" {
		key += "_" + style
	}
	if domain != "" {
		key += "_" + domain
	}
	return key
}

// Add appends an example under (task, style?, domain?), evicting the oldest
// example when the key already holds ten.
func (s *ExampleStore) Add(task, style, domain string, ex Example) error {
	s.mu.Lock()
	key := exampleKey(task, style, domain)
	list := append(s.examples[key], ex)
	if len(list) > maxExamplesPerKey {
		list = list[len(list)-maxExamplesPerKey:]
	}
	s.examples[key] = list
	s.mu.Unlock()

	return s.Save()
}

// Select returns up to 3 examples for (task, style?, domain?), falling back
// from the exact key to task+style, task+domain, then task alone. It returns
// nil only when the task has no examples at all.
func (s *ExampleStore) Select(task, style, domain string) []Example {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, key := range []string{
		exampleKey(task, style, domain),
		exampleKey(task, style, ""),
		exampleKey(task, "", domain),
		exampleKey(task, "", ""),
	} {
		if list := s.examples[key]; len(list) > 0 {
			n := len(list)
			if n > maxExamplesPerPick {
				n = maxExamplesPerPick
			}
			out := make([]Example, n)
			copy(out, list[len(list)-n:])
			return out
		}
	}
	return nil
}

// Count reports how many examples are stored under the exact key.
func (s *ExampleStore) Count(task, style, domain string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.examples[exampleKey(task, style, domain)])
}

func (s *ExampleStore) load() error {
	if s.path == "" {
		return nil
	}
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read example corpus: %w", err)
	}
	if err := json.Unmarshal(data, &s.examples); err != nil {
		return fmt.Errorf("failed to parse example corpus: %w", err)
	}
	logger.Info("few-shot corpus loaded",
		zap.String("path", s.path),
		zap.Int("keys", len(s.examples)))
	return nil
}

// Save writes the corpus to disk. Best-effort when no path is configured.
func (s *ExampleStore) Save() error {
	if s.path == "" {
		return nil
	}
	s.mu.RLock()
	data, err := json.MarshalIndent(s.examples, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o644)
}

// seed installs a minimal starter corpus so prompts always carry at least
// one exemplar per task type.
func (s *ExampleStore) seed() {
	s.examples[exampleKey("answer", "", "")] = []Example{
		{
			Question: "Qu'est-ce que la gravité ?",
			Context:  "La gravité est la force d'attraction entre les corps massifs.",
			Answer:   "La gravité est la force d'attraction qui s'exerce entre les corps en fonction de leur masse.",
		},
	}
	s.examples[exampleKey("answer", "", Sciences)] = []Example{
		{
			Question: "Quel est le rôle du noyau cellulaire ?",
			Context:  "Le noyau contient le matériel génétique de la cellule.",
			Answer:   "Le noyau abrite l'ADN et contrôle l'activité de la cellule.",
		},
	}
	s.examples[exampleKey("reformulate", "academic", "")] = []Example{
		{
			Original:     "Les plantes ont besoin de soleil pour pousser.",
			Reformulated: "La croissance des végétaux est conditionnée par leur exposition au rayonnement solaire.",
		},
	}
	s.examples[exampleKey("reformulate", "paraphrase", "")] = []Example{
		{
			Original:     "Internet a changé la façon dont nous communiquons.",
			Reformulated: "Nos modes de communication ont été bouleversés par l'arrivée d'internet.",
		},
	}
	s.examples[exampleKey("reformulate", "simplification", "")] = []Example{
		{
			Original:     "L'urbanisation croissante engendre des problématiques environnementales majeures.",
			Reformulated: "La croissance des villes crée de gros problèmes pour l'environnement.",
		},
	}
	s.examples[exampleKey("summarize", "", "")] = []Example{
		{
			Text:    "La Révolution française, commencée en 1789, a profondément transformé la société. La monarchie absolue a été abolie et les privilèges supprimés. La Déclaration des droits de l'homme a posé les bases d'une société nouvelle.",
			Summary: "La Révolution française de 1789 a aboli la monarchie absolue et fondé une société nouvelle sur les droits de l'homme.",
		},
	}
	s.examples[exampleKey("plan", "", "")] = []Example{
		{
			Topic: "Les réseaux sociaux et la démocratie",
			Plan:  "I. Introduction\nII. Développement\nIII. Conclusion",
		},
	}
}
