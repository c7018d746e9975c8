package classifier

import (
	_ "embed"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/pbaille/hot/internal/domain"
	"github.com/pbaille/hot/internal/textnorm"
	"gopkg.in/yaml.v3"
)

//go:embed lexicon.yaml
var defaultLexicon []byte

// Reasons returned by Classify when no single category wins
const (
	ReasonNoKeywords = "cannot auto-classify"
	ReasonConflict   = "category conflict"
)

// MaxScore caps keyword confidence below the library-backed scores
const MaxScore = 0.8

var categoryReasons = map[domain.Category]string{
	domain.CategoryHuman:          "involves people, training and human development",
	domain.CategoryOrganizational: "related to processes, policies and organizational structure",
	domain.CategoryTechnical:      "involves technology, systems and technical infrastructure",
}

// Lexicon maps each category to its keywords
type Lexicon map[domain.Category][]string

// DefaultLexicon returns the embedded lexicon
func DefaultLexicon() (Lexicon, error) {
	return ParseLexicon(defaultLexicon)
}

// LoadLexicon reads a YAML lexicon from disk
func LoadLexicon(path string) (Lexicon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lexicon: %w", err)
	}
	return ParseLexicon(data)
}

// ParseLexicon decodes YAML of the form {H: [...], O: [...], T: [...]}.
// Keywords are folded and deduplicated per category.
func ParseLexicon(data []byte) (Lexicon, error) {
	var raw map[string][]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse lexicon: %w", err)
	}

	lex := make(Lexicon, len(domain.Categories))
	for name, words := range raw {
		cat, err := domain.ParseCategory(name)
		if err != nil {
			return nil, fmt.Errorf("parse lexicon: %w", err)
		}
		seen := make(map[string]bool, len(words))
		for _, w := range words {
			w = textnorm.Fold(w)
			if w == "" || seen[w] {
				continue
			}
			seen[w] = true
			lex[cat] = append(lex[cat], w)
		}
	}

	if len(lex) == 0 {
		return nil, fmt.Errorf("parse lexicon: no keywords")
	}
	return lex, nil
}

// Classifier scores text against a static lexicon. Safe for concurrent use.
type Classifier struct {
	lexicon Lexicon
}

// New creates a Classifier over lex
func New(lex Lexicon) *Classifier {
	return &Classifier{lexicon: lex}
}

// NewDefault creates a Classifier over the embedded lexicon
func NewDefault() (*Classifier, error) {
	lex, err := DefaultLexicon()
	if err != nil {
		return nil, err
	}
	return New(lex), nil
}

// Scores counts the keywords of each category found in text
func (c *Classifier) Scores(text string) map[domain.Category]int {
	folded := textnorm.Fold(text)
	scores := make(map[domain.Category]int, len(domain.Categories))
	for _, cat := range domain.Categories {
		for _, kw := range c.lexicon[cat] {
			if strings.Contains(folded, kw) {
				scores[cat]++
			}
		}
	}
	return scores
}

// Classify returns the single best category, or no category when nothing
// matched or the best score is shared.
func (c *Classifier) Classify(text string) domain.Suggestion {
	scores := c.Scores(text)

	best := 0
	var winners []domain.Category
	for _, cat := range domain.Categories {
		switch s := scores[cat]; {
		case s > best:
			best = s
			winners = []domain.Category{cat}
		case s == best && s > 0:
			winners = append(winners, cat)
		}
	}

	if best == 0 {
		return domain.Suggestion{Reason: ReasonNoKeywords, Source: domain.SourceNone}
	}
	if len(winners) > 1 {
		return domain.Suggestion{Reason: ReasonConflict, Source: domain.SourceNone}
	}

	cat := winners[0]
	denom := math.Max(1, 0.5*float64(textnorm.WordCount(textnorm.Fold(text))))
	return domain.Suggestion{
		Category: cat,
		Reason:   categoryReasons[cat],
		Score:    math.Min(float64(best)/denom, MaxScore),
		Source:   domain.SourceKeyword,
	}
}

// Keywords returns the sorted keywords of a category
func (c *Classifier) Keywords(cat domain.Category) []string {
	out := append([]string(nil), c.lexicon[cat]...)
	sort.Strings(out)
	return out
}
