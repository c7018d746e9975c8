package suggest

import (
	"context"
	"strings"
	"testing"

	"github.com/pbaille/hot/internal/domain"
	"github.com/pbaille/hot/internal/store"
	"pgregory.net/rapid"
)

var (
	wordGen     = rapid.StringMatching(`[a-zà-ú]{1,10}`)
	categoryGen = rapid.SampledFrom(domain.Categories)
)

// Confirming the same text N times yields ReuseCount N and the last category.
func TestProperty_ConfirmIsCounted(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		e := newTestEngine(t, store.NewMemory())
		ctx := context.Background()

		text := strings.Join(rapid.SliceOfN(wordGen, 1, 5).Draw(rt, "words"), " ")
		cats := rapid.SliceOfN(categoryGen, 1, 10).Draw(rt, "cats")

		var entry *domain.LibraryEntry
		for _, c := range cats {
			var err error
			entry, err = e.Confirm(ctx, text, c)
			if err != nil {
				rt.Fatalf("confirm: %v", err)
			}
		}
		if entry.ReuseCount != len(cats) {
			rt.Fatalf("reuse count %d, want %d", entry.ReuseCount, len(cats))
		}
		if entry.Category != cats[len(cats)-1] {
			rt.Fatalf("category %s, want %s", entry.Category, cats[len(cats)-1])
		}
	})
}

// Case and whitespace variants of a confirmed text all hit the exact path.
func TestProperty_NormalizationEquivalence(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		e := newTestEngine(t, store.NewMemory())
		ctx := context.Background()

		words := rapid.SliceOfN(wordGen, 1, 5).Draw(rt, "words")
		cat := categoryGen.Draw(rt, "cat")

		if _, err := e.Confirm(ctx, strings.Join(words, " "), cat); err != nil {
			rt.Fatalf("confirm: %v", err)
		}

		sep := rapid.SampledFrom([]string{" ", "  ", "\t", " \n "}).Draw(rt, "sep")
		variant := "  " + strings.ToUpper(strings.Join(words, sep)) + " "

		s := e.Suggest(ctx, variant)
		if s.Source != domain.SourceExact || s.Category != cat || s.Score != ExactScore {
			rt.Fatalf("variant %q: got %+v", variant, s)
		}
	})
}

// A text with a tied keyword score never gets a category unless the library knows it.
func TestProperty_ConflictNeverPicksCategory(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		e := newTestEngine(t, store.NewMemory())
		h := rapid.SampledFrom([]string{"treinamento", "palestra", "workshop"}).Draw(rt, "h")
		o := rapid.SampledFrom([]string{"regulamento", "hierarquia", "conformidade"}).Draw(rt, "o")

		s := e.Suggest(context.Background(), h+" "+o)
		if s.Category != domain.CategoryNone || s.Score != 0 {
			rt.Fatalf("%s %s: got %+v", h, o, s)
		}
	})
}
