package catalog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/wolfman30/jewelry-concierge/internal/preferences"
)

const maxAlternatives = 3

// MatchResult is the outcome of fitting a preference record to the catalog.
// On a match Product is the single piece to recommend. Otherwise Unmet names
// the constraints no available piece could satisfy together and Reason
// phrases that combination for the shopper.
type MatchResult struct {
	Matched      bool                `json:"matched"`
	Product      *Product            `json:"product,omitempty"`
	Unmet        []preferences.Field `json:"unmet,omitempty"`
	Reason       string              `json:"reason,omitempty"`
	Alternatives []Product           `json:"alternatives,omitempty"`
}

// constrainedFields are the preference fields that restrict which products
// fit, in the order they are reported.
var constrainedFields = []preferences.Field{
	preferences.FieldCategory,
	preferences.FieldMetalType,
	preferences.FieldStoneType,
	preferences.FieldGender,
	preferences.FieldBudgetRange,
}

type constraint struct {
	field preferences.Field
	value string
	fits  func(Product) bool
}

// RuleMatcher decides matches with deterministic string rules.
type RuleMatcher struct{}

// NewRuleMatcher returns a RuleMatcher.
func NewRuleMatcher() *RuleMatcher {
	return &RuleMatcher{}
}

// Match looks for one in-stock product satisfying every set constraint of
// rec. Ties go to the cheapest product.
func (m *RuleMatcher) Match(rec preferences.Record, products []Product) MatchResult {
	cons := constraintsFor(rec)

	type scored struct {
		product Product
		unmet   []preferences.Field
	}
	var candidates []scored
	for _, p := range products {
		if !p.InStock {
			continue
		}
		var unmet []preferences.Field
		for _, c := range cons {
			if !c.fits(p) {
				unmet = append(unmet, c.field)
			}
		}
		candidates = append(candidates, scored{product: p, unmet: unmet})
	}

	if len(candidates) == 0 {
		fields := make([]preferences.Field, 0, len(cons))
		for _, c := range cons {
			fields = append(fields, c.field)
		}
		return MatchResult{
			Unmet:  fields,
			Reason: "no pieces are available in the collection right now",
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if len(a.unmet) != len(b.unmet) {
			return len(a.unmet) < len(b.unmet)
		}
		if a.product.PriceCents != b.product.PriceCents {
			return a.product.PriceCents < b.product.PriceCents
		}
		return a.product.ID < b.product.ID
	})

	best := candidates[0]
	if len(best.unmet) == 0 {
		p := best.product
		return MatchResult{Matched: true, Product: &p}
	}

	// Collect the unmet fields across every equally-close candidate so the
	// reason covers the conflicting combination, not one arbitrary miss.
	seen := map[preferences.Field]bool{}
	for _, c := range candidates {
		if len(c.unmet) != len(best.unmet) {
			break
		}
		for _, f := range c.unmet {
			seen[f] = true
		}
	}
	var unmet []preferences.Field
	for _, f := range constrainedFields {
		if seen[f] {
			unmet = append(unmet, f)
		}
	}

	alts := make([]Product, 0, maxAlternatives)
	for _, c := range candidates {
		if len(alts) == maxAlternatives {
			break
		}
		alts = append(alts, c.product)
	}

	return MatchResult{
		Unmet:        unmet,
		Reason:       describeNoMatch(rec, unmet),
		Alternatives: alts,
	}
}

func constraintsFor(rec preferences.Record) []constraint {
	var out []constraint
	for _, field := range constrainedFields {
		if !rec.IsSet(field) {
			continue
		}
		value := strings.TrimSpace(rec.Get(field))
		var fits func(Product) bool
		switch field {
		case preferences.FieldCategory:
			fits = func(p Product) bool { return categoryFits(value, p) }
		case preferences.FieldMetalType:
			fits = func(p Product) bool { return p.Metal != "" && phraseMatch(value, p.Metal) }
		case preferences.FieldStoneType:
			fits = func(p Product) bool { return stoneFits(value, p.Stones) }
		case preferences.FieldGender:
			g := preferences.NormalizeGender(value)
			if g == "" {
				continue
			}
			fits = func(p Product) bool {
				pg := strings.ToLower(strings.TrimSpace(p.Gender))
				return pg == "" || pg == GenderUnisex || pg == g
			}
		case preferences.FieldBudgetRange:
			ceiling, ok := rec.Budget()
			if !ok {
				continue
			}
			limit := int64(ceiling * 100)
			fits = func(p Product) bool { return p.PriceCents <= limit }
		}
		out = append(out, constraint{field: field, value: value, fits: fits})
	}
	return out
}

// categoryFits requires every word of want to appear in the product's
// category or name, with at least one landing on the category itself.
func categoryFits(want string, p Product) bool {
	if !phraseMatch(want, p.Category+" "+p.Name) {
		return false
	}
	for _, w := range tokens(want) {
		for _, c := range tokens(p.Category) {
			if tokenMatch(w, c) {
				return true
			}
		}
	}
	return false
}

var noStoneTerms = map[string]bool{
	"none":        true,
	"no":          true,
	"no stone":    true,
	"no gemstone": true,
	"plain":       true,
	"nothing":     true,
}

func stoneFits(want string, stones []string) bool {
	if noStoneTerms[strings.Join(tokens(want), " ")] {
		return len(stones) == 0
	}
	for _, s := range stones {
		if Equivalent(want, s) {
			return true
		}
		if bare := withoutColors(want, s); bare != "" && Equivalent(bare, s) {
			return true
		}
	}
	return false
}

// withoutColors drops the color words the synonym table ties to stone, so
// "blue sapphire" compares as "sapphire". It returns "" when nothing
// was dropped or nothing is left.
func withoutColors(want, stone string) string {
	var colors []string
	for _, pair := range Synonyms {
		if len(tokens(pair[0])) == 1 && sameTerm(pair[1], stone) {
			colors = append(colors, tokens(pair[0])[0])
		}
	}
	if len(colors) == 0 {
		return ""
	}
	words := tokens(want)
	kept := make([]string, 0, len(words))
	for _, w := range words {
		color := false
		for _, c := range colors {
			if w == c {
				color = true
				break
			}
		}
		if !color {
			kept = append(kept, w)
		}
	}
	if len(kept) == 0 || len(kept) == len(words) {
		return ""
	}
	return strings.Join(kept, " ")
}

// describeNoMatch phrases the unmet combination as an opening toward other
// pieces, e.g. "no rings that combine rose gold with ruby".
func describeNoMatch(rec preferences.Record, unmet []preferences.Field) string {
	noun := "pieces"
	if rec.IsSet(preferences.FieldCategory) {
		noun = strings.TrimSpace(rec.Category)
	}

	var parts []string
	categoryUnmet := false
	for _, f := range unmet {
		if f == preferences.FieldCategory {
			categoryUnmet = true
			continue
		}
		parts = append(parts, phraseFor(rec, f))
	}

	switch {
	case categoryUnmet && len(parts) == 0:
		return fmt.Sprintf("no %s in the collection right now", noun)
	case len(parts) == 0:
		return "no single piece that fits every preference"
	case len(parts) == 1:
		return fmt.Sprintf("no %s %s", noun, singleQualifier(rec, unmetNonCategory(unmet)))
	}

	joined := strings.Join(parts[:len(parts)-1], ", ")
	if len(parts) == 2 {
		joined += " with " + parts[len(parts)-1]
	} else {
		joined += " and " + parts[len(parts)-1]
	}
	return fmt.Sprintf("no %s that combine %s", noun, joined)
}

func unmetNonCategory(unmet []preferences.Field) preferences.Field {
	for _, f := range unmet {
		if f != preferences.FieldCategory {
			return f
		}
	}
	return ""
}

func phraseFor(rec preferences.Record, f preferences.Field) string {
	value := strings.TrimSpace(rec.Get(f))
	switch f {
	case preferences.FieldGender:
		if preferences.NormalizeGender(value) == preferences.GenderMale {
			return "a men's design"
		}
		return "a women's design"
	case preferences.FieldBudgetRange:
		if ceiling, ok := rec.Budget(); ok {
			return "a price under " + FormatCents(int64(ceiling*100))
		}
	}
	return value
}

func singleQualifier(rec preferences.Record, f preferences.Field) string {
	value := strings.TrimSpace(rec.Get(f))
	switch f {
	case preferences.FieldMetalType:
		return "in " + value
	case preferences.FieldStoneType:
		return "with " + value
	case preferences.FieldGender:
		if preferences.NormalizeGender(value) == preferences.GenderMale {
			return "designed for men"
		}
		return "designed for women"
	case preferences.FieldBudgetRange:
		if ceiling, ok := rec.Budget(); ok {
			return "under " + FormatCents(int64(ceiling*100))
		}
	}
	return "matching " + value
}
