package catalog

import (
	"strings"
	"testing"

	"github.com/wolfman30/jewelry-concierge/internal/preferences"
)

func sampleProducts() []Product {
	return []Product{
		{ID: "ring-rose-diamond", Name: "Blush Halo Ring", Category: "Rings", Metal: "Rose Gold", Stones: []string{"Diamond"}, Gender: GenderFemale, PriceCents: 145000, InStock: true},
		{ID: "ring-yellow-ruby", Name: "Scarlet Solitaire", Category: "Rings", Metal: "Yellow Gold", Stones: []string{"Ruby"}, Gender: GenderFemale, PriceCents: 189000, InStock: true},
		{ID: "ring-white-emerald", Name: "Verdant Band", Category: "Rings", Metal: "White Gold", Stones: []string{"Emerald", "Diamond"}, Gender: GenderUnisex, PriceCents: 99000, InStock: true},
		{ID: "neck-silver-aqua", Name: "Tide Pendant", Category: "Necklaces", Metal: "Sterling Silver", Stones: []string{"Aquamarine"}, Gender: GenderFemale, PriceCents: 32000, InStock: true},
		{ID: "cuff-platinum", Name: "Atlas Cuff", Category: "Bracelets", Metal: "Platinum", Gender: GenderMale, PriceCents: 210000, InStock: true},
		{ID: "ring-rose-ruby-sold", Name: "Ember Ring", Category: "Rings", Metal: "Rose Gold", Stones: []string{"Ruby"}, Gender: GenderFemale, PriceCents: 120000, InStock: false},
	}
}

func TestRuleMatcher_RoseGoldRubyCombination(t *testing.T) {
	rec := preferences.Record{Category: "rings", MetalType: "rose gold", StoneType: "ruby"}
	res := NewRuleMatcher().Match(rec, sampleProducts())

	if res.Matched {
		t.Fatalf("expected no match, got %+v", res.Product)
	}
	if res.Reason != "no rings that combine rose gold with ruby" {
		t.Fatalf("unexpected reason %q", res.Reason)
	}
	if len(res.Unmet) != 2 || res.Unmet[0] != preferences.FieldMetalType || res.Unmet[1] != preferences.FieldStoneType {
		t.Fatalf("unexpected unmet fields %v", res.Unmet)
	}
	if len(res.Alternatives) == 0 || len(res.Alternatives) > maxAlternatives {
		t.Fatalf("expected 1-%d alternatives, got %d", maxAlternatives, len(res.Alternatives))
	}
	for _, alt := range res.Alternatives {
		if alt.ID == "ring-rose-ruby-sold" {
			t.Fatal("out-of-stock product offered as alternative")
		}
	}
	if strings.Contains(strings.ToLower(res.Reason), "don't have") {
		t.Fatal("reason must not be phrased as a flat refusal")
	}
}

func TestRuleMatcher_SingleUnmetField(t *testing.T) {
	rec := preferences.Record{Category: "necklaces", MetalType: "silver", BudgetRange: "300"}
	res := NewRuleMatcher().Match(rec, sampleProducts())

	if res.Matched {
		t.Fatal("expected no match when only the budget fails")
	}
	if len(res.Unmet) != 1 || res.Unmet[0] != preferences.FieldBudgetRange {
		t.Fatalf("expected budget unmet, got %v", res.Unmet)
	}
	if res.Reason != "no necklaces under $300" {
		t.Fatalf("unexpected reason %q", res.Reason)
	}
	if res.Alternatives[0].ID != "neck-silver-aqua" {
		t.Fatalf("expected closest alternative first, got %s", res.Alternatives[0].ID)
	}
}

func TestRuleMatcher_MatchesAllConstraints(t *testing.T) {
	tests := []struct {
		name string
		rec  preferences.Record
		want string
	}{
		{
			name: "synonym color to stone",
			rec:  preferences.Record{Category: "ring", StoneType: "green"},
			want: "ring-white-emerald",
		},
		{
			name: "typo and plural tolerant",
			rec:  preferences.Record{Category: "necklaes", MetalType: "silver", StoneType: "blue"},
			want: "neck-silver-aqua",
		},
		{
			name: "unisex fits men",
			rec:  preferences.Record{Category: "rings", Gender: "male"},
			want: "ring-white-emerald",
		},
		{
			name: "cheapest wins ties",
			rec:  preferences.Record{Category: "rings", MetalType: "gold"},
			want: "ring-white-emerald",
		},
		{
			name: "budget ceiling inclusive",
			rec:  preferences.Record{Category: "rings", MetalType: "rose gold", BudgetRange: "$1,450"},
			want: "ring-rose-diamond",
		},
		{
			name: "no stone requested",
			rec:  preferences.Record{StoneType: "none", Gender: "men"},
			want: "cuff-platinum",
		},
		{
			name: "non constraining fields ignored",
			rec:  preferences.Record{Occasion: "birthday", PurchaseType: preferences.PurchaseGift, RecipientRelationship: "sister", Category: "bracelets"},
			want: "cuff-platinum",
		},
	}
	m := NewRuleMatcher()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := m.Match(tt.rec, sampleProducts())
			if !res.Matched {
				t.Fatalf("expected match, got reason %q unmet %v", res.Reason, res.Unmet)
			}
			if res.Product.ID != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, res.Product.ID)
			}
		})
	}
}

func TestRuleMatcher_GenderExcludes(t *testing.T) {
	rec := preferences.Record{Category: "bracelets", Gender: "female"}
	res := NewRuleMatcher().Match(rec, sampleProducts())
	if res.Matched {
		t.Fatal("male-only cuff must not match a women's request")
	}
	if res.Reason != "no bracelets designed for women" {
		t.Fatalf("unexpected reason %q", res.Reason)
	}
}

func TestRuleMatcher_UnknownCategory(t *testing.T) {
	rec := preferences.Record{Category: "watches"}
	res := NewRuleMatcher().Match(rec, sampleProducts())
	if res.Matched {
		t.Fatal("expected no match")
	}
	if res.Reason != "no watches in the collection right now" {
		t.Fatalf("unexpected reason %q", res.Reason)
	}
}

func TestRuleMatcher_EmptyCatalog(t *testing.T) {
	res := NewRuleMatcher().Match(preferences.Record{Category: "rings"}, nil)
	if res.Matched {
		t.Fatal("expected no match")
	}
	if len(res.Unmet) != 1 || res.Unmet[0] != preferences.FieldCategory {
		t.Fatalf("unexpected unmet %v", res.Unmet)
	}
}

func TestRuleMatcher_ColorQualifiedStone(t *testing.T) {
	products := []Product{
		{ID: "ring-sapphire", Name: "Cobalt Ring", Category: "Rings", Metal: "Platinum", Stones: []string{"Sapphire"}, PriceCents: 150000, InStock: true},
		{ID: "ring-emerald", Name: "Meadow Ring", Category: "Rings", Metal: "Yellow Gold", Stones: []string{"Emerald"}, PriceCents: 180000, InStock: true},
	}
	tests := []struct {
		stone string
		want  string
	}{
		{"sapphire", "ring-sapphire"},
		{"blue", "ring-sapphire"},
		{"blue sapphire", "ring-sapphire"},
		{"Blue Sapphires", "ring-sapphire"},
		{"green emerald", "ring-emerald"},
	}
	for _, tt := range tests {
		res := NewRuleMatcher().Match(preferences.Record{Category: "rings", StoneType: tt.stone}, products)
		if !res.Matched || res.Product.ID != tt.want {
			t.Errorf("stone %q: expected %s, got matched=%v reason=%q", tt.stone, tt.want, res.Matched, res.Reason)
		}
	}

	for _, stone := range []string{"pink sapphire", "green sapphire"} {
		res := NewRuleMatcher().Match(preferences.Record{Category: "rings", StoneType: stone}, products[:1])
		if res.Matched {
			t.Errorf("stone %q must not match a plain sapphire", stone)
		}
	}

	pink := []Product{{ID: "ring-pink", Name: "Petal Ring", Category: "Rings", Stones: []string{"Pink Sapphire"}, PriceCents: 90000, InStock: true}}
	res := NewRuleMatcher().Match(preferences.Record{Category: "rings", StoneType: "pink sapphire"}, pink)
	if !res.Matched {
		t.Fatalf("pink sapphire should match itself, reason %q", res.Reason)
	}
}
