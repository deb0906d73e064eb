// Package preferences models what a shopper has told the concierge so far and
// decides which discovery question to ask next.
package preferences

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Field names one shopping attribute of a Record.
type Field string

const (
	FieldOccasion              Field = "occasion"
	FieldPurchaseType          Field = "purchase_type"
	FieldRecipientRelationship Field = "recipient_relationship"
	FieldGender                Field = "gender"
	FieldCategory              Field = "category"
	FieldMetalType             Field = "metal_type"
	FieldStoneType             Field = "stone_type"
	FieldBudgetRange           Field = "budget_range"
)

// AllFields lists every attribute in the order the extractor visits them.
var AllFields = []Field{
	FieldOccasion,
	FieldPurchaseType,
	FieldRecipientRelationship,
	FieldGender,
	FieldCategory,
	FieldMetalType,
	FieldStoneType,
	FieldBudgetRange,
}

// Label is the shopper-facing wording of a field.
func (f Field) Label() string {
	switch f {
	case FieldPurchaseType:
		return "purchase type"
	case FieldRecipientRelationship:
		return "recipient"
	case FieldMetalType:
		return "metal"
	case FieldStoneType:
		return "stone"
	case FieldBudgetRange:
		return "budget"
	default:
		return string(f)
	}
}

const (
	PurchaseSelf = "self_purchase"
	PurchaseGift = "gift_purchase"

	GenderMale   = "male"
	GenderFemale = "female"
)

// Record is the per-session snapshot of stated shopping preferences. Every
// field is optional; a field counts as set once it holds non-blank text.
type Record struct {
	Occasion              string    `json:"occasion"`
	PurchaseType          string    `json:"purchase_type"`
	RecipientRelationship string    `json:"recipient_relationship"`
	Gender                string    `json:"gender"`
	Category              string    `json:"category"`
	MetalType             string    `json:"metal_type"`
	StoneType             string    `json:"stone_type"`
	BudgetRange           string    `json:"budget_range"`
	UpdatedAt             time.Time `json:"updated_at,omitempty"`
}

// Get returns the raw value stored for field.
func (r Record) Get(field Field) string {
	switch field {
	case FieldOccasion:
		return r.Occasion
	case FieldPurchaseType:
		return r.PurchaseType
	case FieldRecipientRelationship:
		return r.RecipientRelationship
	case FieldGender:
		return r.Gender
	case FieldCategory:
		return r.Category
	case FieldMetalType:
		return r.MetalType
	case FieldStoneType:
		return r.StoneType
	case FieldBudgetRange:
		return r.BudgetRange
	}
	return ""
}

// IsSet reports whether field holds a non-blank value.
func (r Record) IsSet(field Field) bool {
	return strings.TrimSpace(r.Get(field)) != ""
}

// IsGift reports whether the shopper is buying for someone else.
func (r Record) IsGift() bool {
	return strings.TrimSpace(r.PurchaseType) == PurchaseGift
}

// IsSelfPurchase reports whether the shopper is buying for themselves.
func (r Record) IsSelfPurchase() bool {
	return strings.TrimSpace(r.PurchaseType) == PurchaseSelf
}

// Apply stores value for field and reports whether the record changed.
// Blank values are ignored so a field never reverts to unset; a newer
// explicit value replaces an older one.
func (r *Record) Apply(field Field, value string) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return false
	}
	if strings.EqualFold(strings.TrimSpace(r.Get(field)), value) {
		return false
	}

	switch field {
	case FieldOccasion:
		r.Occasion = value
	case FieldPurchaseType:
		r.PurchaseType = value
	case FieldRecipientRelationship:
		r.RecipientRelationship = value
	case FieldGender:
		r.Gender = value
	case FieldCategory:
		r.Category = value
	case FieldMetalType:
		r.MetalType = value
	case FieldStoneType:
		r.StoneType = value
	case FieldBudgetRange:
		r.BudgetRange = value
	default:
		return false
	}
	r.UpdatedAt = time.Now().UTC()
	return true
}

var budgetNumberRE = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?\s*[kK]?`)

// Budget parses the budget ceiling out of BudgetRange. Ranges and phrases
// like "under 2k" resolve to the largest number mentioned.
func (r Record) Budget() (float64, bool) {
	return ParseBudget(r.BudgetRange)
}

// ParseBudget extracts the largest amount mentioned in text.
func ParseBudget(text string) (float64, bool) {
	matches := budgetNumberRE.FindAllString(text, -1)
	if len(matches) == 0 {
		return 0, false
	}
	best := 0.0
	found := false
	for _, m := range matches {
		m = strings.TrimSpace(m)
		multiplier := 1.0
		if strings.HasSuffix(m, "k") || strings.HasSuffix(m, "K") {
			multiplier = 1000
			m = strings.TrimSpace(m[:len(m)-1])
		}
		v, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", ""), 64)
		if err != nil {
			continue
		}
		v *= multiplier
		if !found || v > best {
			best = v
			found = true
		}
	}
	if !found || best <= 0 {
		return 0, false
	}
	return best, true
}

// Summary renders the set fields for prompt context, e.g.
// "purchase type: gift_purchase; recipient: wife; category: rings".
func (r Record) Summary() string {
	var parts []string
	for _, f := range AllFields {
		if r.IsSet(f) {
			parts = append(parts, fmt.Sprintf("%s: %s", f.Label(), strings.TrimSpace(r.Get(f))))
		}
	}
	if len(parts) == 0 {
		return "nothing yet"
	}
	return strings.Join(parts, "; ")
}
