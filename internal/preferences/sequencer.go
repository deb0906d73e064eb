package preferences

// Question pairs a field with the canned prompt that asks for it.
type Question struct {
	Field Field  `json:"field"`
	Text  string `json:"text"`
}

// DiscoveryOrder is the fixed priority in which unset fields are asked about.
var DiscoveryOrder = []Field{
	FieldPurchaseType,
	FieldGender,
	FieldCategory,
	FieldMetalType,
	FieldStoneType,
	FieldBudgetRange,
}

const (
	genderQuestionSelf = "Lovely! Are you shopping for men's or women's jewelry today?"
	genderQuestionGift = "How thoughtful! Is the lucky recipient a man or a woman?"
)

var cannedQuestions = map[Field]string{
	FieldPurchaseType:          "Are you treating yourself today, or shopping for a gift for someone special?",
	FieldRecipientRelationship: "Who is the gift for? Knowing your relationship helps me suggest the right piece.",
	FieldCategory:              "What kind of piece do you have in mind: rings, necklaces, earrings, bracelets, or something else?",
	FieldMetalType:             "Do you have a favorite metal, such as yellow gold, white gold, rose gold, silver, or platinum?",
	FieldStoneType:             "Any gemstone or color you love? Diamonds, emeralds, rubies, sapphires, or something simpler?",
	FieldBudgetRange:           "What budget would you like to stay within?",
	FieldOccasion:              "Is there a special occasion you're shopping for?",
}

// QuestionFor returns the canned question for field. The gender prompt is
// phrased for the recipient unless the shopper said the piece is for themselves;
// an unset purchase type gets the gift phrasing.
func QuestionFor(field Field, rec Record) Question {
	if field == FieldGender {
		if rec.IsSelfPurchase() {
			return Question{Field: field, Text: genderQuestionSelf}
		}
		return Question{Field: field, Text: genderQuestionGift}
	}
	return Question{Field: field, Text: cannedQuestions[field]}
}

// NextQuestion walks DiscoveryOrder and returns the first unset field with
// its prompt. It returns false once every field in the order is set. It has
// no side effects.
func NextQuestion(rec Record) (Question, bool) {
	for _, field := range DiscoveryOrder {
		if !rec.IsSet(field) {
			return QuestionFor(field, rec), true
		}
	}
	return Question{}, false
}

// RequiredFields lists what must be known before recommending: the discovery
// order, plus the recipient when the purchase is a gift.
func RequiredFields(rec Record) []Field {
	fields := make([]Field, 0, len(DiscoveryOrder)+1)
	fields = append(fields, DiscoveryOrder...)
	if rec.IsGift() {
		fields = append(fields, FieldRecipientRelationship)
	}
	return fields
}

// Ready reports whether every required field is set.
func Ready(rec Record) bool {
	for _, field := range RequiredFields(rec) {
		if !rec.IsSet(field) {
			return false
		}
	}
	return true
}

// Missing returns the required fields that are still unset.
func Missing(rec Record) []Field {
	var out []Field
	for _, field := range RequiredFields(rec) {
		if !rec.IsSet(field) {
			out = append(out, field)
		}
	}
	return out
}

// NextStep is NextQuestion followed by the gift recipient check. It returns
// false only when Ready(rec) holds.
func NextStep(rec Record) (Question, bool) {
	if q, ok := NextQuestion(rec); ok {
		return q, true
	}
	if rec.IsGift() && !rec.IsSet(FieldRecipientRelationship) {
		return QuestionFor(FieldRecipientRelationship, rec), true
	}
	return Question{}, false
}
