package preferences

import "strings"

// NormalizeGender maps loose wording onto GenderMale or GenderFemale.
// Anything unrecognised yields "".
func NormalizeGender(value string) string {
	switch strings.Trim(strings.ToLower(strings.TrimSpace(value)), ".!") {
	case "male", "man", "men", "mens", "men's", "him", "he", "gentleman", "gentlemen", "boy":
		return GenderMale
	case "female", "woman", "women", "womens", "women's", "her", "she", "lady", "ladies", "girl":
		return GenderFemale
	}
	return ""
}

// NormalizePurchaseType maps loose wording onto PurchaseSelf or PurchaseGift.
func NormalizePurchaseType(value string) string {
	v := strings.ToLower(strings.TrimSpace(value))
	v = strings.NewReplacer("-", "_", " ", "_").Replace(v)
	switch v {
	case PurchaseSelf, "self", "myself", "me", "for_me", "for_myself", "personal":
		return PurchaseSelf
	case PurchaseGift, "gift", "present", "for_someone_else", "someone_else":
		return PurchaseGift
	}
	return ""
}
