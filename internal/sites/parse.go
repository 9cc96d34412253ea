package sites

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var (
	numberRe  = regexp.MustCompile(`\d[\d,.]*`)
	yearRe    = regexp.MustCompile(`^(19|20)\d{2}$`)
	mileageRe = regexp.MustCompile(`(\d{1,3}(?:[,.]\d{3})*|\d+)\s*(km|kms|miles|mi)\b`)
)

// ParsePrice extracts an integer price from text like "€12,500" or
// "12.500 EUR". It returns nil, not zero, when no numeric token exists.
func ParsePrice(text string) *int {
	match := numberRe.FindString(text)
	if match == "" {
		return nil
	}
	cleaned := strings.NewReplacer(",", "", ".", "").Replace(match)
	v, err := strconv.Atoi(cleaned)
	if err != nil {
		return nil
	}
	return &v
}

// ParseMileage extracts a kilometre reading from text like "85,000 km" or
// "120000 miles". Miles are converted to kilometres. Nil when absent.
func ParseMileage(text string) *int {
	m := mileageRe.FindStringSubmatch(strings.ToLower(text))
	if m == nil {
		return nil
	}
	cleaned := strings.NewReplacer(",", "", ".", "").Replace(m[1])
	v, err := strconv.Atoi(cleaned)
	if err != nil {
		return nil
	}
	if strings.HasPrefix(m[2], "mi") {
		v = int(float64(v) * 1.60934)
	}
	return &v
}

// ParseTitle splits a freeform listing title into make, model and year using
// a fixed token-position heuristic: the first token is the make, subsequent
// alphabetic tokens up to a 4-digit year token form the model, and that
// 4-digit token is the year. Ambiguous titles leave make and model empty
// rather than guessing.
func ParseTitle(title string) (make, model string, year *int) {
	tokens := strings.Fields(title)
	if len(tokens) == 0 {
		return "", "", nil
	}

	if !isAlphabetic(tokens[0]) {
		// Leading token is not a word; only the year can be salvaged.
		return "", "", firstYearToken(tokens)
	}
	make = tokens[0]

	var modelTokens []string
	for _, tok := range tokens[1:] {
		if yearRe.MatchString(tok) {
			y, _ := strconv.Atoi(tok)
			year = &y
			break
		}
		if !isAlphabetic(tok) {
			break
		}
		modelTokens = append(modelTokens, tok)
	}
	if year == nil {
		year = firstYearToken(tokens)
	}
	if len(modelTokens) == 0 {
		return "", "", year
	}
	return make, strings.Join(modelTokens, " "), year
}

func firstYearToken(tokens []string) *int {
	for _, tok := range tokens {
		if yearRe.MatchString(tok) {
			y, _ := strconv.Atoi(tok)
			return &y
		}
	}
	return nil
}

func isAlphabetic(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) && r != '-' {
			return false
		}
	}
	return true
}

// DetectFuel finds a known fuel-type keyword in text, empty when absent.
func DetectFuel(text string) string {
	lower := strings.ToLower(text)
	for _, fuel := range []string{"petrol", "diesel", "electric", "hybrid", "lpg", "cng"} {
		if strings.Contains(lower, fuel) {
			return strings.ToUpper(fuel[:1]) + fuel[1:]
		}
	}
	return ""
}

// DetectTransmission finds a transmission keyword in text, empty when absent.
func DetectTransmission(text string) string {
	lower := strings.ToLower(text)
	if strings.Contains(lower, "manual") {
		return "Manual"
	}
	if strings.Contains(lower, "automatic") || strings.Contains(lower, " auto") {
		return "Automatic"
	}
	return ""
}
