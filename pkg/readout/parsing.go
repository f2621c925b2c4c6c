package readout

import (
	"regexp"
	"strconv"
	"strings"
)

// confusions maps characters Tesseract commonly returns in place of digits.
var confusions = strings.NewReplacer("O", "0", "o", "0", "l", "1", "I", "1")

// numberPatterns run in order over the whole text. The unit-suffixed passes
// come first; the final bare pass matches every number again, so values with
// a unit are reported twice.
var numberPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(\d+\.?\d*)\s*mph`),
	regexp.MustCompile(`(?i)(\d+\.?\d*)\s*ft`),
	regexp.MustCompile(`(?i)(\d+\.?\d*)\s*°`),
	regexp.MustCompile(`(?i)(\d+\.?\d*)\s*rpm`),
	regexp.MustCompile(`(?i)(\d+\.?\d*)\s*/s`),
	regexp.MustCompile(`(-?\d+\.?\d*)`),
}

// NormalizeText replaces letter/digit confusions (O,o -> 0 and l,I -> 1).
func NormalizeText(text string) string {
	return confusions.Replace(text)
}

// ParseNumbers extracts numeric tokens from raw OCR text in match order.
// Duplicates are kept; tokens that do not parse as floats are skipped.
func ParseNumbers(text string) []float64 {
	text = NormalizeText(text)
	var numbers []float64
	for _, re := range numberPatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if len(m) < 2 {
				continue
			}
			v, err := strconv.ParseFloat(m[1], 64)
			if err != nil {
				continue
			}
			numbers = append(numbers, v)
		}
	}
	return numbers
}
