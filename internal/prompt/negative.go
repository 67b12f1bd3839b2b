package prompt

import (
	"strings"

	"charforge/internal/domain"
)

// baseNegative is the shared quality-exclusion baseline. Every composed
// negative prompt contains these terms, whichever path produced it.
const baseNegative = "lowres, bad anatomy, bad hands, missing fingers, extra digits, fewer digits, worst quality, low quality, jpeg artifacts, signature, watermark, username, blurry"

// minNegativeLength marks agent negatives below it as implausible, in which
// case a rule-based negative is synthesized from the positive prompt.
const minNegativeLength = 24

// ensureBaseline appends any missing baseline terms to the negative prompt.
func ensureBaseline(negative string) string {
	present := make(map[string]bool)
	for _, part := range strings.Split(negative, ",") {
		present[strings.ToLower(strings.TrimSpace(part))] = true
	}
	var missing []string
	for _, term := range strings.Split(baseNegative, ",") {
		term = strings.TrimSpace(term)
		if !present[strings.ToLower(term)] {
			missing = append(missing, term)
		}
	}
	negative = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(negative), ","))
	if len(missing) == 0 {
		return negative
	}
	joined := strings.Join(missing, ", ")
	if negative == "" {
		return joined
	}
	return negative + ", " + joined
}

// synthesizeNegative derives a negative prompt from the positive prompt's
// content when the agent produced none worth keeping.
func synthesizeNegative(positive string, genType domain.GenerationType, view domain.ViewKind) string {
	lower := strings.ToLower(positive)
	terms := []string{baseNegative}

	if strings.Contains(lower, "1girl") {
		terms = append(terms, "multiple girls, 2girls")
	}
	if strings.Contains(lower, "1boy") {
		terms = append(terms, "multiple boys, 2boys")
	}
	if strings.Contains(lower, "solo") {
		terms = append(terms, "multiple views, multiple people")
	}
	if strings.Contains(lower, "smile") || strings.Contains(lower, "grin") {
		terms = append(terms, "frown, sad, angry")
	}
	switch genType {
	case domain.GenerationAvatar, domain.GenerationSticker:
		terms = append(terms, "full body, from behind, lower body")
	}
	if desc, ok := domain.DescriptorFor(view); ok && len(desc.NegativeTags) > 0 {
		terms = append(terms, strings.Join(desc.NegativeTags, ", "))
	}
	return strings.Join(terms, ", ")
}
