package privacy

import (
	"fmt"
	"sort"
	"strings"
)

// PlaceholderPrefix is the fixed prefix inside every mask token
const PlaceholderPrefix = "FP"

// Placeholder builds the token for the n-th occurrence of a type,
// e.g. {{FP_PHONE_1}}.
func Placeholder(t PIIType, n int) string {
	return fmt.Sprintf("{{%s_%s_%d}}", PlaceholderPrefix, t.Tag(), n)
}

// Mask replaces every detected item with a placeholder and records the
// mapping needed to undo it.
func (r *Registry) Mask(text string) MaskResult {
	scan := r.Scan(text)
	if !scan.HasPII {
		return MaskResult{
			Masked:     text,
			Mapping:    MaskMapping{Mappings: map[string]string{}},
			ScanResult: scan,
		}
	}

	mappings := make(map[string]string, len(scan.Items))
	counters := make(map[PIIType]int)

	// Items are sorted and disjoint, so offsets into text stay valid
	// while the output is built left to right.
	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, item := range scan.Items {
		counters[item.Type]++
		token := Placeholder(item.Type, counters[item.Type])
		mappings[token] = item.Value

		b.WriteString(text[last:item.Start])
		b.WriteString(token)
		last = item.End
	}
	b.WriteString(text[last:])

	return MaskResult{
		Masked:     b.String(),
		Mapping:    MaskMapping{Mappings: mappings},
		ScanResult: scan,
	}
}

// Restore puts the original literals back in place of their placeholders.
// Placeholders missing from text are skipped, and literals that are
// inserted are never scanned again.
func Restore(text string, mapping MaskMapping) string {
	if len(mapping.Mappings) == 0 {
		return text
	}

	// Longest token first so a token that prefixes another cannot steal
	// its match; ties sorted for a deterministic replacer.
	tokens := make([]string, 0, len(mapping.Mappings))
	for token := range mapping.Mappings {
		if token != "" {
			tokens = append(tokens, token)
		}
	}
	sort.Slice(tokens, func(i, j int) bool {
		if len(tokens[i]) != len(tokens[j]) {
			return len(tokens[i]) > len(tokens[j])
		}
		return tokens[i] < tokens[j]
	})

	pairs := make([]string, 0, len(tokens)*2)
	for _, token := range tokens {
		pairs = append(pairs, token, mapping.Mappings[token])
	}

	return strings.NewReplacer(pairs...).Replace(text)
}
