package privacy

import "sort"

type span struct {
	start, end int
}

func (s span) overlaps(start, end int) bool {
	return start < s.end && end > s.start
}

// Scan finds PII in text. Patterns are tried in priority order and a
// candidate is accepted only when it does not intersect anything already
// accepted and its validator, if any, passes.
func (r *Registry) Scan(text string) ScanResult {
	items := make([]Item, 0)
	var covered []span

	for _, p := range r.patterns {
		for _, loc := range p.Regex.FindAllStringIndex(text, -1) {
			start, end := loc[0], loc[1]

			overlapping := false
			for _, s := range covered {
				if s.overlaps(start, end) {
					overlapping = true
					break
				}
			}
			if overlapping {
				continue
			}

			value := text[start:end]
			if p.Validator != nil && !p.Validator(value) {
				continue
			}

			covered = append(covered, span{start: start, end: end})
			items = append(items, Item{
				Type:  p.Type,
				Value: value,
				Start: start,
				End:   end,
			})
		}
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].Start < items[j].Start
	})

	return ScanResult{
		HasPII: len(items) > 0,
		Items:  items,
	}
}
