package source

import (
	"strings"
)

// Selection narrows a descriptor list.
type Selection struct {
	// Categories keeps only descriptors of these categories. Entries without
	// a category are kept. Empty keeps everything.
	Categories []string

	// ExcludeNSFW drops NSFW descriptors.
	ExcludeNSFW bool
}

// Select returns the descriptors matching sel, preserving order.
func Select(descs []Descriptor, sel Selection) []Descriptor {
	categories := make(map[string]bool, len(sel.Categories))
	for _, c := range sel.Categories {
		if c = strings.ToLower(strings.TrimSpace(c)); c != "" {
			categories[c] = true
		}
	}

	out := make([]Descriptor, 0, len(descs))
	for _, d := range descs {
		if sel.ExcludeNSFW && d.NSFW {
			continue
		}
		if len(categories) > 0 && d.Category != "" && !categories[d.Category] {
			continue
		}
		out = append(out, d)
	}
	return out
}

// Merge concatenates descriptor lists. When two descriptors share a name the
// first one wins.
func Merge(lists ...[]Descriptor) []Descriptor {
	seen := make(map[string]bool)
	var out []Descriptor
	for _, list := range lists {
		for _, d := range list {
			if seen[d.Name] {
				continue
			}
			seen[d.Name] = true
			out = append(out, d)
		}
	}
	return out
}
