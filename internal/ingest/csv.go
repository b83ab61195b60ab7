package ingest

import (
	"strings"
)

// headerIndex maps lower-cased column names to their position so loaders can
// tolerate the header drift between export vintages ("Longitude (x)" vs
// "Longitude", stray BOMs, case changes).
type headerIndex map[string]int

func indexHeader(header []string) headerIndex {
	h := make(headerIndex, len(header))
	for i, name := range header {
		name = strings.TrimPrefix(name, "\ufeff")
		h[strings.ToLower(strings.TrimSpace(name))] = i
	}
	return h
}

// get returns the first cell whose header matches one of keys, trying exact
// lower-cased matches first and then substring matches.
func (h headerIndex) get(record []string, keys ...string) string {
	for _, key := range keys {
		if i, ok := h[strings.ToLower(key)]; ok && i < len(record) {
			return record[i]
		}
	}
	for _, key := range keys {
		keyL := strings.ToLower(key)
		best := -1
		for name, i := range h {
			if !strings.Contains(name, keyL) || i >= len(record) {
				continue
			}
			// Climate exports pair each measurement with a "... Flag"
			// quality column; never resolve to those.
			if strings.Contains(name, "flag") {
				continue
			}
			if best == -1 || i < best {
				best = i
			}
		}
		if best >= 0 {
			return record[best]
		}
	}
	return ""
}

// exact returns the cell under an exactly (case-insensitively) named column.
func (h headerIndex) exact(record []string, keys ...string) string {
	for _, key := range keys {
		if i, ok := h[strings.ToLower(key)]; ok && i < len(record) {
			return record[i]
		}
	}
	return ""
}
