package core

import "hash/fnv"

// palette holds the display colors assigned to cost centers. Kept small on
// purpose: collisions are fine, stability is what matters.
var palette = []string{
	"#2563eb", // blue
	"#16a34a", // green
	"#d97706", // amber
	"#dc2626", // red
	"#7c3aed", // violet
	"#0891b2", // cyan
	"#db2777", // pink
	"#65a30d", // lime
}

// SharedColor is the fixed color of the shared/organization pseudo-owner.
const SharedColor = "#475569"

// ColorFor derives a stable display color from an owner name. The same name
// always maps to the same palette entry, regardless of casing or accents.
func ColorFor(name string) string {
	n := NormalizeName(name)
	if n == "" {
		return SharedColor
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(n))
	return palette[h.Sum32()%uint32(len(palette))]
}
