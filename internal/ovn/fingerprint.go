package ovn

import (
	"hash/fnv"
	"sort"

	"github.com/ovnwatch/ovnwatch/internal/types"
)

// Fingerprint returns a stable 64-bit hash over the raw text of the
// given records. The raw lines are sorted before hashing, so two
// extractions of the same rule content always produce the same value
// regardless of retrieval order.
func Fingerprint(records []types.RuleRecord) uint64 {
	lines := make([]string, 0, len(records))
	for _, r := range records {
		lines = append(lines, r.Raw)
	}
	sort.Strings(lines)

	h := fnv.New64a()
	for _, line := range lines {
		h.Write([]byte(line))
		h.Write([]byte{'\n'})
	}
	return h.Sum64()
}
