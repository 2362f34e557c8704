package manifest

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/hupe1980/vecfuse/internal/hash"
)

// markerHashLen is the number of fingerprint hex digits carried by a marker.
const markerHashLen = 16

// Fingerprint hashes an applied manifest set given as manifest id to Digest. The
// result does not depend on order.
func Fingerprint(digests map[string]string) string {
	entries := make([]string, 0, len(digests))
	for id, d := range digests {
		entries = append(entries, id+"@"+d)
	}
	sort.Strings(entries)
	return hash.SHA256Strings(entries)
}

// Marker derives the snapshot marker of a manifest set of the given size.
//
// The zero-padded count prefix makes markers of additive builds sort in build order;
// the fingerprint suffix makes them unique per set and identical for identical sets.
func Marker(count int, fingerprint string) string {
	fp := fingerprint
	if len(fp) > markerHashLen {
		fp = fp[:markerHashLen]
	}
	return fmt.Sprintf("%08d-%s", count, fp)
}

// MarkerCount returns the manifest count encoded in a marker.
func MarkerCount(marker string) (int, bool) {
	head, _, ok := strings.Cut(marker, "-")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(head)
	if err != nil {
		return 0, false
	}
	return n, true
}
