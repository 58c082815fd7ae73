package symtable

import (
	"sort"

	"github.com/maxgio92/xsamp/pkg/addr"
)

// rangeIndex is the bidirectional AddressRange <-> UniqueIdentifier
// multimap described in spec.md §9: a realization of the source's
// boost::bimap<multiset_of<AddressRange>, multiset_of<UniqueIdentifier>>
// as two sorted structures kept in lockstep — a sorted-by-Begin slice for
// "who overlaps address a", and a plain map for "which ranges does uid
// own" so a mutation can cheaply remove and re-insert one entity's
// entries without touching anyone else's.
type rangeIndex struct {
	entries []rangeIndexEntry
	byUID   map[UniqueIdentifier][]addr.AddressRange
}

type rangeIndexEntry struct {
	Range addr.AddressRange
	UID   UniqueIdentifier
}

func newRangeIndex() *rangeIndex {
	return &rangeIndex{byUID: make(map[UniqueIdentifier][]addr.AddressRange)}
}

// Reindex replaces every entry owned by uid with ranges, keeping the
// index consistent with a rebuilt bitmap list. Passing nil ranges simply
// drops uid's entries.
func (idx *rangeIndex) Reindex(uid UniqueIdentifier, ranges []addr.AddressRange) {
	idx.remove(uid)
	if len(ranges) == 0 {
		return
	}

	cp := make([]addr.AddressRange, len(ranges))
	copy(cp, ranges)
	idx.byUID[uid] = cp

	for _, r := range ranges {
		idx.entries = append(idx.entries, rangeIndexEntry{Range: r, UID: uid})
	}
	sort.Slice(idx.entries, func(i, j int) bool {
		return idx.entries[i].Range.Less(idx.entries[j].Range)
	})
}

func (idx *rangeIndex) remove(uid UniqueIdentifier) {
	if _, ok := idx.byUID[uid]; !ok {
		return
	}
	delete(idx.byUID, uid)

	filtered := idx.entries[:0]
	for _, e := range idx.entries {
		if e.UID != uid {
			filtered = append(filtered, e)
		}
	}
	idx.entries = filtered
}

// RangesFor returns the ranges currently indexed for uid.
func (idx *rangeIndex) RangesFor(uid UniqueIdentifier) []addr.AddressRange {
	return idx.byUID[uid]
}

// At returns the distinct identifiers whose indexed ranges contain
// address a, ordered by the first such range in range order.
func (idx *rangeIndex) At(a addr.Address) []UniqueIdentifier {
	var out []UniqueIdentifier
	seen := make(map[UniqueIdentifier]bool)

	for _, e := range idx.entries {
		if e.Range.Begin > a {
			break
		}
		if e.Range.Contains(a) && !seen[e.UID] {
			seen[e.UID] = true
			out = append(out, e.UID)
		}
	}

	return out
}

// All returns every identifier with at least one indexed range, ordered
// by each identifier's lowest range in range order.
func (idx *rangeIndex) All() []UniqueIdentifier {
	out := make([]UniqueIdentifier, 0, len(idx.byUID))
	seen := make(map[UniqueIdentifier]bool)
	for _, e := range idx.entries {
		if !seen[e.UID] {
			seen[e.UID] = true
			out = append(out, e.UID)
		}
	}
	return out
}
