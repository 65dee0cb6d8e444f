package search

import (
	"sort"

	"github.com/hyperjump/docsearcher/internal/collection"
)

// Merge concatenates per-collection hit lists and sorts them by score, highest first. Equal
// scores keep collection order, then per-collection rank.
func Merge(lists [][]collection.Result) []collection.Result {
	n := 0
	for _, l := range lists {
		n += len(l)
	}
	merged := make([]collection.Result, 0, n)
	for _, l := range lists {
		merged = append(merged, l...)
	}
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })
	return merged
}

// Page returns the window [start, start+size) of results, clipped to its length.
func Page(results []collection.Result, start, size int) []collection.Result {
	if start > len(results) {
		start = len(results)
	}
	end := start + size
	if end > len(results) {
		end = len(results)
	}
	return results[start:end]
}
