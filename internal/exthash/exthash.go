// Package exthash computes the lowercased 8-byte extension hash spec §3
// attaches to every FileRecord ("ext_hash: lowercased 8-byte hash of
// extension, for fast extension filter, or 0"), shared between the index
// (which stores it) and the query matcher (which computes the same hash
// from an `ext:` term to compare against it in O(1)).
package exthash

import (
	"hash/fnv"
	"strings"
)

// Of returns the extension hash for name, or 0 if name has no extension.
// The extension is taken as everything after the last '.', lower-cased,
// without the leading dot.
func Of(name string) uint64 {
	idx := strings.LastIndexByte(name, '.')
	if idx < 0 || idx == len(name)-1 {
		return 0
	}
	return OfExt(name[idx+1:])
}

// OfExt hashes an already-extracted extension (without the leading dot).
func OfExt(ext string) uint64 {
	if ext == "" {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(strings.ToLower(ext)))
	sum := h.Sum64()
	if sum == 0 {
		// Reserve 0 to mean "no extension".
		sum = 1
	}
	return sum
}
