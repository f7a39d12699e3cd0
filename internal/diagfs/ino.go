package diagfs

import "hash/fnv"

// inoFromString gives stable inode numbers from path-like keys so the
// same logical file keeps the same inode across lookups, mirroring
// vodfs's inoFromString.
func inoFromString(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}
