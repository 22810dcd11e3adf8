package rescache

import "hash/fnv"

// Fingerprint hashes a ResourceId (dataset identifier + "#" +
// constraint expression) into the numeric value used as the base of
// its on-disk filename. Collisions between distinct ResourceIds are
// expected and handled by the collision-suffix probe loop; the choice
// of hash only needs to distribute well, not be cryptographically
// strong.
func Fingerprint(resourceID string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(resourceID))
	return h.Sum64()
}

// ResourceID glues a dataset identifier and a constraint expression
// into the single string whose fingerprint identifies a cache entry.
func ResourceID(datasetID, constraint string) string {
	return datasetID + "#" + constraint
}
