package vectorstore

import "regexp"

var disallowedRe = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// CollectionName derives the vector database collection name for an
// owner key: every character outside [A-Za-z0-9_-] becomes "_", and the
// result is prefixed with the namespace tag. Deterministic by
// construction. Distinct owners may sanitize to the same name; the
// payload keeps the exact owner key, so owner-scoped deletes stay
// correct even then.
func CollectionName(prefix, owner string) string {
	return prefix + "_" + Sanitize(owner)
}

// Sanitize replaces each disallowed character in the owner key 1:1
// with an underscore.
func Sanitize(owner string) string {
	return disallowedRe.ReplaceAllString(owner, "_")
}
