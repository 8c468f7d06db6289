// Package cache provides a file-based cache for expensive tool baselines.
//
// The device-tree reviewers run the same make target at the parent commit
// for every patch in a series. The output at a given revision never
// changes, so it is stored here keyed by a SHA-256 hash of the reviewer
// name, the revision and the make arguments. Each entry records its
// creation time and a TTL in seconds; expired entries are skipped on read.
//
// The default directory is $XDG_CACHE_HOME/patchwise/baselines (or the
// OS-appropriate equivalent).
package cache
