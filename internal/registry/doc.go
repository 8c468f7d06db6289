// Package registry catalogs reviewers and resolves a user selection into the
// ordered set of reviewers a run will apply.
//
// Every reviewer belongs to derived groups: static or llm by kind, short or
// long by its short tag. Dependency checks are cached per reviewer for the
// registry's lifetime.
package registry
