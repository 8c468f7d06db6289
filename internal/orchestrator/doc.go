// Package orchestrator drives a review run: it resolves reviewers and
// commits, builds each patch's context once, fans reviewers out under a
// concurrency bound and a per-invocation timeout, and aggregates one report
// per patch.
//
// Patches are processed sequentially in apply order. A cancelled run returns
// the reports completed so far together with the context error.
package orchestrator
