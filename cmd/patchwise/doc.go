// Patchwise reviews Linux kernel patches before they are sent upstream.
//
// It loads one commit, a list of commits or a range from a git repository,
// runs the selected reviewers against each patch and prints the findings
// grouped by patch and reviewer. Exit codes are deterministic so the tool
// can gate CI.
//
// Usage:
//
//	patchwise                                  # review HEAD with every reviewer
//	patchwise --short-reviews HEAD~3..HEAD     # fast reviewers over a range
//	patchwise --reviews checkpatch,ai_review   # named reviewers, in that order
//	patchwise --llm-reviews --format sarif --out review.sarif
//	patchwise list                             # reviewers, groups and dependencies
//	patchwise install --static-reviews         # install tool dependencies
package main
