// Package reviewers holds the built-in reviewers.
//
// The static analyses wrap the kernel's own tooling: checkpatch.pl,
// coccicheck, sparse, dt_binding_check and dtbs_check. Each runs through a
// toolrun.Runner inside a per-revision worktree and turns the tool's text
// output into findings. The device-tree checks compare output at the parent
// and at the commit, so only problems the commit introduces are reported;
// parent output is cached.
//
// The AI reviewers are commit_audit, which critiques the commit message,
// and ai_review, which comments inline on the quoted diff the way a
// maintainer replies on a mailing list. Their replies are wrapped at
// ChatWidth columns so they can be pasted into mail.
package reviewers
