// Package gitctx reads commits, file contents and history from a git
// repository by shelling out to git.
//
// [Repo.Expand] turns the user's commit arguments into an ordered list of
// refs: a single "a..b" argument is a range, listed oldest first through
// rev-list so that the patches come out in apply order. [Repo.Load] turns a
// ref into a [patch.Patch].
//
// [Worktrees] hands out one detached, read-only checkout per revision for the
// tools that need a real source tree.
package gitctx
