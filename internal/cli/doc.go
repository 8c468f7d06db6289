// Package cli wires together the Cobra command tree for the patchwise binary.
//
// The root command runs a review: it reads configuration, opens the
// repository, registers the built-in reviewers, runs the orchestrator and
// writes the result. Subcommands list reviewers, install their
// dependencies, and manage the config file and baseline cache. Exit codes
// are deterministic for CI gating.
package cli
