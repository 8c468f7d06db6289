// Package reviewctx gathers the surrounding source a reviewer needs to judge a
// patch: snippets of unchanged code around every hunk, the symbols the added
// lines refer to, and recent history of each touched file.
//
// A [Builder] produces one read-only [Context] per patch. Building never
// fails: a file that cannot be read or a symbol lookup that errors simply
// leaves a gap, and reviewers must treat every entry as optional.
//
// Symbol lookup is pluggable. [ScopeLookup] parses the file with tree-sitter
// and needs nothing but the file content; [LSPLookup] asks clangd for
// definitions across the tree and needs a checkout on disk. [ChainLookup]
// combines them. [RenderDefinitions] turns the collected symbols into the
// condensed source listing used in AI prompts.
package reviewctx
