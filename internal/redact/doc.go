// Package redact removes secrets from patch text before it is sent to any
// LLM provider.
//
// Detection uses regex heuristics covering common secret shapes: API keys,
// JWTs, private keys, AWS access key IDs and secret access keys, bearer
// tokens and provider-specific tokens (Anthropic, OpenAI, GitHub, Slack).
//
// Path-based redaction is also supported: Patch drops the whole diff
// section of any file whose path matches a configured glob pattern, keeping
// only its "diff --git" header so the reviewer still sees that the file
// changed.
package redact
