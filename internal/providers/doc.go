// Package providers is the LLM transport used by the AI reviewers.
//
// Supported backends: any OpenAI-compatible chat completions endpoint (the
// default, which also covers local servers such as Ollama or LM Studio),
// Anthropic, and Google Gemini through the genai SDK. [New] picks the backend
// from the model string's prefix, e.g. "anthropic/claude-sonnet-4" or
// "gemini/gemini-2.0-flash".
//
// Providers never retry on their own. They map failures onto three typed
// errors, [TransportError], [AuthError] and [RateLimitError], and callers wrap
// calls in [Retry] with the policy they want.
package providers
