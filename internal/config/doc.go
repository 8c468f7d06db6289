// Package config loads and merges patchwise configuration from multiple sources.
//
// Precedence (highest to lowest):
//  1. CLI flags
//  2. Environment variables (PATCHWISE_MODEL, PATCHWISE_FAIL_ON, OPENAI_API_KEY, etc.)
//  3. Config file ($XDG_CONFIG_HOME/patchwise/config.yaml)
//  4. Built-in defaults
//
// The file is YAML and decoded into pointer fields, so a key the file does
// not mention never overrides a default. Use [Load] to obtain a merged
// [Config], [Init] to write a default config file, and [Set] to update a
// single key in the config file.
package config
