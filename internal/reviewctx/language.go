package reviewctx

import (
	"path/filepath"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/lexers"
)

// Extensions chroma resolves ambiguously or not at all.
var extLanguages = map[string]string{
	".c":    "c",
	".h":    "c",
	".go":   "go",
	".dts":  "devicetree",
	".dtsi": "devicetree",
	".rst":  "rst",
}

// DetectLanguage returns a short language tag for path, suitable for a
// markdown fence. Content is used when the filename alone is not enough.
func DetectLanguage(path, content string) string {
	if lang, ok := extLanguages[strings.ToLower(filepath.Ext(path))]; ok {
		return lang
	}
	lexer := lexers.Match(filepath.Base(path))
	if lexer == nil && content != "" {
		lexer = lexers.Analyse(content)
	}
	if lexer == nil {
		return ""
	}
	return tagOf(lexer)
}

func tagOf(l chroma.Lexer) string {
	cfg := l.Config()
	if len(cfg.Aliases) > 0 {
		return cfg.Aliases[0]
	}
	return strings.ToLower(cfg.Name)
}
