package analyzer

import (
	"path/filepath"
	"strings"
	"unicode"
)

// Declaration kinds.
const (
	KindFunction = "function"
	KindClass    = "class"
	KindType     = "type"
)

// Declaration is a named code element found by Declarations.
type Declaration struct {
	Kind string `json:"kind"`
	Name string `json:"name"`
	Line int    `json:"line"`
}

var declKeywords = []struct {
	prefix string
	kind   string
}{
	{"func ", KindFunction},
	{"def ", KindFunction},
	{"function ", KindFunction},
	{"fn ", KindFunction},
	{"class ", KindClass},
	{"type ", KindType},
	{"interface ", KindType},
	{"struct ", KindType},
}

var modifiers = []string{
	"export ", "default ", "async ", "public ", "private ", "protected ",
	"static ", "abstract ", "final ", "pub ",
}

// Declarations scans text line by line for function, class and type
// declarations in the common C-family, Go, Python, Rust and JavaScript
// spellings. Lines are numbered from 1.
func Declarations(text string) []Declaration {
	var out []Declaration
	for i, line := range strings.Split(text, "\n") {
		if d, ok := parseDeclaration(line); ok {
			d.Line = i + 1
			out = append(out, d)
		}
	}
	return out
}

func parseDeclaration(line string) (Declaration, bool) {
	s := strings.TrimSpace(line)
	for stripped := true; stripped; {
		stripped = false
		for _, m := range modifiers {
			if strings.HasPrefix(s, m) {
				s = strings.TrimSpace(s[len(m):])
				stripped = true
			}
		}
	}
	for _, kw := range declKeywords {
		if !strings.HasPrefix(s, kw.prefix) {
			continue
		}
		rest := strings.TrimSpace(s[len(kw.prefix):])
		// Go method receiver.
		if kw.prefix == "func " && strings.HasPrefix(rest, "(") {
			end := strings.Index(rest, ")")
			if end < 0 {
				return Declaration{}, false
			}
			rest = strings.TrimSpace(rest[end+1:])
		}
		name := identifier(rest)
		if name == "" {
			return Declaration{}, false
		}
		return Declaration{Kind: kw.kind, Name: name}, true
	}
	return Declaration{}, false
}

func identifier(s string) string {
	end := 0
	for i, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			break
		}
		end = i + len(string(r))
	}
	return s[:end]
}

// CodeExtensions are the file extensions treated as source code.
var CodeExtensions = map[string]bool{
	".go": true, ".py": true, ".js": true, ".jsx": true, ".ts": true,
	".tsx": true, ".java": true, ".c": true, ".h": true, ".cpp": true,
	".hpp": true, ".cs": true, ".rs": true, ".rb": true, ".kt": true,
	".swift": true, ".php": true, ".scala": true,
}

// ConfigExtensions are the file extensions treated as configuration.
var ConfigExtensions = map[string]bool{
	".json": true, ".yaml": true, ".yml": true, ".toml": true, ".ini": true,
	".conf": true, ".cfg": true, ".config": true, ".env": true,
	".properties": true,
}

// IsCode reports whether path has a source code extension.
func IsCode(path string) bool {
	return CodeExtensions[strings.ToLower(filepath.Ext(path))]
}

// IsConfig reports whether path looks like a configuration file. Dotenv
// files such as ".env.local" count.
func IsConfig(path string) bool {
	base := strings.ToLower(filepath.Base(path))
	if base == ".env" || strings.HasPrefix(base, ".env.") {
		return true
	}
	return ConfigExtensions[strings.ToLower(filepath.Ext(path))]
}
