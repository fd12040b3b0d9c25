package runner

import (
	"fmt"
	"strings"

	"github.com/google/shlex"
)

// Placeholders recognised in command templates
const (
	Archive    = "{archive}"
	MountPoint = "{mountpoint}"
	Viewer     = "{viewer}"
)

// Template is a command line split into words with shell quoting rules.
// Placeholders are substituted per word after splitting, so a value that
// contains spaces or shell metacharacters always stays a single argument.
type Template struct {
	raw   string
	words []string
}

// ParseTemplate splits a command line such as "fuseiso {archive} {mountpoint}"
func ParseTemplate(s string) (Template, error) {
	words, err := shlex.Split(s)
	if err != nil {
		return Template{}, fmt.Errorf("parse command %q: %w", s, err)
	}
	if len(words) == 0 {
		return Template{}, fmt.Errorf("command %q is empty", s)
	}
	return Template{raw: s, words: words}, nil
}

// MustParseTemplate is like ParseTemplate but panics on error
func MustParseTemplate(s string) Template {
	t, err := ParseTemplate(s)
	if err != nil {
		panic(err)
	}
	return t
}

// Program returns the first word of the template, the executable to run
func (t Template) Program() string {
	if len(t.words) == 0 {
		return ""
	}
	return t.words[0]
}

// Has reports whether any word of the template references the placeholder
func (t Template) Has(placeholder string) bool {
	for _, w := range t.words {
		if strings.Contains(w, placeholder) {
			return true
		}
	}
	return false
}

// Expand substitutes placeholders and returns the argument vector
func (t Template) Expand(vars map[string]string) []string {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, k, v)
	}
	r := strings.NewReplacer(pairs...)

	argv := make([]string, len(t.words))
	for i, w := range t.words {
		argv[i] = r.Replace(w)
	}
	return argv
}

func (t Template) String() string {
	return t.raw
}

// Quote renders an argument vector as a shell-safe command line for display
func Quote(argv []string) string {
	quoted := make([]string, len(argv))
	for i, a := range argv {
		quoted[i] = quoteWord(a)
	}
	return strings.Join(quoted, " ")
}

func quoteWord(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	for _, c := range s {
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' ||
			strings.ContainsRune("-_./=:,+@%", c)) {
			safe = false
			break
		}
	}
	if safe {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
