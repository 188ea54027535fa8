package bridge

import (
	"strings"
)

// Directive prefixes recognised in console input. They are ordinary
// interpreter commands that double as watch-set controls.
const (
	LoadPrefix   = ":l "
	UnloadPrefix = ":u "
)

// DirectiveKind identifies a watch-set control.
type DirectiveKind uint8

const (
	// Load adds a path to the watch set.
	Load DirectiveKind = iota + 1
	// Unload removes a path from the watch set.
	Unload
)

func (k DirectiveKind) String() string {
	switch k {
	case Load:
		return "load"
	case Unload:
		return "unload"
	default:
		return "none"
	}
}

// Directive is a parsed watch-set control.
type Directive struct {
	Kind DirectiveKind
	Path string
}

// ParseDirective inspects the start of text for a load or unload directive.
// The path runs to the end of the first line and is trimmed and cleaned.
// A directive without a path is not a directive.
func ParseDirective(text string) (Directive, bool) {
	var kind DirectiveKind

	rest, ok := strings.CutPrefix(text, LoadPrefix)
	if ok {
		kind = Load
	} else if rest, ok = strings.CutPrefix(text, UnloadPrefix); ok {
		kind = Unload
	} else {
		return Directive{}, false
	}

	if i := strings.IndexAny(rest, "\r\n"); i >= 0 {
		rest = rest[:i]
	}

	path := NormalizePath(rest)
	if path == "" {
		return Directive{}, false
	}

	return Directive{Kind: kind, Path: path}, true
}

// LoadCommand renders the interpreter line that loads path.
func LoadCommand(path string) string {
	return LoadPrefix + path + "\n"
}
