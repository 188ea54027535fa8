// Package script extracts reload scripts from watched source files.
//
// A reload script is the ordered list of interpreter commands embedded in a
// file as lines starting with the run marker:
//
//	-- run:main
//	-- run::t foo
//
// The script is recomputed from scratch every time the file changes.
package script

import "strings"

// Marker prefixes every line that contributes a command to the script.
const Marker = "-- run:"

// Script is the ordered sequence of commands extracted from one file.
type Script []string

// Extract returns the commands embedded in text, in source order. The command
// is everything after Marker on its line, untouched. A trailing carriage
// return is dropped so CRLF files behave like LF files.
func Extract(text string) Script {
	if text == "" {
		return nil
	}

	var cmds Script

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSuffix(line, "\r")

		if cmd, ok := strings.CutPrefix(line, Marker); ok {
			cmds = append(cmds, cmd)
		}
	}

	return cmds
}

// Lines renders the script as newline-terminated interpreter input lines.
func (s Script) Lines() []string {
	out := make([]string, len(s))
	for i, cmd := range s {
		out[i] = cmd + "\n"
	}

	return out
}
