package repl

import (
	"sort"
	"strings"
)

// Completer suggests command names.
type Completer struct {
	commands []string
}

// NewCompleter creates a completer over the given command names.
func NewCompleter(commands []string) *Completer {
	seen := make(map[string]bool, len(commands))
	c := &Completer{}
	for _, name := range commands {
		name = strings.ToUpper(name)
		if !seen[name] {
			seen[name] = true
			c.commands = append(c.commands, name)
		}
	}
	sort.Strings(c.commands)
	return c
}

// Complete returns the commands starting with prefix, case-insensitively.
func (c *Completer) Complete(prefix string) []string {
	prefix = strings.ToUpper(prefix)
	var out []string
	for _, cmd := range c.commands {
		if strings.HasPrefix(cmd, prefix) {
			out = append(out, cmd)
		}
	}
	return out
}

// Known reports whether name is a known command.
func (c *Completer) Known(name string) bool {
	name = strings.ToUpper(name)
	i := sort.SearchStrings(c.commands, name)
	return i < len(c.commands) && c.commands[i] == name
}
