package core

import (
	"fmt"
	"strings"
)

// rewriteRuleFormat is consumed verbatim by Apache mod_rewrite.
const rewriteRuleFormat = "RewriteRule ^%s %s [R=301,L]"

// RedirectMapping is one old path to new path entry.
type RedirectMapping struct {
	OldPath string `json:"oldPath"`
	NewPath string `json:"newPath"`
}

// RedirectLedger accumulates old path to new path mappings for one run.
// Recording an existing old path replaces its target but keeps its original
// position, so rendering order is first-insertion order.
type RedirectLedger struct {
	order []string
	paths map[string]string
}

// NewRedirectLedger returns an empty ledger.
func NewRedirectLedger() *RedirectLedger {
	return &RedirectLedger{paths: make(map[string]string)}
}

// Record maps oldPath to newPath. The last write for an old path wins.
func (l *RedirectLedger) Record(oldPath, newPath string) {
	if _, ok := l.paths[oldPath]; !ok {
		l.order = append(l.order, oldPath)
	}
	l.paths[oldPath] = newPath
}

// Len returns the number of distinct old paths.
func (l *RedirectLedger) Len() int {
	return len(l.order)
}

// Entries returns the mappings in insertion order.
func (l *RedirectLedger) Entries() []RedirectMapping {
	out := make([]RedirectMapping, len(l.order))
	for i, old := range l.order {
		out[i] = RedirectMapping{OldPath: old, NewPath: l.paths[old]}
	}
	return out
}

// Render returns one rewrite rule per mapping, newline separated, without a
// trailing newline. Paths are embedded as recorded.
func (l *RedirectLedger) Render() string {
	entries := l.Entries()
	rules := make([]string, len(entries))
	for i, m := range entries {
		rules[i] = fmt.Sprintf(rewriteRuleFormat, m.OldPath, m.NewPath)
	}
	return strings.Join(rules, "\n")
}
