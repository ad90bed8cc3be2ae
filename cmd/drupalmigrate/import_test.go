package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/JonMunkholm/drupalmigrate/internal/core"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintReport(t *testing.T) {
	r := &core.Report{
		RunID:    "r1",
		Importer: "posts",
		Source:   "posts.csv",
		Preview:  true,
		Counts:   core.Counts{Created: 2, Failed: 1},
		Results: []core.ImportResult{
			{Line: 2, Key: "5", Outcome: core.OutcomeCreated},
			{Line: 3, Outcome: core.OutcomeFailed, Reason: "missing required column nid"},
		},
		Duration: 1500 * time.Microsecond,
	}

	var buf bytes.Buffer
	printReport(&buf, r)

	out := buf.String()
	assert.Contains(t, out, "Run r1: posts from posts.csv (dry run, nothing written)")
	assert.Contains(t, out, "created 2, updated 0, skipped 0, failed 1")
	assert.Contains(t, out, "line 3 (-): missing required column nid")
	assert.NotContains(t, out, "aborted")
}

func TestWriteRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rewrite.txt")
	importRulesOut = path
	t.Cleanup(func() { importRulesOut = "" })

	require.NoError(t, writeRules(io.Discard, "RewriteRule ^node/5 /blogs/blog/hello/ [R=301,L]"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "RewriteRule ^node/5 /blogs/blog/hello/ [R=301,L]\n", string(data))
}

func TestWriteRules_Stdout(t *testing.T) {
	importRulesOut = "-"
	t.Cleanup(func() { importRulesOut = "" })

	rules := "RewriteRule ^node/5 /blogs/blog/hello/ [R=301,L]\nRewriteRule ^node/6 /blogs/blog/bye/ [R=301,L]"
	var stdout bytes.Buffer
	require.NoError(t, writeRules(&stdout, rules))
	assert.Equal(t, rules+"\n", stdout.String())

	stdout.Reset()
	require.NoError(t, writeRules(&stdout, ""))
	assert.Empty(t, stdout.String())
}

func TestReportWriter(t *testing.T) {
	var stdout, stderr bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	t.Cleanup(func() { importRulesOut = "" })

	importRulesOut = "rewrite.txt"
	assert.Same(t, &stdout, reportWriter(cmd))

	importRulesOut = "-"
	assert.Same(t, &stderr, reportWriter(cmd), "rules own stdout")
}
