package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"deduce/internal/config"
	"deduce/internal/dataset"
	"deduce/internal/logging"
	"deduce/internal/store"
	"deduce/internal/watch"
)

const transRules = `
path(X, Y) :- edge(X, Y).
path(X, Y) :- edge(X, Z), path(Z, Y).
`

// setup resets the command globals and returns a workspace directory.
func setup(t *testing.T) string {
	t.Helper()
	ws := t.TempDir()

	logger = zap.NewNop()
	cfg = config.DefaultConfig()
	cfg.Store.DatabasePath = filepath.Join(ws, "relations.db")
	dataFiles, tables = nil, nil
	fromDB, naive, saveDerived, whyJSON = false, false, false, false
	outputFormat = "text"
	timeout = 0
	watchDebounce = watch.DefaultDebounce
	t.Cleanup(func() {
		dataFiles, tables = nil, nil
		fromDB, naive, saveDerived, whyJSON = false, false, false, false
	})
	return ws
}

func write(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func command() (*cobra.Command, *bytes.Buffer) {
	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)
	cmd.SetContext(context.Background())
	return cmd, &buf
}

func TestInferCmd(t *testing.T) {
	ws := setup(t)
	rulesPath := write(t, ws, "trans.mg", transRules)
	dataFiles = []string{write(t, ws, "edges.yaml", "edge: [[1, 2], [2, 3]]\n")}

	cmd, out := command()
	require.NoError(t, runInfer(cmd, []string{rulesPath, "path", "path(1, _)"}))

	text := out.String()
	assert.Contains(t, text, "path: 3 tuple(s)")
	assert.Contains(t, text, "path(1, _): 2 tuple(s)")
	assert.Contains(t, text, "(1, 3)")
}

func TestInferCmdFormats(t *testing.T) {
	ws := setup(t)
	rulesPath := write(t, ws, "trans.mg", transRules)
	dataFiles = []string{write(t, ws, "edges.yaml", "edge: [[1, 2], [2, 3]]\n")}

	outputFormat = "json"
	cmd, out := command()
	require.NoError(t, runInfer(cmd, []string{rulesPath, "path"}))
	var decoded map[string][][]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.Len(t, decoded["path"], 3)

	outputFormat = "yaml"
	cmd, out = command()
	require.NoError(t, runInfer(cmd, []string{rulesPath}))
	ds, err := dataset.Parse(out.Bytes())
	require.NoError(t, err)
	assert.True(t, ds["path"].ContainsValues(1, 3))

	outputFormat = "xml"
	cmd, _ = command()
	assert.ErrorContains(t, runInfer(cmd, []string{rulesPath}), "unknown output format")
}

func TestInferCmdUnresolved(t *testing.T) {
	ws := setup(t)
	rulesPath := write(t, ws, "trans.mg", transRules)

	cmd, _ := command()
	err := runInfer(cmd, []string{rulesPath, "path"})
	assert.ErrorContains(t, err, "edge")
}

func TestInferCmdSaveAndReuse(t *testing.T) {
	ws := setup(t)
	rulesPath := write(t, ws, "trans.mg", transRules)
	dataFiles = []string{write(t, ws, "edges.yaml", "edge: [[1, 2], [2, 3]]\n")}
	saveDerived = true

	cmd, _ := command()
	require.NoError(t, runInfer(cmd, []string{rulesPath}))

	st, err := store.Open(cfg.Store.DatabasePath)
	require.NoError(t, err)
	rel, ok, err := st.Relation(context.Background(), "path")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, rel.Len())

	// A saved relation can feed another rule set.
	_, err = st.DB().Exec(`CREATE TABLE links (src INTEGER, dst INTEGER)`)
	require.NoError(t, err)
	_, err = st.DB().Exec(`INSERT INTO links VALUES (3, 4)`)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	reach := write(t, ws, "reach.mg", "reach(X, Y) :- path(X, Y).\nreach(X, Y) :- links(X, Y).\n")
	dataFiles, saveDerived, fromDB = nil, false, true
	tables = []string{"links=links:src,dst"}

	cmd, out := command()
	require.NoError(t, runInfer(cmd, []string{reach, "reach"}))
	assert.Contains(t, out.String(), "reach: 4 tuple(s)")
}

func TestCheckCmd(t *testing.T) {
	ws := setup(t)
	good := write(t, ws, "trans.mg", transRules)
	bad := write(t, ws, "bad.mg", "p(X) :- q(X, Y).\np(X, Y) :- q(X, Y).\n")

	cmd, out := command()
	require.NoError(t, runCheck(cmd, []string{good}))
	assert.Contains(t, out.String(), "derived: path/2")
	assert.Contains(t, out.String(), "free:    edge/2")
	assert.Contains(t, out.String(), "stratum 0: path (recursive)")

	cmd, out = command()
	err := runCheck(cmd, []string{good, bad})
	assert.ErrorContains(t, err, "1 of 2")
	assert.Contains(t, out.String(), "✗ "+bad)
}

func TestWhyCmd(t *testing.T) {
	ws := setup(t)
	rulesPath := write(t, ws, "trans.mg", transRules)
	dataFiles = []string{write(t, ws, "edges.yaml", "edge: [[1, 2], [2, 3]]\n")}

	cmd, out := command()
	require.NoError(t, runWhy(cmd, []string{rulesPath, "path(1, 3)"}))
	assert.Contains(t, out.String(), "Query: path(1, 3)")
	assert.Contains(t, out.String(), "[EDB]")

	whyJSON = true
	cmd, out = command()
	require.NoError(t, runWhy(cmd, []string{rulesPath, "path(1, 2)"}))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))

	cmd, _ = command()
	assert.ErrorContains(t, runWhy(cmd, []string{rulesPath, "path(1, X)"}), "not a ground fact")
}

func TestParseTableSpec(t *testing.T) {
	ts, err := parseTableSpec("edge=links:src,dst")
	require.NoError(t, err)
	assert.Equal(t, tableSpec{name: "edge", table: "links", cols: []string{"src", "dst"}}, ts)

	ts, err = parseTableSpec("edge=links")
	require.NoError(t, err)
	assert.Nil(t, ts.cols)

	_, err = parseTableSpec("links")
	assert.Error(t, err)
}

func TestEngineConfigFromFlags(t *testing.T) {
	setup(t)
	cfg.Engine.EvalTimeout = "3s"
	naive = true

	ec := engineConfig()
	assert.False(t, ec.SemiNaive)
	assert.Equal(t, "3s", ec.EvalTimeout.String())

	timeout = 1500 * time.Millisecond
	assert.Equal(t, "1.5s", engineConfig().EvalTimeout.String())
}

func TestLoggingOptionsFilterCategories(t *testing.T) {
	lc := config.LoggingConfig{
		Level:      "debug",
		DebugMode:  true,
		File:       filepath.Join(t.TempDir(), "deduce.log"),
		Categories: map[string]bool{"eval": false},
	}
	opts := loggingOptions(lc)
	require.NotNil(t, opts.Enabled)
	assert.False(t, opts.Enabled("eval"))
	assert.True(t, opts.Enabled("store"))

	require.NoError(t, logging.Initialize(opts))
	t.Cleanup(func() { _ = logging.Initialize(logging.Options{}) })
	assert.False(t, logging.IsCategoryEnabled(logging.CategoryEval))
	assert.True(t, logging.IsCategoryEnabled(logging.CategoryStore))
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWatchCmdReruns(t *testing.T) {
	ws := setup(t)
	rulesPath := write(t, ws, "trans.mg", transRules)
	edges := write(t, ws, "edges.yaml", "edge: [[1, 2], [2, 3]]\n")
	dataFiles = []string{edges}
	watchDebounce = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := &syncBuffer{}
	cmd := &cobra.Command{}
	cmd.SetOut(out)
	cmd.SetContext(ctx)

	done := make(chan error, 1)
	go func() { done <- runWatch(cmd, []string{rulesPath, "path"}) }()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "path: 3 tuple(s)")
	}, 5*time.Second, 20*time.Millisecond)

	// Give the watcher time to register before changing the data.
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, os.WriteFile(edges, []byte("edge: [[1, 2], [2, 3], [3, 4]]\n"), 0644))

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "path: 6 tuple(s)")
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}
