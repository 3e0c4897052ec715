package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeAudit(t *testing.T, buf *bytes.Buffer) []AuditEvent {
	t.Helper()
	var out []AuditEvent
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var e AuditEvent
		require.NoError(t, json.Unmarshal([]byte(line), &e))
		out = append(out, e)
	}
	return out
}

func TestAuditFacts(t *testing.T) {
	var buf bytes.Buffer
	a := NewAuditLogger(&buf)

	a.InferRun("run-1", "trans", 6, 1500*time.Millisecond, nil)
	a.InferRun("run-2", "trans", 0, 0, errors.New("unresolved \"edge\""))
	a.CompileLookup("abc123", true, 2)
	a.StoreOp(AuditStoreWrite, "path", 6, 0)
	a.WatchReload("rules.mg", 3)

	events := decodeAudit(t, &buf)
	require.Len(t, events, 5)

	assert.Equal(t, AuditInferOK, events[0].EventType)
	assert.Contains(t, events[0].Fact, `/infer_ok, "run-1", "trans", 6, 1500, "").`)
	assert.Equal(t, AuditInferFailed, events[1].EventType)
	assert.Equal(t, `unresolved "edge"`, events[1].Error)
	assert.Contains(t, events[1].Fact, `/infer_failed, "run-2", "trans", 0, 0, "unresolved \"edge\"").`)
	assert.Contains(t, events[2].Fact, `compile_event(`)
	assert.Contains(t, events[2].Fact, `/compile_hit, "abc123", 2).`)
	assert.Contains(t, events[3].Fact, `store_op(`)
	assert.Contains(t, events[4].Fact, `watch_event(`)
	for _, e := range events {
		assert.NotZero(t, e.Timestamp)
	}
}

func TestAuditNilDiscards(t *testing.T) {
	var a *AuditLogger
	a.InferRun("r", "s", 1, 0, nil)
	(&AuditLogger{}).WatchReload("x", 1)
}

func TestInitAudit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "audit.jsonl")
	require.NoError(t, InitAudit(path))
	t.Cleanup(CloseAudit)

	Audit().CompileLookup("fp", false, 1)
	CloseAudit()
	assert.Nil(t, Audit())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "/compile_miss")

	require.NoError(t, InitAudit(""))
	assert.Nil(t, Audit())
}

func TestEscapeString(t *testing.T) {
	assert.Equal(t, "plain", escapeString("plain"))
	assert.Equal(t, `a\"b\\c\nd\te`, escapeString("a\"b\\c\nd\te"))
}
