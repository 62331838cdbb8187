package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradelab/draudit/internal/snapshot"
	"github.com/tradelab/draudit/pkg/model"
)

func createTestRootCmd() *cobra.Command {
	return NewRootCmd()
}

// executeCommand runs a fresh command tree with stdin and returns stdout.
func executeCommand(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := createTestRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--no-color"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

// decisionScript writes a decision command that ignores its input and
// prints facts.
func decisionScript(t *testing.T, facts string) string {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	path := filepath.Join(t.TempDir(), "gate.sh")
	script := "#!/bin/sh\ncat >/dev/null\necho '" + facts + "'\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return "sh " + path
}

// seedRun stores one snapshot and records one GREEN decision in run r1.
func seedRun(t *testing.T) (root string, hash string) {
	t.Helper()
	root = t.TempDir()
	snap := filepath.Join(root, "bars.json")
	require.NoError(t, os.WriteFile(snap, []byte(`{"close":100,"atr":2}`), 0o644))

	out, err := executeCommand(t, `{"decision_id":"d-1","facts":{"risk_state":"GREEN","action":"HOLD"}}`,
		"--root", root, "--run", "r1", "--json", "record", "--snapshot", snap)
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "d-1", got["decision_id"])

	out, err = executeCommand(t, "", "--root", root, "--run", "r1", "snapshot", "ls")
	require.NoError(t, err)
	hash = strings.TrimSpace(out)
	require.Len(t, hash, 64)
	return root, hash
}

func TestRootCommand_Help(t *testing.T) {
	out, err := executeCommand(t, "", "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "content hash")
	assert.Contains(t, out, "audit")
}

func TestVersionCommand(t *testing.T) {
	out, err := executeCommand(t, "", "--root", t.TempDir(), "version")
	require.NoError(t, err)
	assert.Contains(t, out, "draudit dev")
	assert.Contains(t, out, model.CurrentSchema.String())
}

func TestSnapshotCommand_PutGetLs(t *testing.T) {
	root := t.TempDir()
	out, err := executeCommand(t, `{"b":1,"a":[true,null],"content_hash":"x"}`, "--root", root, "snapshot", "put")
	require.NoError(t, err)
	h := strings.TrimSpace(out)
	require.True(t, model.HashValue(h).Valid(), h)

	// idempotent
	out, err = executeCommand(t, `{"a":[true,null],"b":1}`, "--root", root, "snapshot", "put", "-")
	require.NoError(t, err)
	assert.Equal(t, h, strings.TrimSpace(out))

	out, err = executeCommand(t, "", "--root", root, "snapshot", "get", h[:8])
	require.NoError(t, err)
	assert.Equal(t, `{"a":[true,null],"b":1}`+"\n", out)

	out, err = executeCommand(t, "", "--root", root, "--json", "snapshot", "ls")
	require.NoError(t, err)
	var hashes []string
	require.NoError(t, json.Unmarshal([]byte(out), &hashes))
	assert.Equal(t, []string{h}, hashes)
}

func TestSnapshotCommand_GetUnknown(t *testing.T) {
	root, hash := seedRun(t)
	_, err := executeCommand(t, "", "--root", root, "--run", "r1", "snapshot", "get", "ffff")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "E_NOT_FOUND")

	_, err = executeCommand(t, "", "--root", root, "--run", "r1", "snapshot", "get", "ab")
	assert.Error(t, err)

	_, err = executeCommand(t, "", "--root", root, "--run", "r1", "snapshot", "get", strings.ToUpper(hash))
	assert.NoError(t, err)
}

func TestSnapshotCommand_GetTampered(t *testing.T) {
	root, hash := seedRun(t)
	path := filepath.Join(root, "runs", "r1", "snapshots", snapshot.FileName(model.HashValue(hash)))
	require.NoError(t, os.Chmod(path, 0o644))
	require.NoError(t, os.WriteFile(path, []byte(`{"atr":2,"close":101}`), 0o644))

	_, err := executeCommand(t, "", "--root", root, "--run", "r1", "snapshot", "get", hash)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "E_HASH_MISMATCH")
}

func TestSnapshotCommand_MissingRun(t *testing.T) {
	root, _ := seedRun(t)
	_, err := executeCommand(t, "", "--root", root, "--run", "r2", "snapshot", "ls")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Available runs: r1")
}

func TestRecordCommand_Validation(t *testing.T) {
	root, hash := seedRun(t)

	_, err := executeCommand(t, `[1,2]`, "--root", root, "--run", "r1", "record")
	assert.ErrorContains(t, err, "E_RECORD_INVALID")

	_, err = executeCommand(t, `{"facts":{}}`, "--root", root, "--run", "r1", "record")
	assert.ErrorContains(t, err, "E_RECORD_INVALID")

	_, err = executeCommand(t, `{"facts":{},"snapshot_hashes":["`+strings.Repeat("0", 64)+`"]}`,
		"--root", root, "--run", "r1", "record")
	assert.ErrorContains(t, err, "E_NOT_FOUND")

	_, err = executeCommand(t, `{"facts":{},"snapshot_hashes":["`+hash+`"]}`,
		"--root", root, "--run", "r1", "record", "--cursor", "0")
	assert.ErrorContains(t, err, "E_CURSOR_CONFLICT")

	out, err := executeCommand(t, `{"facts":{},"snapshot_hashes":["`+hash+`"]}`,
		"--root", root, "--run", "r1", "record", "--cursor", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Recorded")
}

func TestRecordCommand_SnapshotFromStdin(t *testing.T) {
	root, _ := seedRun(t)
	body := filepath.Join(root, "d-2.json")
	require.NoError(t, os.WriteFile(body, []byte(`{"decision_id":"d-2","facts":{"risk_state":"RED"}}`), 0o644))

	_, err := executeCommand(t, `{"close":90,"atr":9}`,
		"--root", root, "--run", "r1", "record", body, "--snapshot", "-")
	require.NoError(t, err)

	out, err := executeCommand(t, "", "--root", root, "--run", "r1", "snapshot", "ls")
	require.NoError(t, err)
	assert.Len(t, strings.Fields(out), 2)

	// record body and snapshot cannot both come from stdin
	_, err = executeCommand(t, `{"close":1}`, "--root", root, "--run", "r1", "record", "--snapshot", "-")
	assert.ErrorContains(t, err, "E_RECORD_INVALID")
}

func TestRecordCommand_CursorRetry(t *testing.T) {
	root, hash := seedRun(t)
	body := `{"decision_id":"d-2","facts":{"risk_state":"GREEN"},"snapshot_hashes":["` + hash + `"]}`

	_, err := executeCommand(t, body, "--root", root, "--run", "r1", "record", "--cursor", "1")
	require.NoError(t, err)
	// the retry is stamped with a new timestamp but is the same record
	_, err = executeCommand(t, strings.Replace(body, `{`, `{"timestamp":"2030-01-01T00:00:00Z",`, 1),
		"--root", root, "--run", "r1", "record", "--cursor", "1")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(root, "runs", "r1", "decision_records.jsonl"))
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "\n"))
}

func TestReplayCommand(t *testing.T) {
	root, _ := seedRun(t)
	green := decisionScript(t, `{"risk_state":"GREEN","action":"HOLD"}`)
	red := decisionScript(t, `{"risk_state":"RED","action":"HOLD"}`)

	out, err := executeCommand(t, "", "--root", root, "--run", "r1", "replay", "d-1", "--decision-cmd", green)
	require.NoError(t, err)
	assert.Contains(t, out, "match")

	out, err = executeCommand(t, "", "--root", root, "--run", "r1", "replay", "d-1", "--decision-cmd", red, "--strict", "full")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mismatch")
	assert.Contains(t, out, "risk_state")

	_, err = executeCommand(t, "", "--root", root, "--run", "r1", "replay", "nope", "--decision-cmd", green)
	assert.ErrorContains(t, err, "E_NOT_FOUND")

	_, err = executeCommand(t, "", "--root", root, "--run", "r1", "replay", "d-1")
	assert.ErrorContains(t, err, "no decision function")

	_, err = executeCommand(t, "", "--root", root, "--run", "r1", "replay", "d-1", "--decision-cmd", green, "--strict", "loose")
	assert.Error(t, err)
}

func TestAuditCommand_Accepted(t *testing.T) {
	root, _ := seedRun(t)
	green := decisionScript(t, `{"risk_state":"GREEN","action":"HOLD"}`)

	var hook []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hook, _ = io.ReadAll(r.Body)
	}))
	defer srv.Close()
	_, err := executeCommand(t, "", "--root", root, "config", "set", "webhook.url", srv.URL)
	require.NoError(t, err)

	prom := filepath.Join(t.TempDir(), "draudit.prom")
	out, err := executeCommand(t, "", "--root", root, "--run", "r1", "--json", "audit",
		"--decision-cmd", green, "--metrics-textfile", prom)
	require.NoError(t, err)

	var s model.AuditSummary
	require.NoError(t, json.Unmarshal([]byte(out), &s))
	assert.True(t, s.Accepted)
	assert.Equal(t, 1, s.Matched)
	assert.Equal(t, "r1", s.Run)

	data, err := os.ReadFile(filepath.Join(root, "runs", "r1", "audit_summary.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"accepted":true`)

	metricsText, err := os.ReadFile(prom)
	require.NoError(t, err)
	assert.Contains(t, string(metricsText), "draudit_audit_runs_total")

	assert.Contains(t, string(hook), `"event":"audit.accepted"`)
}

func TestAuditCommand_Rejected(t *testing.T) {
	root, _ := seedRun(t)
	red := decisionScript(t, `{"risk_state":"RED","action":"HOLD"}`)

	out, err := executeCommand(t, "", "--root", root, "--run", "r1", "audit", "--decision-cmd", red)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "audit rejected: 1 mismatched")
	assert.Contains(t, out, "REJECTED")
	assert.Contains(t, out, "line 1 d-1 [mismatch]")
}

func TestAuditCommand_DecisionCommandFromConfig(t *testing.T) {
	root, _ := seedRun(t)
	green := decisionScript(t, `{"risk_state":"GREEN","action":"HOLD"}`)
	_, err := executeCommand(t, "", "--root", root, "config", "set", "decision_command", green)
	require.NoError(t, err)

	out, err := executeCommand(t, "", "--root", root, "--run", "r1", "audit")
	require.NoError(t, err)
	assert.Contains(t, out, "ACCEPTED")
}

func TestDoctorCommand(t *testing.T) {
	root, hash := seedRun(t)
	out, err := executeCommand(t, "", "--root", root, "--run", "r1", "doctor")
	require.NoError(t, err)
	assert.Contains(t, out, "healthy")

	require.NoError(t, os.Remove(filepath.Join(root, "runs", "r1", "snapshots", snapshot.FileName(model.HashValue(hash)))))
	out, err = executeCommand(t, "", "--root", root, "--run", "r1", "doctor")
	require.Error(t, err)
	assert.Contains(t, out, "missing")
}

func TestMigrateCommand(t *testing.T) {
	out, err := executeCommand(t, "", "--root", t.TempDir(), "migrate", "--rules")
	require.NoError(t, err)
	assert.Contains(t, out, "v1 ")

	dir := t.TempDir()
	src := filepath.Join(dir, "old.jsonl")
	legacy := `{"schema_version":"1.0.0","decision_id":"d-1","snapshot_hash":"` + strings.Repeat("ab", 32) +
		`","decision":{"strategy":{"name":"trend","version":"2"},"action":"HOLD"}}` + "\n"
	require.NoError(t, os.WriteFile(src, []byte(legacy), 0o644))
	dst := filepath.Join(dir, "new.jsonl")

	out, err = executeCommand(t, "", "--root", dir, "migrate", src, dst)
	require.NoError(t, err)
	assert.Contains(t, out, "Migrated 1 of 1")

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"strategy_id":"trend@2"`)

	_, err = executeCommand(t, "", "--root", dir, "migrate", src, dst)
	assert.ErrorContains(t, err, "E_MIGRATION")
}

func TestDiffCommand(t *testing.T) {
	root := t.TempDir()
	a, err := executeCommand(t, `{"close":100,"atr":2}`, "--root", root, "snapshot", "put")
	require.NoError(t, err)
	b, err := executeCommand(t, `{"close":101,"atr":2,"vol":5}`, "--root", root, "snapshot", "put")
	require.NoError(t, err)

	out, err := executeCommand(t, "", "--root", root, "diff", strings.TrimSpace(a), strings.TrimSpace(b))
	require.NoError(t, err)
	assert.Contains(t, out, "~ close: 100 -> 101")
	assert.Contains(t, out, "+ vol = 5")

	out, err = executeCommand(t, "", "--root", root, "diff", "--stat", strings.TrimSpace(a), strings.TrimSpace(b))
	require.NoError(t, err)
	assert.Equal(t, "1 added, 0 removed, 1 modified\n", out)
}

func TestConfigCommand(t *testing.T) {
	root := t.TempDir()
	out, err := executeCommand(t, "", "--root", root, "config", "get", "snapshot_backend")
	require.NoError(t, err)
	assert.Equal(t, "file\n", out)

	_, err = executeCommand(t, "", "--root", root, "config", "set", "snapshot_backend", "sqlite")
	require.NoError(t, err)
	_, err = executeCommand(t, "", "--root", root, "config", "set", "snapshot_backend", "s3")
	assert.Error(t, err)
	_, err = executeCommand(t, "", "--root", root, "config", "set", "no_such_key", "1")
	assert.Error(t, err)

	_, err = executeCommand(t, "", "--root", root, "config", "set", "webhook.secret", "hunter2")
	require.NoError(t, err)
	out, err = executeCommand(t, "", "--root", root, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "snapshot_backend: sqlite")
	assert.NotContains(t, out, "hunter2")

	// sqlite backend is now used for new runs
	_, err = executeCommand(t, `{"a":1}`, "--root", root, "snapshot", "put")
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(root, "runs", "default", "snapshots.db"))
	assert.NoError(t, err)
}

func TestInfoCommand(t *testing.T) {
	root, _ := seedRun(t)
	out, err := executeCommand(t, "", "--root", root, "--run", "r1", "--json", "info")
	require.NoError(t, err)
	var info map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, []any{"r1"}, info["runs"])
	assert.Equal(t, float64(1), info["records"])
	assert.Equal(t, float64(1), info["snapshots"])
}

func TestCompletionCommand(t *testing.T) {
	out, err := executeCommand(t, "", "completion", "bash")
	require.NoError(t, err)
	assert.Contains(t, out, "draudit")
}
