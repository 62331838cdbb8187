package main

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// getProjectRoot returns the absolute path to the project root.
func getProjectRoot(t *testing.T) string {
	dir, err := os.Getwd()
	require.NoError(t, err)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	t.Fatal("go.mod not found")
	return ""
}

// buildBinary compiles cmd/draudit into a temp dir.
func buildBinary(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping build test in short mode")
	}
	if _, err := exec.LookPath("go"); err != nil {
		t.Skip("go toolchain not on PATH")
	}
	binPath := filepath.Join(t.TempDir(), "draudit")
	buildCmd := exec.Command("go", "build", "-o", binPath, ".")
	buildCmd.Dir = filepath.Join(getProjectRoot(t), "cmd", "draudit")
	output, err := buildCmd.CombinedOutput()
	require.NoError(t, err, "build failed: %s", string(output))
	return binPath
}

func TestMainEntryPoints(t *testing.T) {
	_ = main
}

func TestMainHelpFlag(t *testing.T) {
	bin := buildBinary(t)
	out, err := exec.Command(bin, "--help").CombinedOutput()
	require.NoError(t, err)
	assert.Contains(t, string(out), "draudit")
	assert.Contains(t, string(out), "replay")
}

func TestMainUnknownCommand(t *testing.T) {
	bin := buildBinary(t)
	out, err := exec.Command(bin, "unknown-command-xyz").CombinedOutput()
	assert.Error(t, err)
	assert.Contains(t, strings.ToLower(string(out)), "unknown")
}

func TestBinaryExitCodes(t *testing.T) {
	bin := buildBinary(t)
	root := t.TempDir()
	snap := filepath.Join(root, "snap.json")
	require.NoError(t, os.WriteFile(snap, []byte(`{"close":100,"atr":2}`), 0o644))

	cmd := exec.Command(bin, "--root", root, "--no-color", "snapshot", "put", snap)
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, string(out))
	assert.Len(t, strings.TrimSpace(string(out)), 64)

	cmd = exec.Command(bin, "--root", root, "snapshot", "get", strings.Repeat("0", 64))
	out, err = cmd.CombinedOutput()
	require.Error(t, err)
	var exitErr *exec.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 1, exitErr.ExitCode())
	assert.Contains(t, string(out), "E_NOT_FOUND")
}
