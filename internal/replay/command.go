package replay

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/tradelab/draudit/pkg/jsonutil"
)

const stderrTail = 512

// CommandFunc adapts an external program into a DecisionFunc. The program
// receives the snapshots as one canonical JSON array on stdin and must
// print the recomputed facts object as JSON on stdout. It is killed when
// ctx ends.
func CommandFunc(argv []string, env []string) DecisionFunc {
	return func(ctx context.Context, snapshots []jsonutil.Value) (jsonutil.Value, error) {
		if len(argv) == 0 {
			return jsonutil.Value{}, fmt.Errorf("empty decision command")
		}
		input, err := jsonutil.Canonicalize(jsonutil.Array(snapshots...))
		if err != nil {
			return jsonutil.Value{}, err
		}

		cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
		cmd.Env = append(os.Environ(), env...)
		cmd.Stdin = bytes.NewReader(input)
		cmd.WaitDelay = time.Second
		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		if err := cmd.Run(); err != nil {
			if ctx.Err() != nil {
				return jsonutil.Value{}, ctx.Err()
			}
			return jsonutil.Value{}, fmt.Errorf("%s: %w%s", argv[0], err, tail(stderr.Bytes()))
		}
		facts, err := jsonutil.Parse(bytes.TrimSpace(stdout.Bytes()))
		if err != nil {
			return jsonutil.Value{}, fmt.Errorf("%s: decode output: %w", argv[0], err)
		}
		return facts, nil
	}
}

func tail(b []byte) string {
	s := strings.TrimSpace(string(b))
	if s == "" {
		return ""
	}
	if len(s) > stderrTail {
		s = "..." + s[len(s)-stderrTail:]
	}
	return ": " + s
}
