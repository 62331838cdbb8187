package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tradelab/draudit/internal/replay"
	"github.com/tradelab/draudit/internal/run"
	"github.com/tradelab/draudit/internal/snapshot"
	"github.com/tradelab/draudit/pkg/jsonutil"
	"github.com/tradelab/draudit/pkg/model"
)

// openRun resolves --run under --root with the configured backend.
func (a *app) openRun() (*run.Run, error) {
	return run.Open(a.root, a.runName, a.cfg.SnapshotBackend)
}

// requireRun is openRun for commands that only read an existing run.
func (a *app) requireRun() (*run.Run, error) {
	r, err := a.openRun()
	if err != nil {
		return nil, err
	}
	if err := r.RequireExisting(); err != nil {
		return nil, fmt.Errorf("%w\n%s", err, suggestRuns(a.root))
	}
	return r, nil
}

// openStore is requireRun plus its snapshot store.
func (a *app) openStore() (*run.Run, snapshot.Store, error) {
	r, err := a.requireRun()
	if err != nil {
		return nil, nil, err
	}
	store, err := r.Store()
	if err != nil {
		r.Close()
		return nil, nil, err
	}
	return r, store, nil
}

// decisionFunc builds the external decision function from --decision-cmd,
// falling back to decision_command in the config.
func (a *app) decisionFunc(flag string) (replay.DecisionFunc, error) {
	argv := strings.Fields(flag)
	if len(argv) == 0 {
		argv = a.cfg.DecisionCommand
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("no decision function: pass --decision-cmd or set decision_command")
	}
	return replay.CommandFunc(argv, nil), nil
}

// mode resolves --strict, falling back to default_mode in the config.
func (a *app) mode(flag string) (model.ReplayMode, error) {
	if flag == "" {
		flag = a.cfg.DefaultMode
	}
	return replay.ParseMode(flag)
}

// readJSON parses a file argument, or stdin for "-" or no argument.
func readJSON(stdin io.Reader, args []string) (jsonutil.Value, error) {
	var data []byte
	var err error
	if len(args) == 0 || args[0] == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return jsonutil.Value{}, fmt.Errorf("read input: %w", err)
	}
	return jsonutil.Parse(data)
}
