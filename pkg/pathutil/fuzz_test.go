package pathutil_test

import (
	"strings"
	"testing"

	"github.com/tradelab/draudit/pkg/pathutil"
)

// FuzzValidateName checks that accepted run names can never leave the runs
// directory.
func FuzzValidateName(f *testing.F) {
	for _, seed := range []string{"", "r1", "..", "../escape", "a/b", `a\b`, "a\tb", "a\x00b", "2024-06-01"} {
		f.Add(seed)
	}
	f.Fuzz(func(t *testing.T, name string) {
		if err := pathutil.ValidateName(name); err != nil {
			return
		}
		if strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
			t.Errorf("accepted unsafe name %q", name)
		}
	})
}

func FuzzValidateIdentifier(f *testing.F) {
	for _, seed := range []string{"", "d-1", " d", "é", "é", "x\ny"} {
		f.Add(seed)
	}
	f.Fuzz(func(t *testing.T, id string) {
		err := pathutil.ValidateIdentifier(id)
		if err == nil && (id == "" || strings.TrimSpace(id) != id) {
			t.Errorf("accepted %q", id)
		}
	})
}
