package replay

import (
	"fmt"
	"strings"

	"github.com/tradelab/draudit/pkg/model"
)

// ParseMode accepts "core", "full" or their "strict-" forms.
func ParseMode(s string) (model.ReplayMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "core", "strict-core":
		return model.ModeStrictCore, nil
	case "full", "strict-full":
		return model.ModeStrictFull, nil
	}
	return "", fmt.Errorf("unknown replay mode %q (want core or full)", s)
}
