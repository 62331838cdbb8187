// Package pathutil provides name, identifier and path validation.
package pathutil

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/tradelab/draudit/pkg/errclass"
)

var nameRegex = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// MaxIdentifierLen bounds decision identifiers in bytes.
const MaxIdentifierLen = 256

// ValidateName checks that a run name is safe to use as a directory name.
func ValidateName(name string) error {
	if name == "" {
		return errclass.ErrNameInvalid.WithMessage("name must not be empty")
	}

	name = norm.NFC.String(name)

	if name == ".." || strings.Contains(name, "..") {
		return errclass.ErrNameInvalid.WithMessagef("name must not contain '..': %s", name)
	}

	if strings.ContainsAny(name, "/\\") {
		return errclass.ErrNameInvalid.WithMessagef("name must not contain separators: %s", name)
	}

	for _, r := range name {
		if unicode.IsControl(r) {
			return errclass.ErrNameInvalid.WithMessagef("name must not contain control characters: %q", name)
		}
	}

	if !nameRegex.MatchString(name) {
		return errclass.ErrNameInvalid.WithMessagef("name must match [a-zA-Z0-9._-]+: %s", name)
	}

	return nil
}

// ValidateIdentifier checks a decision identifier. Identifiers are compared
// byte-wise, so they must already be in Unicode NFC form.
func ValidateIdentifier(id string) error {
	if id == "" {
		return errclass.ErrNameInvalid.WithMessage("identifier must not be empty")
	}
	if len(id) > MaxIdentifierLen {
		return errclass.ErrNameInvalid.WithMessagef("identifier longer than %d bytes", MaxIdentifierLen)
	}
	if !utf8.ValidString(id) {
		return errclass.ErrNameInvalid.WithMessagef("identifier is not valid UTF-8: %q", id)
	}
	if !norm.NFC.IsNormalString(id) {
		return errclass.ErrNameInvalid.WithMessagef("identifier is not NFC-normalized: %q", id)
	}
	if strings.TrimSpace(id) != id {
		return errclass.ErrNameInvalid.WithMessagef("identifier has surrounding whitespace: %q", id)
	}
	for _, r := range id {
		if unicode.IsControl(r) {
			return errclass.ErrNameInvalid.WithMessagef("identifier must not contain control characters: %q", id)
		}
	}
	return nil
}

// ValidatePathSafety verifies target path does not escape root.
func ValidatePathSafety(root, targetPath string) error {
	resolvedRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return errclass.ErrPathEscape.WithMessagef("cannot resolve root: %v", err)
	}

	resolvedTarget, err := filepath.EvalSymlinks(targetPath)
	if err != nil {
		if os.IsNotExist(err) {
			resolvedTarget = resolveClosestAncestor(targetPath)
		} else {
			return errclass.ErrPathEscape.WithMessagef("cannot resolve target: %v", err)
		}
	}

	if !strings.HasPrefix(resolvedTarget+string(filepath.Separator), resolvedRoot+string(filepath.Separator)) &&
		resolvedTarget != resolvedRoot {
		return errclass.ErrPathEscape.WithMessagef("path escapes root: %s", targetPath)
	}

	return nil
}

// resolveClosestAncestor walks up from path to find the closest existing
// ancestor, resolves it, then appends the remaining components.
func resolveClosestAncestor(path string) string {
	dir := filepath.Dir(path)
	base := filepath.Base(path)

	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		if os.IsNotExist(err) && dir != path {
			resolved = resolveClosestAncestor(dir)
		} else {
			return filepath.Clean(path)
		}
	}
	return filepath.Join(resolved, base)
}
