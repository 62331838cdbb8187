//go:build windows

package decisionlog

import "os"

// lockFile is a no-op on Windows; the in-process mutex serializes writers
// within one producer.
func lockFile(_ *os.File) error   { return nil }
func unlockFile(_ *os.File) error { return nil }
