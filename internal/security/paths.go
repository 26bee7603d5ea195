// Package security validates file-system paths taken from flags and
// configuration before the daemon or tools open them.
package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var ErrOutsideDirectory = errors.New("path escapes allowed directory")

// DeviceRoot is the directory serial devices must live under.
var DeviceRoot = "/dev"

// canonical resolves symlinks in p. When p does not exist yet, the nearest
// existing parent is resolved instead so a symlinked parent cannot redirect
// a new file elsewhere.
func canonical(p string) (string, error) {
	abs, err := filepath.Abs(filepath.Clean(p))
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", p, err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	for dir := filepath.Dir(abs); ; dir = filepath.Dir(dir) {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			rel, _ := filepath.Rel(dir, abs)
			return filepath.Join(resolved, rel), nil
		}
		if dir == filepath.Dir(dir) {
			return abs, nil
		}
	}
}

// WithinDirectory reports an error unless p resolves to dir or a path
// beneath it.
func WithinDirectory(p, dir string) error {
	cp, err := canonical(p)
	if err != nil {
		return err
	}
	cdir, err := canonical(dir)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(cdir, cp)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("%w: %s is not under %s", ErrOutsideDirectory, p, dir)
	}
	return nil
}

// ValidateExportPath accepts report outputs under the temp directory or the
// working directory.
func ValidateExportPath(p string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}
	for _, dir := range []string{os.TempDir(), cwd} {
		if WithinDirectory(p, dir) == nil {
			return nil
		}
	}
	return fmt.Errorf("%w: %s must be under %s or %s", ErrOutsideDirectory, p, os.TempDir(), cwd)
}

// ValidateDevicePath accepts serial devices under DeviceRoot, including
// udev symlinks such as /dev/serial/by-id/... that resolve there.
func ValidateDevicePath(p string) error {
	if !filepath.IsAbs(p) {
		return fmt.Errorf("serial device %q must be an absolute path", p)
	}
	return WithinDirectory(p, DeviceRoot)
}
