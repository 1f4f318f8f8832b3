package device

import (
	"strings"
	"unicode"

	"github.com/sequence-downloader/setupusb/pkg/errors"
)

// NormalizeID extracts the single-letter device identifier from "E", "e:",
// `E:\` or any path rooted at a drive letter.
func NormalizeID(hint string) (string, bool) {
	s := strings.TrimSpace(hint)
	if s == "" {
		return "", false
	}

	r := []rune(s)
	switch {
	case len(r) == 1:
	case len(r) >= 2 && r[1] == ':':
	default:
		return "", false
	}
	if r[0] > unicode.MaxASCII || !unicode.IsLetter(r[0]) {
		return "", false
	}
	return strings.ToUpper(string(r[0])), true
}

// ResolveID picks the target identifier from the explicit hint, falling back
// to the directory holding the running executable.
func ResolveID(hint, executableDir string) (string, error) {
	if strings.TrimSpace(hint) != "" {
		if id, ok := NormalizeID(hint); ok {
			return id, nil
		}
		return "", &errors.Error{
			Kind: errors.KindUsage,
			Msg:  "Invalid drive '" + hint + "'. Use --drive E: to specify one.",
			Err:  ErrNotFound,
		}
	}
	if id, ok := NormalizeID(executableDir); ok {
		return id, nil
	}
	return "", &errors.Error{
		Kind: errors.KindDevice,
		Msg:  "Unable to determine target drive. Use --drive E: to specify one.",
		Err:  ErrNotFound,
	}
}

// RootOf returns the filesystem root of drive id, e.g. `E:\`.
func RootOf(id string) string {
	return id + `:\`
}
