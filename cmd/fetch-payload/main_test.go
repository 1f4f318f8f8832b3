package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseChecksums(t *testing.T) {
	sum := strings.Repeat("AB", 32)

	got, err := parseChecksums([]string{"SequenceDownloaderUSB.exe=" + sum})
	require.NoError(t, err)
	assert.Equal(t, strings.ToLower(sum), got["SequenceDownloaderUSB.exe"])

	notHex := strings.Repeat("ab", 31) + "zz"
	for _, bad := range []string{"noequals", "=" + sum, "README.txt=abc", "README.txt=" + notHex} {
		_, err := parseChecksums([]string{bad})
		assert.Error(t, err, bad)
	}
}
