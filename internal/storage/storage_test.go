package storage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"report.pdf":          "report.pdf",
		"../../etc/passwd":    "passwd",
		`C:\Users\me\a b.txt`: "a b.txt",
		"":                    "file",
		"..":                  "file",
		"bad\x00\nname.txt":   "badname.txt",
		"  spaced.txt  ":      "spaced.txt",
		"/":                   "file",
		"résumé.docx":         "résumé.docx",
	}
	for in, want := range cases {
		assert.Equal(t, want, SanitizeFilename(in), "input %q", in)
	}
}

func TestSanitizeFilename_Truncates(t *testing.T) {
	got := SanitizeFilename(strings.Repeat("é", 100))
	assert.LessOrEqual(t, len(got), maxNameBytes)
	assert.Equal(t, strings.Repeat("é", 64), got)
}

func TestBlobName(t *testing.T) {
	assert.Equal(t, "abc-report.pdf", BlobName("abc", "report.pdf"))
	assert.Equal(t, "abc-passwd", BlobName("abc", "../passwd"))
	assert.NotEqual(t, BlobName("id1", "same.txt"), BlobName("id2", "same.txt"))
}
