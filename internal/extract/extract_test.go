package extract

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/pkg/errors"
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestReadText(t *testing.T) {
	dir := t.TempDir()
	x := New(0)

	c, err := x.Read(writeFile(t, dir, "notes.md", []byte("# Title\n\nsome notes")))
	require.NoError(t, err)
	assert.Equal(t, "# Title\n\nsome notes", c.Text)
	assert.Equal(t, "markdown", c.Metadata["format"])
	assert.Equal(t, int64(19), c.Size)

	c, err = x.Read(writeFile(t, dir, "main.go", []byte("package main\n")))
	require.NoError(t, err)
	assert.Equal(t, "text", c.Metadata["format"])
}

func TestReadInvalidUTF8(t *testing.T) {
	c, err := New(0).Read(writeFile(t, t.TempDir(), "latin1.txt", []byte("caf\xe9 menu")))
	require.NoError(t, err)
	assert.Equal(t, "caf� menu", c.Text)
}

func TestReadHTML(t *testing.T) {
	page := `<html><head><title>Deploy Guide</title><style>body{color:red}</style></head>
<body><h1>Deploying</h1><p>Run the <b>deploy</b> script.</p>
<script>var secret = "x";</script><ul><li>one</li><li>two</li></ul></body></html>`
	c, err := New(0).Read(writeFile(t, t.TempDir(), "guide.html", []byte(page)))
	require.NoError(t, err)

	assert.Equal(t, "Deploy Guide", c.Metadata["title"])
	assert.Equal(t, "html", c.Metadata["format"])
	assert.Equal(t, "Deploy Guide\nDeploying\nRun the deploy script.\none\ntwo", c.Text)
	assert.NotContains(t, c.Text, "secret")
	assert.NotContains(t, c.Text, "color")
}

func TestReadFailures(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name        string
		path        string
		unsupported bool
	}{
		{"pdf", writeFile(t, dir, "paper.pdf", []byte("%PDF-1.4")), true},
		{"docx", writeFile(t, dir, "memo.docx", []byte("PK")), true},
		{"binary", writeFile(t, dir, "blob.dat", []byte{'a', 0, 'b'}), true},
		{"too large", writeFile(t, dir, "big.txt", []byte(strings.Repeat("x", 64))), false},
		{"missing", filepath.Join(dir, "nope.txt"), false},
		{"directory", dir, false},
	}
	x := New(32)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := x.Read(tt.path)
			require.Error(t, err)

			var extErr *ExtractionError
			require.True(t, errors.As(err, &extErr))
			assert.Equal(t, tt.path, extErr.Path)
			assert.Equal(t, tt.unsupported, IsUnsupported(err))
			if !tt.unsupported {
				assert.ErrorIs(t, err, apperrors.ErrExtraction)
			}
		})
	}
}
