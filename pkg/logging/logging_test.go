package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) {
	return 0, errors.New("disk full")
}

func TestMultiWriter(t *testing.T) {
	var a, b bytes.Buffer
	mw := NewMultiWriter(&a, failingWriter{})
	mw.Add(&b)
	n, err := mw.Write([]byte("hello"))
	assert.Error(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", a.String())
	assert.Equal(t, "hello", b.String())
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log, _, err := NewLogger("info", &buf)
	require.NoError(t, err)
	log.Debug().Msg("hidden")
	log.Info().Msg("visible")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "visible")

	_, _, err = NewLogger("loud")
	assert.Error(t, err)
}

func TestFileWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "localgpio.log")
	w := NewFileWriter(path)
	_, err := w.Write([]byte("line\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "line\n", string(data))
}
