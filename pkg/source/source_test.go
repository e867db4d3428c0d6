package source

import (
	"bytes"
	"compress/gzip"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/comet/pkg/cometerrors"
)

func load(t *testing.T, src interface{}, opts *Options) *Buffer {
	t.Helper()
	buf, err := Load(context.Background(), src, opts)
	require.NoError(t, err)
	t.Cleanup(func() { buf.Close() })
	return buf
}

func TestLoadBytes(t *testing.T) {
	t.Run("plain", func(t *testing.T) {
		buf := load(t, []byte("a,b\n1,2\n"), nil)
		assert.Equal(t, "<memory>", buf.Name)
		assert.Equal(t, "a,b\n1,2\n", string(buf.Bytes()))
	})

	t.Run("bom stripped", func(t *testing.T) {
		buf := load(t, []byte("\xEF\xBB\xBFa\n1\n"), nil)
		assert.Equal(t, 3, buf.Start)
		assert.Equal(t, "a\n1\n", string(buf.Bytes()))
	})

	t.Run("gzip decompressed", func(t *testing.T) {
		var z bytes.Buffer
		w := gzip.NewWriter(&z)
		_, err := w.Write([]byte("a\n1\n2\n"))
		require.NoError(t, err)
		require.NoError(t, w.Close())

		buf := load(t, z.Bytes(), nil)
		assert.Equal(t, "a\n1\n2\n", string(buf.Bytes()))
	})
}

func TestLoadPath(t *testing.T) {
	write := func(t *testing.T, name, content string) string {
		t.Helper()
		path := filepath.Join(t.TempDir(), name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		return path
	}

	t.Run("read", func(t *testing.T) {
		path := write(t, "in.csv", "a\n1\n")
		buf := load(t, path, &Options{UseMmap: MmapOff})
		assert.Equal(t, path, buf.Name)
		assert.Equal(t, "a\n1\n", string(buf.Bytes()))
	})

	t.Run("mmap", func(t *testing.T) {
		path := write(t, "in.csv", "a\n1\n2\n")
		buf := load(t, path, &Options{UseMmap: MmapOn})
		assert.Equal(t, "a\n1\n2\n", string(buf.Bytes()))
	})

	t.Run("gzip by extension content", func(t *testing.T) {
		var z bytes.Buffer
		w := gzip.NewWriter(&z)
		_, err := w.Write([]byte("a\n1\n"))
		require.NoError(t, err)
		require.NoError(t, w.Close())
		path := write(t, "in.csv.gz", z.String())

		buf := load(t, path, nil)
		assert.Equal(t, "a\n1\n", string(buf.Bytes()))
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(context.Background(), filepath.Join(t.TempDir(), "nope.csv"), nil)
		require.Error(t, err)
		assert.True(t, cometerrors.IsType(err, cometerrors.ErrorTypeSource))
	})
}

func TestLoadReader(t *testing.T) {
	buf := load(t, bytes.NewReader([]byte("a\n1\n")), nil)
	assert.Equal(t, "<stream>", buf.Name)
	assert.Equal(t, "a\n1\n", string(buf.Bytes()))
}

func TestLoadCmd(t *testing.T) {
	cmd := exec.Command("echo", "a,b")
	buf := load(t, cmd, nil)
	assert.Equal(t, "a,b\n", string(buf.Bytes()))
}

func TestLoadErrors(t *testing.T) {
	t.Run("unsupported type", func(t *testing.T) {
		_, err := Load(context.Background(), 42, nil)
		require.Error(t, err)
		assert.True(t, cometerrors.IsType(err, cometerrors.ErrorTypeSource))
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := Load(ctx, []byte("a\n"), nil)
		require.Error(t, err)
		assert.True(t, cometerrors.IsType(err, cometerrors.ErrorTypeSource))
	})
}

func TestTrimFooter(t *testing.T) {
	t.Run("drops trailing rows", func(t *testing.T) {
		buf := load(t, []byte("a\n1\n2\ntotal\n"), &Options{FooterSkip: 1})
		assert.Equal(t, "a\n1\n2\n", string(buf.Bytes()))
	})

	t.Run("multiple rows", func(t *testing.T) {
		buf := load(t, []byte("a\n1\nsub\ntotal\n"), &Options{FooterSkip: 2})
		assert.Equal(t, "a\n1\n", string(buf.Bytes()))
	})

	t.Run("quoted newline is not a boundary", func(t *testing.T) {
		buf := load(t, []byte("a\n\"x\ny\"\nz\n"), &Options{FooterSkip: 1})
		assert.Equal(t, "a\n\"x\ny\"\n", string(buf.Bytes()))
	})

	t.Run("skip beyond input empties the buffer", func(t *testing.T) {
		buf := load(t, []byte("a\n1\n"), &Options{FooterSkip: 5})
		assert.Empty(t, buf.Bytes())
	})
}
