package server

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFilesystem(t *testing.T, options ...VFSDriverOption) (Filesystem, string) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "hello.txt"), []byte("hello"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.txt"), []byte("bb"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(root, "docs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "docs", "guide.txt"), []byte("read me"), 0o644))

	driver, err := NewVFSDriver(fileURI(root), options...)
	require.NoError(t, err)
	fsys, err := driver.Open()
	require.NoError(t, err)
	t.Cleanup(func() { fsys.Close() })
	return fsys, root
}

func TestNewVFSDriverMissingRoot(t *testing.T) {
	_, err := NewVFSDriver(fileURI(filepath.Join(t.TempDir(), "missing")))
	assert.Error(t, err)
}

func TestNewVFSDriverAddsTrailingSlash(t *testing.T) {
	root := t.TempDir()
	_, err := NewVFSDriver(strings.TrimSuffix(fileURI(root), "/"))
	assert.NoError(t, err)
}

func TestVFSChangeDir(t *testing.T) {
	fsys, _ := newTestFilesystem(t)
	assert.Equal(t, "/", fsys.Pwd())

	tests := []struct {
		path    string
		want    string
		wantErr bool
	}{
		{"docs", "/docs", false},
		{"..", "/", false},
		{"/docs/", "/docs", false},
		{"../../..", "/", false},
		{"missing", "/", true},
		{"/docs/../docs", "/docs", false},
		{"", "/docs", false},
	}
	for _, tt := range tests {
		cwd, err := fsys.ChangeDir(tt.path)
		if tt.wantErr {
			assert.Error(t, err, tt.path)
			assert.ErrorIs(t, err, fs.ErrNotExist)
			assert.Equal(t, 550, replyCode(err, 0))
		} else {
			require.NoError(t, err, tt.path)
			assert.Equal(t, tt.want, cwd, tt.path)
		}
		assert.Equal(t, tt.want, fsys.Pwd(), tt.path)
	}
}

func TestVFSList(t *testing.T) {
	fsys, _ := newTestFilesystem(t)

	listing, err := fsys.List("")
	require.NoError(t, err)
	lines := strings.Split(listing, "\r\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "-rw-r--r-- 1 ftp ftp 2 "), lines[0])
	assert.True(t, strings.HasSuffix(lines[0], " b.txt"), lines[0])
	assert.True(t, strings.HasSuffix(lines[1], " hello.txt"), lines[1])

	listing, err = fsys.List("docs")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(listing, " guide.txt"), listing)
	assert.NotContains(t, listing, "\r\n")

	listing, err = fsys.List("/hello.txt")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(listing, "-rw-r--r-- 1 ftp ftp 5 "), listing)
	assert.True(t, strings.HasSuffix(listing, " hello.txt"), listing)

	listing, err = fsys.List("docs/guide.txt")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(listing, " guide.txt"), listing)

	_, err = fsys.List("nothing-here")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestVFSChangeDirToFile(t *testing.T) {
	fsys, root := newTestFilesystem(t)
	_, err := fsys.ChangeDir("docs")
	require.NoError(t, err)

	for _, p := range []string{"guide.txt", "/hello.txt", "../b.txt"} {
		_, err := fsys.ChangeDir(p)
		require.Error(t, err, p)
		assert.Equal(t, 550, replyCode(err, 0), p)
		assert.Equal(t, "Not a directory.", replyMessage(err), p)
		assert.NotContains(t, replyMessage(err), root, p)
		assert.Equal(t, "/docs", fsys.Pwd(), p)
	}
}

func TestFileErrorsHideRoot(t *testing.T) {
	t.Parallel()
	srv := startServer(t)
	writeFile(t, srv.root, "hello.txt", "hello")
	require.NoError(t, os.Mkdir(filepath.Join(srv.root, "docs"), 0o755))
	writeFile(t, srv.root, filepath.Join("docs", "guide.txt"), "read me")

	c := dialControl(t, srv.addr)
	login(t, c)

	msg := send(t, c, 550, "CWD hello.txt")
	assert.Equal(t, "Not a directory.", msg)

	// Removing a non-empty directory fails in the backend.
	msg = send(t, c, 550, "DELE docs")
	assert.NotContains(t, msg, srv.root)
	assert.NotContains(t, msg, "docs")

	listing := passiveRead(t, c, "LIST hello.txt")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(listing), " hello.txt"), listing)
	send(t, c, 257, "PWD")
}

func TestVFSReadWrite(t *testing.T) {
	fsys, root := newTestFilesystem(t)

	r, err := fsys.ReadFile("hello.txt")
	require.NoError(t, err)
	b, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, "hello", string(b))

	_, err = fsys.ReadFile("nope.txt")
	assert.ErrorIs(t, err, fs.ErrNotExist)

	_, err = fsys.ReadFile("/")
	assert.Equal(t, 550, replyCode(err, 0))

	_, err = fsys.ChangeDir("docs")
	require.NoError(t, err)
	w, err := fsys.WriteFile("new.txt")
	require.NoError(t, err)
	_, err = io.WriteString(w, "fresh")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	b, err = os.ReadFile(filepath.Join(root, "docs", "new.txt"))
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(b))

	// Paths cannot escape the root.
	w, err = fsys.WriteFile("../../../escape.txt")
	require.NoError(t, err)
	_, err = io.WriteString(w, "contained")
	require.NoError(t, err)
	require.NoError(t, w.Close())
	_, err = os.Stat(filepath.Join(root, "escape.txt"))
	assert.NoError(t, err)
}

func TestVFSUnlink(t *testing.T) {
	fsys, root := newTestFilesystem(t)

	require.NoError(t, fsys.Unlink("hello.txt"))
	_, err := os.Stat(filepath.Join(root, "hello.txt"))
	assert.True(t, os.IsNotExist(err))

	err = fsys.Unlink("hello.txt")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestVFSReadOnly(t *testing.T) {
	fsys, root := newTestFilesystem(t, WithReadOnly(true))

	_, err := fsys.WriteFile("x.txt")
	assert.ErrorIs(t, err, fs.ErrPermission)
	assert.Equal(t, 550, replyCode(err, 0))

	err = fsys.Unlink("hello.txt")
	assert.ErrorIs(t, err, fs.ErrPermission)
	_, err = os.Stat(filepath.Join(root, "hello.txt"))
	assert.NoError(t, err)

	// Reads still work.
	r, err := fsys.ReadFile("hello.txt")
	require.NoError(t, err)
	r.Close()
}

func TestVFSSessionsAreIndependent(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "a"), 0o755))
	driver, err := NewVFSDriver(fileURI(root))
	require.NoError(t, err)

	one, err := driver.Open()
	require.NoError(t, err)
	two, err := driver.Open()
	require.NoError(t, err)

	_, err = one.ChangeDir("a")
	require.NoError(t, err)
	assert.Equal(t, "/a", one.Pwd())
	assert.Equal(t, "/", two.Pwd())
}
