package server

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"net/textproto"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
)

func fatalIfErr(t *testing.T, err error, format string, args ...interface{}) {
	t.Helper()
	if err != nil {
		t.Fatalf(format+": %v", append(args, err)...)
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fileURI returns the vfs URI of a local directory.
func fileURI(dir string) string {
	return "file://" + filepath.ToSlash(dir) + "/"
}

// testServer is a running server bound to a loopback port.
type testServer struct {
	*Server
	addr string
	root string
}

// startServer serves a fresh temporary directory.
func startServer(t *testing.T, opts ...Option) *testServer {
	t.Helper()
	root := t.TempDir()
	driver, err := NewVFSDriver(fileURI(root))
	fatalIfErr(t, err, "NewVFSDriver")
	return startServerWith(t, driver, root, opts...)
}

// startServerWith serves driver. The server is shut down when the test ends.
func startServerWith(t *testing.T, driver Driver, root string, opts ...Option) *testServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	fatalIfErr(t, err, "listen")

	base := []Option{WithDriver(driver), WithLogger(discardLogger())}
	srv, err := NewServer(ln.Addr().String(), append(base, opts...)...)
	fatalIfErr(t, err, "NewServer")

	go func() {
		_ = srv.Serve(ln)
	}()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})

	return &testServer{Server: srv, addr: ln.Addr().String(), root: root}
}

// dialControl opens a control connection and consumes the 220 banner.
func dialControl(t *testing.T, addr string) *textproto.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	fatalIfErr(t, err, "dial %s", addr)
	_ = conn.SetDeadline(time.Now().Add(10 * time.Second))

	c := textproto.NewConn(conn)
	t.Cleanup(func() { c.Close() })
	expectCode(t, c, 220)
	return c
}

// expectCode reads one (possibly multi-line) reply and checks its code.
func expectCode(t *testing.T, c *textproto.Conn, want int) string {
	t.Helper()
	code, msg, err := c.ReadResponse(0)
	fatalIfErr(t, err, "read reply (want %d)", want)
	if code != want {
		t.Fatalf("expected reply %d, got %d %s", want, code, msg)
	}
	return msg
}

// send writes a command line and checks the reply code.
func send(t *testing.T, c *textproto.Conn, want int, format string, args ...any) string {
	t.Helper()
	fatalIfErr(t, c.PrintfLine(format, args...), "send %q", format)
	return expectCode(t, c, want)
}

func login(t *testing.T, c *textproto.Conn) {
	t.Helper()
	send(t, c, 331, "USER anonymous")
	send(t, c, 230, "PASS guest@example.com")
}

// pasv sends PASV and returns the advertised data address.
func pasv(t *testing.T, c *textproto.Conn) string {
	t.Helper()
	msg := send(t, c, 227, "PASV")
	addr, err := parsePASVReply(msg)
	fatalIfErr(t, err, "parse %q", msg)
	return addr
}

func parsePASVReply(msg string) (string, error) {
	start := strings.Index(msg, "(")
	end := strings.LastIndex(msg, ")")
	if start < 0 || end < start {
		return "", &textproto.Error{Code: 227, Msg: "no address in " + msg}
	}
	host, port, err := parseHostPort(msg[start+1 : end])
	if err != nil {
		return "", err
	}
	return net.JoinHostPort(host, strconv.Itoa(port)), nil
}

// dialData connects to a passive data address.
func dialData(t *testing.T, addr string) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	fatalIfErr(t, err, "dial data %s", addr)
	_ = conn.SetDeadline(time.Now().Add(10 * time.Second))
	t.Cleanup(func() { conn.Close() })
	return conn
}

// passiveRead runs a download command in passive mode and returns the data.
func passiveRead(t *testing.T, c *textproto.Conn, format string, args ...any) string {
	t.Helper()
	data := dialData(t, pasv(t, c))
	send(t, c, 150, format, args...)
	b, err := io.ReadAll(data)
	fatalIfErr(t, err, "read data")
	expectCode(t, c, 226)
	return string(b)
}

// passiveWrite runs an upload command in passive mode.
func passiveWrite(t *testing.T, c *textproto.Conn, content string, format string, args ...any) {
	t.Helper()
	data := dialData(t, pasv(t, c))
	send(t, c, 150, format, args...)
	_, err := io.WriteString(data, content)
	fatalIfErr(t, err, "write data")
	data.Close()
	expectCode(t, c, 226)
}

// mockFilesystem is a testify mock of Filesystem.
type mockFilesystem struct {
	mock.Mock
}

// newMockFilesystem returns a mock that already answers the calls every
// session makes on open and close.
func newMockFilesystem() *mockFilesystem {
	m := &mockFilesystem{}
	m.On("Pwd").Return("/").Maybe()
	m.On("Close").Return(nil).Maybe()
	return m
}

func (m *mockFilesystem) driver() Driver {
	return DriverFunc(func() (Filesystem, error) { return m, nil })
}

func (m *mockFilesystem) ChangeDir(path string) (string, error) {
	args := m.Called(path)
	return args.String(0), args.Error(1)
}

func (m *mockFilesystem) Pwd() string {
	return m.Called().String(0)
}

func (m *mockFilesystem) List(path string) (string, error) {
	args := m.Called(path)
	return args.String(0), args.Error(1)
}

func (m *mockFilesystem) ReadFile(path string) (io.ReadCloser, error) {
	args := m.Called(path)
	rc, _ := args.Get(0).(io.ReadCloser)
	return rc, args.Error(1)
}

func (m *mockFilesystem) WriteFile(path string) (io.WriteCloser, error) {
	args := m.Called(path)
	wc, _ := args.Get(0).(io.WriteCloser)
	return wc, args.Error(1)
}

func (m *mockFilesystem) Unlink(path string) error {
	return m.Called(path).Error(0)
}

func (m *mockFilesystem) Close() error {
	return m.Called().Error(0)
}

// lockedBuffer is a bytes.Buffer safe for concurrent use.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
