package server

import (
	"bytes"
	"errors"
	"io"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jlaffaye/ftp"
)

func dialClient(t *testing.T, addr string) *ftp.ServerConn {
	t.Helper()
	c, err := ftp.Dial(addr,
		ftp.DialWithTimeout(5*time.Second),
		ftp.DialWithDisabledEPSV(true),
	)
	fatalIfErr(t, err, "Failed to dial")
	return c
}

// TestServerIntegration performs a full end-to-end test of the server
// using a stock FTP client.
func TestServerIntegration(t *testing.T) {
	t.Parallel()
	srv := startServer(t)

	testContent := "Hello, FTP World!"
	err := os.WriteFile(filepath.Join(srv.root, "test.txt"), []byte(testContent), 0644)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(srv.root, "pub"), 0755); err != nil {
		t.Fatal(err)
	}

	c := dialClient(t, srv.addr)
	defer func() {
		if err := c.Quit(); err != nil {
			t.Logf("Quit failed: %v", err)
		}
	}()

	if err := c.Login("anonymous", "guest@example.com"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	testPWD(t, c, "/")
	testLIST(t, c, testContent)
	testRETR(t, c, "test.txt", testContent)
	testSTOR(t, c, srv.root)
	testCWD(t, c, srv.root)
	testDELE(t, c, srv.root)
}

func testPWD(t *testing.T, c *ftp.ServerConn, want string) {
	t.Helper()
	pwd, err := c.CurrentDir()
	if err != nil {
		t.Fatalf("CurrentDir failed: %v", err)
	}
	if pwd != want {
		t.Errorf("Expected %s, got %s", want, pwd)
	}
}

func testLIST(t *testing.T, c *ftp.ServerConn, testContent string) {
	t.Helper()
	entries, err := c.List("")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}

	found := false
	for _, e := range entries {
		if e.Name == "test.txt" {
			found = true
			if e.Size != uint64(len(testContent)) {
				t.Errorf("Expected size %d, got %d", len(testContent), e.Size)
			}
			if e.Type != ftp.EntryTypeFile {
				t.Errorf("Expected a file entry, got %v", e.Type)
			}
		}
	}
	if !found {
		t.Error("test.txt not found in listing")
	}
}

func testRETR(t *testing.T, c *ftp.ServerConn, name, want string) {
	t.Helper()
	r, err := c.Retr(name)
	if err != nil {
		t.Fatalf("Retr failed: %v", err)
	}
	buf, err := io.ReadAll(r)
	r.Close()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if string(buf) != want {
		t.Errorf("Expected %q, got %q", want, string(buf))
	}
}

func testSTOR(t *testing.T, c *ftp.ServerConn, rootDir string) {
	t.Helper()
	content := "Uploaded content"
	if err := c.Stor("upload.txt", bytes.NewBufferString(content)); err != nil {
		t.Fatalf("Stor failed: %v", err)
	}

	uploaded, err := os.ReadFile(filepath.Join(rootDir, "upload.txt"))
	if err != nil {
		t.Fatalf("Failed to read uploaded file: %v", err)
	}
	if string(uploaded) != content {
		t.Errorf("Expected %q, got %q", content, string(uploaded))
	}

	// Round trip through the server.
	testRETR(t, c, "upload.txt", content)
}

func testCWD(t *testing.T, c *ftp.ServerConn, rootDir string) {
	t.Helper()
	if err := c.ChangeDir("pub"); err != nil {
		t.Fatalf("ChangeDir failed: %v", err)
	}
	testPWD(t, c, "/pub")

	if err := c.Stor("inside.txt", strings.NewReader("nested")); err != nil {
		t.Fatalf("Stor in subdirectory failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(rootDir, "pub", "inside.txt")); err != nil {
		t.Errorf("Expected pub/inside.txt on disk: %v", err)
	}

	if err := c.ChangeDir("/nope"); err == nil {
		t.Error("ChangeDir to a missing directory should fail")
	}
	testPWD(t, c, "/pub")

	if err := c.ChangeDirToParent(); err != nil {
		t.Fatalf("ChangeDirToParent failed: %v", err)
	}
	testPWD(t, c, "/")

	// The root is a floor.
	if err := c.ChangeDir("../../.."); err != nil {
		t.Fatalf("ChangeDir above root failed: %v", err)
	}
	testPWD(t, c, "/")
}

func testDELE(t *testing.T, c *ftp.ServerConn, rootDir string) {
	t.Helper()
	if err := c.Delete("upload.txt"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(rootDir, "upload.txt")); !os.IsNotExist(err) {
		t.Errorf("Expected upload.txt to be gone, got %v", err)
	}
	if err := c.Delete("upload.txt"); err == nil {
		t.Error("Deleting a missing file should fail")
	}
}

func TestServer_RejectsNamedUsers(t *testing.T) {
	t.Parallel()
	srv := startServer(t)

	c := dialClient(t, srv.addr)
	defer c.Quit()

	err := c.Login("bob", "hunter2")
	var perr *textproto.Error
	if !errors.As(err, &perr) {
		t.Fatalf("Expected a protocol error, got %v", err)
	}
	if perr.Code != ftp.StatusNotLoggedIn {
		t.Errorf("Expected 530, got %d", perr.Code)
	}

	if _, err := c.CurrentDir(); err == nil {
		t.Error("PWD should fail without a login")
	}

	if err := c.Login("anonymous", "anonymous"); err != nil {
		t.Fatalf("Login failed after rejection: %v", err)
	}
	testPWD(t, c, "/")
}

func TestServer_ConcurrentSessions(t *testing.T) {
	t.Parallel()
	srv := startServer(t)
	if err := os.WriteFile(filepath.Join(srv.root, "shared.txt"), []byte("shared"), 0644); err != nil {
		t.Fatal(err)
	}

	const clients = 5
	errs := make(chan error, clients)
	for i := 0; i < clients; i++ {
		go func() {
			c, err := ftp.Dial(srv.addr, ftp.DialWithTimeout(5*time.Second), ftp.DialWithDisabledEPSV(true))
			if err != nil {
				errs <- err
				return
			}
			defer c.Quit()
			if err := c.Login("anonymous", "x"); err != nil {
				errs <- err
				return
			}
			r, err := c.Retr("shared.txt")
			if err != nil {
				errs <- err
				return
			}
			b, err := io.ReadAll(r)
			r.Close()
			if err == nil && string(b) != "shared" {
				err = errors.New("unexpected content " + string(b))
			}
			errs <- err
		}()
	}

	for i := 0; i < clients; i++ {
		if err := <-errs; err != nil {
			t.Errorf("client %d: %v", i, err)
		}
	}
}

func TestServer_Restart(t *testing.T) {
	t.Parallel()
	srv := startServer(t)

	c := dialClient(t, srv.addr)
	if err := c.Login("anonymous", "x"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if err := c.Stor("restart.txt", strings.NewReader("first")); err != nil {
		t.Fatalf("Stor failed: %v", err)
	}
	c.Quit()

	// A second session sees what the first one stored.
	c = dialClient(t, srv.addr)
	defer c.Quit()
	if err := c.Login("anonymous", "x"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	testRETR(t, c, "restart.txt", "first")
}
