package server

import "io"

// Driver provides a Filesystem for each new control connection.
//
// To serve a custom backend (database, object store, in-memory tree),
// implement Driver and Filesystem. NewVFSDriver covers every backend
// supported by github.com/c2fo/vfs.
type Driver interface {
	// Open returns the Filesystem used by one session. It is called once
	// per control connection, before the welcome banner is sent.
	Open() (Filesystem, error)
}

// DriverFunc adapts an ordinary function to the Driver interface.
type DriverFunc func() (Filesystem, error)

// Open calls f().
func (f DriverFunc) Open() (Filesystem, error) { return f() }

// Filesystem is the storage port used by one session.
//
// Paths are as sent by the client: absolute ("/pub/a.txt") or relative to
// the current working directory. All paths use forward slashes.
//
// Errors may carry a reply code by implementing ReplyCode() int (see
// Error). Errors without a code are reported as 550.
//
// A Filesystem is only used from its session's goroutine and needs no
// locking.
type Filesystem interface {
	// ChangeDir changes the working directory and returns the new one.
	ChangeDir(path string) (string, error)

	// Pwd returns the working directory.
	Pwd() string

	// List returns a formatted directory listing of path, one entry per
	// line separated by CRLF.
	List(path string) (string, error)

	// ReadFile opens path for reading.
	ReadFile(path string) (io.ReadCloser, error)

	// WriteFile opens path for writing, truncating any previous content.
	// The content is committed when the returned writer is closed.
	WriteFile(path string) (io.WriteCloser, error)

	// Unlink removes the file at path.
	Unlink(path string) error

	// Close releases resources held by the Filesystem. It is called when
	// the control connection closes.
	Close() error
}
