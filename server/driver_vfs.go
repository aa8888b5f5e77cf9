package server

import (
	"fmt"
	"io"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/c2fo/vfs/v7"
	_ "github.com/c2fo/vfs/v7/backend/all" // register all backends
	"github.com/c2fo/vfs/v7/utils"
	"github.com/c2fo/vfs/v7/vfssimple"
)

// VFSDriver implements Driver on top of a vfs.Location, so the FTP root can
// live on any backend supported by github.com/c2fo/vfs: local disk
// (file://), memory (mem://), S3 (s3://), Google Cloud Storage (gs://),
// Azure Blob Storage (az://), SFTP (sftp://) or another FTP server (ftp://).
//
// Security Model:
//   - Every path is resolved against a virtual "/" and cleaned before it
//     reaches the backend, so "../" can never leave the root location
//   - Each session gets its own working directory
//   - Read-only mode rejects STOR and DELE with 550
//
// vfs has no notion of directories as objects: LIST shows the files of a
// location, and CWD succeeds for any location that exists.
type VFSDriver struct {
	root     vfs.Location
	readOnly bool
}

// VFSDriverOption is a functional option for configuring a VFSDriver.
type VFSDriverOption func(*VFSDriver)

// WithReadOnly rejects every write operation with 550.
func WithReadOnly(readOnly bool) VFSDriverOption {
	return func(d *VFSDriver) {
		d.readOnly = readOnly
	}
}

// NewVFSDriver creates a driver rooted at the location named by rootURI.
// The URI is resolved with vfssimple, so backends needing credentials pick
// them up from their usual environment variables.
//
// Example:
//
//	driver, err := server.NewVFSDriver("file:///srv/ftp/")
//	driver, err := server.NewVFSDriver("s3://my-bucket/public/")
func NewVFSDriver(rootURI string, options ...VFSDriverOption) (*VFSDriver, error) {
	loc, err := vfssimple.NewLocation(utils.EnsureTrailingSlash(rootURI))
	if err != nil {
		return nil, fmt.Errorf("root location %q: %w", rootURI, err)
	}
	return NewVFSDriverAt(loc, options...)
}

// NewVFSDriverAt creates a driver rooted at an already configured location.
func NewVFSDriverAt(root vfs.Location, options ...VFSDriverOption) (*VFSDriver, error) {
	exists, err := root.Exists()
	if err != nil {
		return nil, fmt.Errorf("root location validation failed: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("root location does not exist: %s", root.URI())
	}

	d := &VFSDriver{root: root}
	for _, opt := range options {
		opt(d)
	}
	return d, nil
}

// Open returns a Filesystem whose working directory starts at "/".
func (d *VFSDriver) Open() (Filesystem, error) {
	return &vfsFilesystem{
		root:     d.root,
		cwd:      "/",
		readOnly: d.readOnly,
	}, nil
}

// vfsFilesystem implements Filesystem for one session.
type vfsFilesystem struct {
	root     vfs.Location
	cwd      string
	readOnly bool
}

var (
	errIsDirectory  = NewError(550, "Not a plain file.")
	errNotDirectory = NewError(550, "Not a directory.")
	errReadOnly     = &Error{Code: 550, Message: "Permission denied.", Err: fs.ErrPermission}
	errFileNotFound = &Error{Code: 550, Message: "File not found.", Err: fs.ErrNotExist}
	errDirNotFound  = &Error{Code: 550, Message: "No such directory.", Err: fs.ErrNotExist}
)

// resolve maps a client path to a clean absolute virtual path.
// Cleaning "/.." yields "/", which keeps every result inside the root.
func (f *vfsFilesystem) resolve(p string) string {
	if !path.IsAbs(p) {
		p = path.Join(f.cwd, p)
	}
	return path.Clean("/" + p)
}

func (f *vfsFilesystem) location(virtual string) (vfs.Location, error) {
	if virtual == "/" {
		return f.root, nil
	}
	return f.root.NewLocation(strings.TrimPrefix(virtual, "/") + "/")
}

func (f *vfsFilesystem) file(p string) (vfs.File, error) {
	virtual := f.resolve(p)
	if virtual == "/" {
		return nil, errIsDirectory
	}
	return f.root.NewFile(strings.TrimPrefix(virtual, "/"))
}

// dirExists reports whether virtual names an existing location.
func (f *vfsFilesystem) dirExists(virtual string) (bool, error) {
	loc, err := f.location(virtual)
	if err != nil {
		return false, err
	}
	return loc.Exists()
}

// fileAt returns the file at virtual if one exists there.
func (f *vfsFilesystem) fileAt(virtual string) (vfs.File, bool) {
	file, err := f.file(virtual)
	if err != nil {
		return nil, false
	}
	ok, err := file.Exists()
	return file, err == nil && ok
}

func (f *vfsFilesystem) ChangeDir(p string) (string, error) {
	virtual := f.resolve(p)
	exists, err := f.dirExists(virtual)
	if err != nil || !exists {
		if _, ok := f.fileAt(virtual); ok {
			return "", errNotDirectory
		}
		if err != nil {
			return "", fmt.Errorf("cwd %s: %w", virtual, err)
		}
		return "", errDirNotFound
	}
	f.cwd = virtual
	return f.cwd, nil
}

func (f *vfsFilesystem) Pwd() string {
	return f.cwd
}

func (f *vfsFilesystem) List(p string) (string, error) {
	virtual := f.resolve(p)
	exists, err := f.dirExists(virtual)
	if err != nil || !exists {
		// LIST of a single file lists just that file.
		if file, ok := f.fileAt(virtual); ok {
			return listEntry(file)
		}
		if err != nil {
			return "", fmt.Errorf("list %s: %w", virtual, err)
		}
		return "", errDirNotFound
	}

	loc, err := f.location(virtual)
	if err != nil {
		return "", err
	}
	names, err := loc.List()
	if err != nil {
		return "", err
	}
	sort.Strings(names)

	lines := make([]string, 0, len(names))
	for _, name := range names {
		file, err := loc.NewFile(name)
		if err != nil {
			return "", err
		}
		line, err := listEntry(file)
		if err != nil {
			return "", err
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\r\n"), nil
}

// listEntry formats file as a Unix "ls -l" line, which every FTP client
// knows how to parse.
func listEntry(file vfs.File) (string, error) {
	size, err := file.Size()
	if err != nil {
		return "", err
	}
	modTime := time.Time{}
	if mod, err := file.LastModified(); err == nil && mod != nil {
		modTime = *mod
	}
	return fmt.Sprintf("-rw-r--r-- 1 ftp ftp %d %s %s",
		size, modTime.Format("Jan 02 15:04"), file.Name()), nil
}

func (f *vfsFilesystem) ReadFile(p string) (io.ReadCloser, error) {
	file, err := f.file(p)
	if err != nil {
		return nil, err
	}
	exists, err := file.Exists()
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, errFileNotFound
	}
	return file, nil
}

func (f *vfsFilesystem) WriteFile(p string) (io.WriteCloser, error) {
	if f.readOnly {
		return nil, errReadOnly
	}
	return f.file(p)
}

func (f *vfsFilesystem) Unlink(p string) error {
	if f.readOnly {
		return errReadOnly
	}
	virtual := f.resolve(p)
	file, err := f.file(virtual)
	if err != nil {
		return err
	}
	exists, err := file.Exists()
	if err != nil {
		return err
	}
	if !exists {
		return errFileNotFound
	}
	if err := file.Delete(); err != nil {
		return fmt.Errorf("delete %s: %w", virtual, err)
	}
	return nil
}

func (f *vfsFilesystem) Close() error {
	return nil
}
