// Package server implements an anonymous FTP server.
//
// # Overview
//
// The package terminates FTP control connections, keeps per-connection
// session state (login, transfer type, data connection mode), negotiates
// data connections in active (PORT) or passive (PASV) mode and runs
// LIST, RETR and STOR transfers across them. Storage is reached only
// through the Driver and Filesystem interfaces.
//
// # Getting Started
//
// The easiest way to start is using the provided VFSDriver to serve a local
// directory or any other backend supported by github.com/c2fo/vfs:
//
//	package main
//
//	import (
//	    "log"
//	    "github.com/gonzalop/ftpd/server"
//	)
//
//	func main() {
//	    driver, err := server.NewVFSDriver("file:///srv/ftp/")
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    s, err := server.NewServer(":2121", server.WithDriver(driver))
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    log.Fatal(s.ListenAndServe())
//	}
//
// # Custom Drivers
//
// Implement Driver and Filesystem to serve from anything else:
//
//	type Driver interface {
//	    Open() (Filesystem, error)
//	}
//
//	type Filesystem interface {
//	    ChangeDir(path string) (string, error)
//	    Pwd() string
//	    List(path string) (string, error)
//	    ReadFile(path string) (io.ReadCloser, error)
//	    WriteFile(path string) (io.WriteCloser, error)
//	    Unlink(path string) error
//	    Close() error
//	}
//
// Return a *Error to choose the reply code the client sees:
//
//	return nil, server.NewError(450, "Archive offline, try later.")
//
// # Authentication
//
// Only the "anonymous" user can log in, with any password. Every command
// other than USER and PASS is refused with 530 until the login completes.
//
// # Passive Mode Configuration
//
// When behind NAT or in containerized environments, configure passive mode:
//
//	s, _ := server.NewServer(":21",
//	    server.WithDriver(driver),
//	    server.WithPublicHost("203.0.113.10"),
//	    server.WithPassivePortRange(30000, 30100),
//	)
//
// Each PASV picks a random free port of the range. Only one connection is
// accepted per PASV; a second connection to the same port closes the
// session with 421.
//
// # Limits and Logging
//
// Every limit is off unless set:
//
//	s, _ := server.NewServer(":2121",
//	    server.WithDriver(driver),
//	    server.WithMaxConnections(100),
//	    server.WithReadTimeout(5*time.Minute),
//	    server.WithDataTimeout(time.Hour),
//	    server.WithBandwidthLimit(512*1024),
//	    server.WithTransferLog(xferlog),
//	)
//
// Session events are logged through log/slog with session_id and
// remote_ip attached; pass WithLogger to route them elsewhere.
//
// # Common Replies
//
//   - 425 "Use PORT or PASV first.": a passive channel serves one transfer,
//     send PASV again before the next LIST, RETR or STOR
//   - 425 "No data connection received.": the data timeout expired before
//     the client connected to the passive port
//   - 421 on the control connection right after PASV: a second client
//     connected to the passive port and the session was closed
//   - 550 "Permission denied." on STOR or DELE: the driver is read-only
//
// # RFC Compliance
//
// The server implements the minimum of RFC 959 and RFC 1123 plus FEAT
// (RFC 2389). Verbs outside that set are acknowledged with 202.
package server
