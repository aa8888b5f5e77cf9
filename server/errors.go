package server

import (
	"errors"
	"io/fs"
)

// Error is an error that carries the FTP reply code the client should see.
//
// Filesystem implementations return *Error (or any error with a
// ReplyCode() int method) to pick the reply code. Errors without a code
// are reported as 550 for filesystem operations and 426 for broken
// transfers.
type Error struct {
	Code    int
	Message string
	Err     error
}

// NewError returns an *Error with the given reply code and message.
func NewError(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return StatusText(e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// ReplyCode returns the FTP reply code carried by e.
func (e *Error) ReplyCode() int { return e.Code }

type replyCoder interface {
	ReplyCode() int
}

// replyCode returns the code carried by err, or fallback if it carries none.
func replyCode(err error, fallback int) int {
	var rc replyCoder
	if errors.As(err, &rc) && rc.ReplyCode() > 0 {
		return rc.ReplyCode()
	}
	return fallback
}

// replyMessage returns the text sent to the client for err. Backend errors
// without a known meaning yield "" so the reply falls back to the default
// text for its code; their detail can name host paths and is only logged.
func replyMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		switch {
		case e.Message != "":
			return e.Message
		case e.Err == nil:
			return StatusText(e.Code)
		}
		err = e.Err
	}
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return "File not found."
	case errors.Is(err, fs.ErrPermission):
		return "Permission denied."
	case errors.Is(err, fs.ErrExist):
		return "File already exists."
	}
	return ""
}

var (
	errNoDataChannel    = NewError(425, "Use PORT or PASV first.")
	errChannelClosed    = NewError(425, "Data channel closed before the peer connected.")
	errPassiveExhausted = NewError(425, "Can't open passive connection.")
)
