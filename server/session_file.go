package server

import (
	"fmt"
	"strings"
)

// quotePath quotes a pathname for a 257 reply. Embedded quotes are doubled
// (RFC 959 appendix II).
func quotePath(p string) string {
	return `"` + strings.ReplaceAll(p, `"`, `""`) + `"`
}

func (s *session) handlePWD(_ []string) {
	s.reply(257, quotePath(s.fs.Pwd()))
}

func (s *session) handleCWD(args []string) {
	s.changeDir(pathArg(args))
}

func (s *session) handleCDUP(_ []string) {
	s.changeDir("..")
}

func (s *session) changeDir(path string) {
	cwd, err := s.fs.ChangeDir(path)
	if err != nil {
		s.replyError(err, 550)
		return
	}
	s.reply(250, fmt.Sprintf("Directory changed to %s", quotePath(cwd)))
}

func (s *session) handleLIST(args []string) {
	path := pathArg(args)
	s.transfer("LIST", path, func(dc *dataConn) error {
		listing, err := s.fs.List(path)
		if err != nil {
			return withCode(err, 550)
		}
		return dc.send(strings.NewReader(listing + "\r\n"))
	})
}

func (s *session) handleRETR(args []string) {
	path := pathArg(args)
	s.transfer("RETR", path, func(dc *dataConn) error {
		r, err := s.fs.ReadFile(path)
		if err != nil {
			return withCode(err, 550)
		}
		defer r.Close()
		return dc.send(r)
	})
}

func (s *session) handleSTOR(args []string) {
	path := pathArg(args)
	s.transfer("STOR", path, func(dc *dataConn) error {
		w, err := s.fs.WriteFile(path)
		if err != nil {
			return withCode(err, 550)
		}
		if err := dc.receive(w); err != nil {
			// Backends commit on Close, so the partial file is removed.
			w.Close()
			if uerr := s.fs.Unlink(path); uerr != nil {
				s.logger.Warn("partial upload not removed", "user", s.user, "path", path, "error", uerr)
			}
			return err
		}
		if err := w.Close(); err != nil {
			return withCode(fmt.Errorf("commit %s: %w", path, err), 451)
		}
		return nil
	})
}

func (s *session) handleDELE(args []string) {
	path := pathArg(args)
	if err := s.fs.Unlink(path); err != nil {
		s.replyError(err, 550)
		return
	}
	s.logger.Info("file_deleted", "user", s.user, "path", path)
	s.reply(250, "")
}

// withCode attaches code to err unless it already carries one.
func withCode(err error, code int) error {
	if replyCode(err, 0) != 0 {
		return err
	}
	return &Error{Code: code, Message: replyMessage(err), Err: err}
}
