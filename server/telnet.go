package server

import (
	"bufio"
	"errors"
	"io"
)

const (
	// telnetIAC is Interpret As Command
	telnetIAC = 0xFF
	// telnetWILL negotiation command
	telnetWILL = 0xFB
	// telnetWONT negotiation command
	telnetWONT = 0xFC
	// telnetDO negotiation command
	telnetDO = 0xFD
	// telnetDONT negotiation command
	telnetDONT = 0xFE
)

// MaxCommandLength is the maximum length of a command line.
const MaxCommandLength = 4096

var errLineTooLong = errors.New("command line too long")

// lineReader reads command lines from the control connection, dropping
// Telnet negotiation sequences (RFC 854) the way RFC 959 requires.
type lineReader struct {
	r   *bufio.Reader
	max int
}

func newLineReader(r io.Reader, max int) *lineReader {
	return &lineReader{r: bufio.NewReader(r), max: max}
}

// ReadLine returns the next line without its terminator. Lines end at LF;
// a CR before the LF is dropped. A line longer than max returns
// errLineTooLong.
//
// An error after a partial line returns the partial line together with the
// error.
func (lr *lineReader) ReadLine() (string, error) {
	line := make([]byte, 0, 64)
	for {
		b, err := lr.r.ReadByte()
		if err != nil {
			return string(line), err
		}

		if b == telnetIAC {
			next, err := lr.r.ReadByte()
			if err != nil {
				return string(line), err
			}
			switch next {
			case telnetIAC:
				// Escaped 0xFF is data.
			case telnetWILL, telnetWONT, telnetDO, telnetDONT:
				// IAC CMD OPT
				if _, err := lr.r.ReadByte(); err != nil {
					return string(line), err
				}
				continue
			default:
				continue
			}
		}

		if b == '\n' {
			if n := len(line); n > 0 && line[n-1] == '\r' {
				line = line[:n-1]
			}
			return string(line), nil
		}

		if len(line) >= lr.max {
			return "", errLineTooLong
		}
		line = append(line, b)
	}
}
