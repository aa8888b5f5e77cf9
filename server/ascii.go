package server

import (
	"io"

	"golang.org/x/text/transform"
)

// asciiEncoder converts LF to CRLF for data sent to the client
// (LIST, RETR). A CR already in front of an LF is kept, so files that are
// already CRLF are not doubled.
type asciiEncoder struct {
	prevWasCR bool
}

func (e *asciiEncoder) Reset() { e.prevWasCR = false }

func (e *asciiEncoder) Transform(dst, src []byte, _ bool) (nDst, nSrc int, err error) {
	for nSrc < len(src) {
		b := src[nSrc]
		if b == '\n' && !e.prevWasCR {
			if nDst+2 > len(dst) {
				return nDst, nSrc, transform.ErrShortDst
			}
			dst[nDst] = '\r'
			dst[nDst+1] = '\n'
			nDst += 2
		} else {
			if nDst+1 > len(dst) {
				return nDst, nSrc, transform.ErrShortDst
			}
			dst[nDst] = b
			nDst++
		}
		e.prevWasCR = b == '\r'
		nSrc++
	}
	return nDst, nSrc, nil
}

// asciiDecoder converts CRLF to LF for data received from the client
// (STOR). A CR not followed by LF is kept.
type asciiDecoder struct {
	transform.NopResetter
}

func (asciiDecoder) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	for nSrc < len(src) {
		b := src[nSrc]
		if b == '\r' {
			if nSrc+1 == len(src) {
				if !atEOF {
					// Need the next byte to decide.
					return nDst, nSrc, transform.ErrShortSrc
				}
			} else if src[nSrc+1] == '\n' {
				nSrc++
				continue
			}
		}
		if nDst >= len(dst) {
			return nDst, nSrc, transform.ErrShortDst
		}
		dst[nDst] = b
		nDst++
		nSrc++
	}
	return nDst, nSrc, nil
}

// newASCIIReader returns a reader yielding r with LF translated to CRLF.
func newASCIIReader(r io.Reader) io.Reader {
	return transform.NewReader(r, &asciiEncoder{})
}

// newASCIIWriter returns a writer that stores CRLF as LF into w. The
// returned writer must be closed to flush a trailing CR.
func newASCIIWriter(w io.Writer) io.WriteCloser {
	return transform.NewWriter(w, asciiDecoder{})
}
