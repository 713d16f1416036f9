package parser

import (
	"bufio"
	"io"
	"regexp"
	"time"
)

// Line is one parsed log line: "<timestamp> <source> <rest>"
type Line struct {
	Timestamp time.Time
	Source    string
	Rest      string
}

var linePrefix = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}T[0-9:.]+(?:Z|[+-]\d{2}:?\d{2})?)\s+([0-9.\-]+)\s+(.*)$`)

// ParseLine splits a raw log line. Lines without the expected prefix or
// with an unusable timestamp are reported as not ok and carry no event.
func ParseLine(raw string) (Line, bool) {
	m := linePrefix.FindStringSubmatch(trimEOL(raw))
	if m == nil {
		return Line{}, false
	}

	ts, err := ParseTimestamp(m[1])
	if err != nil {
		return Line{}, false
	}

	return Line{Timestamp: ts, Source: m[2], Rest: m[3]}, true
}

func trimEOL(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

// MaxLineBytes bounds a single log line; longer lines are discarded whole
const MaxLineBytes = 4 * 1024 * 1024

// lineReader yields newline-terminated lines. Unlike bufio.Scanner it
// survives an overlong line: the line is consumed and reported as too long,
// and reading continues with the next one.
type lineReader struct {
	br  *bufio.Reader
	buf []byte
}

func newLineReader(r io.Reader) *lineReader {
	return &lineReader{br: bufio.NewReaderSize(r, 64*1024)}
}

// next returns the next line without its terminator. io.EOF is returned
// only once no bytes remain.
func (lr *lineReader) next() (line string, tooLong bool, err error) {
	lr.buf = lr.buf[:0]
	read := 0
	for {
		chunk, err := lr.br.ReadSlice('\n')
		read += len(chunk)
		if read > MaxLineBytes {
			tooLong = true
		} else {
			lr.buf = append(lr.buf, chunk...)
		}

		switch {
		case err == bufio.ErrBufferFull:
			continue
		case err == io.EOF && read == 0:
			return "", false, io.EOF
		case err != nil && err != io.EOF:
			return "", false, err
		}
		if tooLong {
			return "", true, nil
		}
		return trimEOL(string(lr.buf)), false, nil
	}
}
