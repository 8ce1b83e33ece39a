package text

import (
	"bufio"
	"io"
	"os"

	"github.com/pkg/errors"
)

// maxLineSize bounds a single review line.
const maxLineSize = 16 * 1024 * 1024

// Record is one line of a data file: <label><delimiter><review text>.
type Record struct {
	Line int
	Tag  byte
	Text string
}

// Label parses the record's label digit.
func (r Record) Label() (int, error) {
	if r.Tag < '0' || r.Tag > '9' {
		return 0, errors.Errorf("line %d: label %q is not a digit", r.Line, r.Tag)
	}
	return int(r.Tag - '0'), nil
}

// ReadRecords calls fn for every line of r. The first byte of a line is
// the label and the text starts after the one-byte delimiter. Lines
// shorter than three bytes yield records with empty text; they are not
// errors.
func ReadRecords(r io.Reader, fn func(Record) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Text()
		rec := Record{Line: line}
		if len(raw) > 0 {
			rec.Tag = raw[0]
		}
		if len(raw) > 2 {
			rec.Text = raw[2:]
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return errors.Wrapf(scanner.Err(), "read line %d", line+1)
}

// ReadFile is ReadRecords over a file on disk.
func ReadFile(path string, fn func(Record) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open data file")
	}
	defer f.Close()

	return errors.Wrap(ReadRecords(f, fn), path)
}
