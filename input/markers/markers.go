// Package markers reads the marker stream: one marker per line, optionally
// followed by a tab and a timestamp in seconds.
//
//	Reference	12.5
//	Cue	14.5
//	Feedback
package markers

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/noriah/bcifeed/model"
	"github.com/pkg/errors"
)

// Reader is a MarkerSource over a line stream. Lines are scanned in a
// goroutine so Next can give up on ctx.
type Reader struct {
	lines chan model.Marker
	errc  chan error
	done  chan struct{}

	closer io.Closer
	start  time.Time
}

// NewReader starts scanning r. Markers without a timestamp are stamped with
// the seconds since the reader was created.
func NewReader(r io.Reader) *Reader {
	rd := &Reader{
		lines: make(chan model.Marker),
		errc:  make(chan error, 1),
		done:  make(chan struct{}),
		start: time.Now(),
	}

	if c, ok := r.(io.Closer); ok {
		rd.closer = c
	}

	go rd.scan(r)

	return rd
}

// Open opens a marker stream by name: "-" is stdin, "exec:" followed by a
// command line runs the command and reads its stdout, anything else is a
// file or fifo path.
func Open(ctx context.Context, name string) (*Reader, error) {
	switch {
	case name == "-":
		return NewReader(os.Stdin), nil

	case strings.HasPrefix(name, "exec:"):
		argv := strings.Fields(strings.TrimPrefix(name, "exec:"))
		if len(argv) == 0 {
			return nil, errors.New("empty marker command")
		}

		cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
		cmd.Stderr = os.Stderr

		o, err := cmd.StdoutPipe()
		if err != nil {
			return nil, errors.Wrap(err, "failed to get stdout pipe")
		}

		if err := cmd.Start(); err != nil {
			return nil, errors.Wrap(err, "failed to start "+argv[0])
		}

		go cmd.Wait()

		return NewReader(o), nil
	}

	f, err := os.Open(name)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open marker stream")
	}

	return NewReader(f), nil
}

// Parse decodes one line. Blank lines yield ok false.
func Parse(line string) (m model.Marker, ok bool, err error) {
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return model.Marker{}, false, nil
	}

	value, stamp, found := strings.Cut(line, "\t")
	m.Value = strings.TrimSpace(value)

	if found {
		m.Time, err = strconv.ParseFloat(strings.TrimSpace(stamp), 64)
		if err != nil {
			return model.Marker{}, false, errors.Wrapf(err, "bad timestamp in %q", line)
		}
	}

	return m, true, nil
}

func (rd *Reader) scan(r io.Reader) {
	defer close(rd.lines)

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()

		m, ok, err := Parse(line)
		if err != nil {
			rd.errc <- err
			return
		}
		if !ok {
			continue
		}

		if !strings.Contains(line, "\t") {
			m.Time = time.Since(rd.start).Seconds()
		}

		select {
		case rd.lines <- m:
		case <-rd.done:
			return
		}
	}

	if err := sc.Err(); err != nil {
		rd.errc <- errors.Wrap(err, "failed to read marker stream")
	}
}

// Next returns the next marker, or io.EOF once the stream has ended.
func (rd *Reader) Next(ctx context.Context) (model.Marker, error) {
	select {
	case <-ctx.Done():
		return model.Marker{}, ctx.Err()
	case m, ok := <-rd.lines:
		if ok {
			return m, nil
		}
	}

	select {
	case err := <-rd.errc:
		return model.Marker{}, err
	default:
		return model.Marker{}, io.EOF
	}
}

// Close stops the scanner and closes the underlying stream when it can be
// closed.
func (rd *Reader) Close() error {
	select {
	case <-rd.done:
		return nil
	default:
		close(rd.done)
	}

	if rd.closer != nil {
		return rd.closer.Close()
	}
	return nil
}
