package fileutil

import (
	"errors"
	"io"
	"time"

	"golang.org/x/time/rate"
)

// ProgressReader reports bytes read through it, at most once per interval,
// plus a guaranteed final report when the underlying reader hits EOF.
type ProgressReader struct {
	r        io.Reader
	read     int64
	total    int64
	limiter  *rate.Limiter
	report   func(done, total int64)
	finished bool
	held     bool
}

// NewProgressReader wraps r. report may be nil.
func NewProgressReader(r io.Reader, total int64, interval time.Duration, report func(done, total int64)) *ProgressReader {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &ProgressReader{
		r:       r,
		total:   total,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		report:  report,
	}
}

func (p *ProgressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)
	if p.report == nil || p.held {
		return n, err
	}
	if err == io.EOF && !p.finished {
		p.finished = true
		p.report(p.read, p.total)
	} else if n > 0 && p.limiter.Allow() {
		p.report(p.read, p.total)
	}
	return n, err
}

// Hold suppresses reports until Release. Bytes are still counted, so a
// client can pre-read the body (to hash it, say) without announcing it as
// sent.
func (p *ProgressReader) Hold() {
	p.held = true
}

// Release resumes reporting.
func (p *ProgressReader) Release() {
	p.held = false
}

// BytesRead returns the number of bytes consumed so far.
func (p *ProgressReader) BytesRead() int64 {
	return p.read
}

// Seek repositions the underlying reader when it supports seeking, so
// clients that rewind a request body (for signing or retries) keep an
// accurate count.
func (p *ProgressReader) Seek(offset int64, whence int) (int64, error) {
	seeker, ok := p.r.(io.Seeker)
	if !ok {
		return 0, errors.New("progress reader: underlying reader is not seekable")
	}
	pos, err := seeker.Seek(offset, whence)
	if err != nil {
		return pos, err
	}
	p.read = pos
	p.finished = false
	return pos, nil
}
