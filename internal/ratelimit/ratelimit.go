// Package ratelimit throttles data connection streams to a fixed number of
// bytes per second.
//
// It wraps golang.org/x/time/rate so that a single Limiter can be shared by
// the reader and writer sides of a transfer, and so that a blocked wait is
// released as soon as the transfer's context is canceled.
package ratelimit

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// maxBurst caps the bucket size, so large limits still pace writes instead
// of letting a whole second of data through at once.
const maxBurst = 64 * 1024

// Limiter limits the rate of data transfer to a specified bytes per second.
// A nil *Limiter means unlimited.
type Limiter struct {
	lim *rate.Limiter
}

// New creates a new rate limiter with the specified bytes per second limit.
// The bucket holds at most one second worth of data, capped at 64 KiB.
// It returns nil (unlimited) if bytesPerSecond is not positive.
func New(bytesPerSecond int64) *Limiter {
	if bytesPerSecond <= 0 {
		return nil
	}

	burst := int(min(bytesPerSecond, maxBurst))
	return &Limiter{
		lim: rate.NewLimiter(rate.Limit(bytesPerSecond), burst),
	}
}

// Burst returns the largest chunk a single wait can cover.
func (l *Limiter) Burst() int {
	return l.lim.Burst()
}

// wait blocks until n bytes may pass. n must not exceed Burst.
func (l *Limiter) wait(ctx context.Context, n int) error {
	return l.lim.WaitN(ctx, n)
}

// reader wraps an io.Reader to limit read speed.
type reader struct {
	ctx     context.Context
	r       io.Reader
	limiter *Limiter
}

// NewReader creates a new rate-limited reader.
// If limiter is nil, returns the original reader unchanged.
func NewReader(ctx context.Context, r io.Reader, limiter *Limiter) io.Reader {
	if limiter == nil {
		return r
	}
	return &reader{
		ctx:     ctx,
		r:       r,
		limiter: limiter,
	}
}

// Read implements io.Reader with rate limiting.
func (r *reader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	if len(p) > r.limiter.Burst() {
		p = p[:r.limiter.Burst()]
	}

	n, err := r.r.Read(p)
	if n > 0 {
		if werr := r.limiter.wait(r.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}

// writer wraps an io.Writer to limit write speed.
type writer struct {
	ctx     context.Context
	w       io.Writer
	limiter *Limiter
}

// NewWriter creates a new rate-limited writer.
// If limiter is nil, returns the original writer unchanged.
func NewWriter(ctx context.Context, w io.Writer, limiter *Limiter) io.Writer {
	if limiter == nil {
		return w
	}
	return &writer{
		ctx:     ctx,
		w:       w,
		limiter: limiter,
	}
}

// Write implements io.Writer with rate limiting. Tokens are taken before
// each chunk is written, which applies backpressure to the producer.
func (w *writer) Write(p []byte) (int, error) {
	total := 0
	for total < len(p) {
		chunk := min(len(p)-total, w.limiter.Burst())

		if err := w.limiter.wait(w.ctx, chunk); err != nil {
			return total, err
		}

		n, err := w.w.Write(p[total : total+chunk])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
