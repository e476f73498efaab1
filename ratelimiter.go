package ftpclient

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter throttles transfer byte throughput independently for
// downloads and uploads. A limit of 0 means unlimited, matching the
// rate.Inf convention x/time/rate itself uses.
//
// Grounded on the xpan backend's rateLimiterClient: that wraps an HTTP
// client's calls in a rate.Limiter.Wait before each request. A transfer
// socket does the same thing per chunk of bytes instead of per request.
type RateLimiter struct {
	down *rate.Limiter
	up   *rate.Limiter
}

// NewRateLimiter builds a limiter capped at downBytesPerSec and
// upBytesPerSec; either may be 0 for unlimited.
func NewRateLimiter(downBytesPerSec, upBytesPerSec int) *RateLimiter {
	return &RateLimiter{
		down: limiterFor(downBytesPerSec),
		up:   limiterFor(upBytesPerSec),
	}
}

func limiterFor(bytesPerSec int) *rate.Limiter {
	if bytesPerSec <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}

	burst := bytesPerSec
	if burst < 4096 {
		burst = 4096
	}

	return rate.NewLimiter(rate.Limit(bytesPerSec), burst)
}

// SetDownloadLimit adjusts the download cap at runtime (0 = unlimited).
func (r *RateLimiter) SetDownloadLimit(bytesPerSec int) {
	r.down.SetLimit(limitFor(bytesPerSec))
}

// SetUploadLimit adjusts the upload cap at runtime (0 = unlimited).
func (r *RateLimiter) SetUploadLimit(bytesPerSec int) {
	r.up.SetLimit(limitFor(bytesPerSec))
}

func limitFor(bytesPerSec int) rate.Limit {
	if bytesPerSec <= 0 {
		return rate.Inf
	}

	return rate.Limit(bytesPerSec)
}

// WaitDownload blocks until n bytes may be read, per the configured
// download cap.
func (r *RateLimiter) WaitDownload(ctx context.Context, n int) error {
	return waitN(ctx, r.down, n)
}

// WaitUpload blocks until n bytes may be written, per the configured
// upload cap.
func (r *RateLimiter) WaitUpload(ctx context.Context, n int) error {
	return waitN(ctx, r.up, n)
}

// waitN reserves n tokens in chunks no larger than the limiter's burst, so
// a single large read/write doesn't exceed rate.Limiter's per-call burst
// ceiling.
func waitN(ctx context.Context, l *rate.Limiter, n int) error {
	burst := l.Burst()
	if burst <= 0 {
		burst = n
	}

	for n > 0 {
		chunk := n
		if chunk > burst {
			chunk = burst
		}

		if err := l.WaitN(ctx, chunk); err != nil {
			return err
		}

		n -= chunk
	}

	return nil
}
