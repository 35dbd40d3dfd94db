package audit

import (
	"context"
	"time"

	"classroom-access/internal/obs"
)

const (
	DefaultQueueSize    = 1024
	DefaultWriteTimeout = 2 * time.Second
)

// AsyncSink queues denials for a background writer so a guard never waits on
// the repository. A full queue drops the denial.
type AsyncSink struct {
	svc     *Service
	queue   chan Denial
	timeout time.Duration
	metrics *obs.Metrics
}

func NewAsyncSink(svc *Service, size int, timeout time.Duration, metrics *obs.Metrics) *AsyncSink {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if timeout <= 0 {
		timeout = DefaultWriteTimeout
	}
	return &AsyncSink{svc: svc, queue: make(chan Denial, size), timeout: timeout, metrics: metrics}
}

// RecordDenial enqueues d without blocking.
func (a *AsyncSink) RecordDenial(ctx context.Context, d Denial) {
	select {
	case a.queue <- d:
	default:
		a.metrics.ObserveAuditDrop()
		a.svc.log.WarnContext(ctx, "audit queue full, denial dropped", "mode", d.Mode, "path", d.Path)
	}
}

// Run writes queued denials until ctx is done, then flushes what is already queued.
func (a *AsyncSink) Run(ctx context.Context) {
	for {
		select {
		case d := <-a.queue:
			a.write(d)
		case <-ctx.Done():
			for {
				select {
				case d := <-a.queue:
					a.write(d)
				default:
					return
				}
			}
		}
	}
}

func (a *AsyncSink) write(d Denial) {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()
	a.svc.RecordDenial(ctx, d)
}
