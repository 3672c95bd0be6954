package segment

import (
	"context"
	"fmt"
	"image"
	"sync/atomic"

	"github.com/bryanchriswhite/backdrop/internal/logger"
	"golang.org/x/sync/semaphore"
)

// Result is one completed submission
type Result struct {
	// Seq is the submission's sequence number, strictly increasing per oracle
	Seq uint64
	// Tag is passed through from Submit untouched
	Tag uint64
	// Image is the frame that was submitted
	Image *image.RGBA
	// Mask is nil when the segmenter produced none
	Mask *image.Alpha
	Err  error
}

// Oracle runs a Segmenter asynchronously, one goroutine per submission,
// and delivers completions on Results. Submissions may overlap, so results
// can arrive out of submission order; Seq lets the consumer tell.
type Oracle struct {
	seg     Segmenter
	sem     *semaphore.Weighted
	weight  int64
	results chan Result
	ctx     context.Context
	cancel  context.CancelFunc
	seq     atomic.Uint64
	closed  atomic.Bool
}

// NewOracle wraps seg. A nil seg yields an unavailable oracle.
func NewOracle(seg Segmenter, maxInFlight int) *Oracle {
	if maxInFlight <= 0 {
		maxInFlight = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Oracle{
		seg:     seg,
		sem:     semaphore.NewWeighted(int64(maxInFlight)),
		weight:  int64(maxInFlight),
		results: make(chan Result, maxInFlight),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Available reports whether a segmenter is configured and the oracle is open
func (o *Oracle) Available() bool {
	return o != nil && o.seg != nil && !o.closed.Load()
}

// Results delivers completions. The channel is never closed.
func (o *Oracle) Results() <-chan Result {
	return o.results
}

// Submit hands frame to the segmenter without blocking and returns its
// sequence number. tag comes back on the Result.
func (o *Oracle) Submit(frame *image.RGBA, tag uint64) (uint64, error) {
	if o == nil || o.seg == nil {
		return 0, ErrUnavailable
	}
	if o.closed.Load() {
		return 0, ErrClosed
	}
	if !o.sem.TryAcquire(1) {
		return 0, ErrBusy
	}

	seq := o.seq.Add(1)
	go func() {
		defer o.sem.Release(1)

		mask, err := o.segment(frame)
		res := Result{Seq: seq, Tag: tag, Image: frame, Mask: mask, Err: err}

		select {
		case o.results <- res:
		case <-o.ctx.Done():
			logger.WithComponent("segment").Debug().
				Uint64("seq", seq).
				Msg("Discarding result after close")
		}
	}()
	return seq, nil
}

// segment calls the segmenter, converting a panic into an error
func (o *Oracle) segment(frame *image.RGBA) (mask *image.Alpha, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("segment: segmenter panicked: %v", r)
		}
	}()
	return o.seg.Segment(o.ctx, frame)
}

// Close cancels in-flight work and waits for every running Segment call to
// return, so the segmenter can be released afterwards. Completions that land
// after Close are dropped.
func (o *Oracle) Close() {
	if o == nil || !o.closed.CompareAndSwap(false, true) {
		return
	}
	o.cancel()
	if o.seg == nil {
		return
	}
	// Holding the whole weight means no worker is left and none can start
	if err := o.sem.Acquire(context.Background(), o.weight); err != nil {
		logger.WithComponent("segment").Warn().Err(err).Msg("Failed to drain segmenter")
	}
}
