package tts

import (
	"context"
	"sync"
	"time"

	"github.com/voxcast/charchat/internal/chat"
	"github.com/voxcast/charchat/internal/metrics"
)

// QueueCallbacks receive queue output. They are invoked while the queue's
// lock is held, so callbacks must not call back into the queue; this is what
// guarantees no event escapes after Abort returns.
type QueueCallbacks struct {
	OnAudioChunk  func(chunk []byte)
	OnSentenceEnd func(sentenceIndex int)
	OnDrained     func()
	OnError       func(sentenceIndex int, err error)
}

// Queue serializes synthesis calls for one turn: one upstream call at a
// time, strictly in submission order. Audio chunks stream out as they
// arrive; a boundary callback follows each fully emitted sentence. A
// synthesis failure is isolated to its unit and the queue continues.
type Queue struct {
	synth  Synthesizer
	cb     QueueCallbacks
	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	pending    []chat.Sentence
	processing bool
	completed  bool
	aborted    bool
	drained    bool
}

// NewQueue creates a queue bound to one turn. Cancelling parent aborts any
// in-flight synthesis call.
func NewQueue(parent context.Context, synth Synthesizer, cb QueueCallbacks) *Queue {
	ctx, cancel := context.WithCancel(parent)
	return &Queue{synth: synth, cb: cb, ctx: ctx, cancel: cancel}
}

// Enqueue appends a sentence and starts processing if the queue is idle.
// A no-op after Abort.
func (q *Queue) Enqueue(u chat.Sentence) {
	q.mu.Lock()
	if q.aborted {
		q.mu.Unlock()
		return
	}
	q.pending = append(q.pending, u)
	start := !q.processing
	if start {
		q.processing = true
	}
	q.mu.Unlock()

	if start {
		go q.process()
	}
}

// Complete marks that no more sentences will be enqueued. The drained
// callback fires exactly once, now if the queue is already idle and empty,
// otherwise when it becomes so.
func (q *Queue) Complete() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.completed = true
	if !q.processing && len(q.pending) == 0 && !q.aborted && !q.drained {
		q.drained = true
		if q.cb.OnDrained != nil {
			q.cb.OnDrained()
		}
	}
}

// Abort discards pending work, cancels any in-flight synthesis, suppresses
// the drained callback, and turns further Enqueue calls into no-ops.
func (q *Queue) Abort() {
	q.mu.Lock()
	if q.aborted {
		q.mu.Unlock()
		return
	}
	q.aborted = true
	q.pending = nil
	q.mu.Unlock()
	q.cancel()
}

// Idle reports whether nothing is queued or in flight.
func (q *Queue) Idle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return !q.processing && len(q.pending) == 0
}

func (q *Queue) process() {
	for {
		q.mu.Lock()
		if q.aborted {
			q.processing = false
			q.mu.Unlock()
			return
		}
		if len(q.pending) == 0 {
			q.processing = false
			if q.completed && !q.drained {
				q.drained = true
				if q.cb.OnDrained != nil {
					q.cb.OnDrained()
				}
			}
			q.mu.Unlock()
			return
		}
		u := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()

		start := time.Now()
		err := q.synth.Synthesize(q.ctx, u.Text, func(chunk []byte) {
			q.mu.Lock()
			defer q.mu.Unlock()
			if q.aborted {
				return
			}
			metrics.AudioBytesStreamed.Add(float64(len(chunk)))
			q.cb.OnAudioChunk(chunk)
		})

		q.mu.Lock()
		if q.aborted {
			q.processing = false
			q.mu.Unlock()
			return
		}
		if err != nil {
			if q.cb.OnError != nil {
				q.cb.OnError(u.Index, err)
			}
			q.mu.Unlock()
			continue
		}
		metrics.SentencesSynthesized.Inc()
		metrics.StageDuration.WithLabelValues("synthesis").Observe(time.Since(start).Seconds())
		q.cb.OnSentenceEnd(u.Index)
		q.mu.Unlock()
	}
}
