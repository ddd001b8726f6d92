package session

import (
	"errors"

	"github.com/danmuck/wearctl/internal/observability"
	"github.com/danmuck/wearctl/internal/protocol/codec"
	"github.com/rs/zerolog/log"
)

var ErrNoSender = errors.New("session: outbox has no sender")

// Batch is one transmission worth of coalesced messages.
type Batch struct {
	Data     []byte
	Messages []codec.Message
}

func (b Batch) Empty() bool { return len(b.Messages) == 0 }

// Queue is the ordered list of pending outgoing messages for one device.
type Queue struct {
	items []codec.Message
}

func (q *Queue) Enqueue(msgs ...codec.Message) {
	q.items = append(q.items, msgs...)
}

// Flush removes, front to back, every pending message that still fits in a
// buffer of maxSize bytes (0 = unlimited). Messages that do not fit stay in
// place and do not block smaller ones behind them.
func (q *Queue) Flush(maxSize int) Batch {
	var batch Batch
	kept := q.items[:0]
	for _, m := range q.items {
		size := m.Size(codec.Length16)
		if maxSize == 0 || len(batch.Data)+size <= maxSize {
			batch.Data, _ = codec.AppendMessage(batch.Data, m, codec.Length16)
			batch.Messages = append(batch.Messages, m)
			continue
		}
		kept = append(kept, m)
	}
	clear(q.items[len(kept):])
	q.items = kept
	return batch
}

// Restore puts msgs back at the front of the queue.
func (q *Queue) Restore(msgs []codec.Message) {
	if len(msgs) == 0 {
		return
	}
	q.items = append(append([]codec.Message(nil), msgs...), q.items...)
}

// Contains reports whether a message with the given code is pending.
func (q *Queue) Contains(code byte) bool {
	for _, m := range q.items {
		if m.Type == code {
			return true
		}
	}
	return false
}

func (q *Queue) Len() int { return len(q.items) }

func (q *Queue) Reset() {
	clear(q.items)
	q.items = q.items[:0]
}

// Sender starts an asynchronous transmission. Completion is reported back
// through Outbox.Complete.
type Sender func(data []byte) error

// Outbox batches a device's outgoing messages and keeps at most one
// transmission in flight. It is owned by a single device goroutine.
type Outbox struct {
	queue    Queue
	maxSize  int
	inFlight bool
	send     Sender
}

func NewOutbox(send Sender) *Outbox {
	return &Outbox{send: send}
}

// SetMaxSize sets the negotiated maximum transmission size (0 = unlimited).
func (o *Outbox) SetMaxSize(n int) {
	o.maxSize = max(n, 0)
}

func (o *Outbox) MaxSize() int { return o.maxSize }

func (o *Outbox) InFlight() bool { return o.inFlight }

func (o *Outbox) Len() int { return o.queue.Len() }

func (o *Outbox) Pending(code byte) bool { return o.queue.Contains(code) }

// Enqueue appends msgs and optionally flushes.
func (o *Outbox) Enqueue(flushNow bool, msgs ...codec.Message) error {
	o.queue.Enqueue(msgs...)
	if !flushNow {
		return nil
	}
	return o.Flush()
}

// Flush transmits the next batch unless a transmission is already in flight.
func (o *Outbox) Flush() error {
	if o.inFlight || o.queue.Len() == 0 {
		return nil
	}
	if o.send == nil {
		return ErrNoSender
	}
	batch := o.queue.Flush(o.maxSize)
	if batch.Empty() {
		log.Warn().Msgf("session.Outbox.Flush pending=%d none fit max_size=%d", o.queue.Len(), o.maxSize)
		observability.RecordOversizedMessages(o.queue.Len())
		return nil
	}
	o.inFlight = true
	if err := o.send(batch.Data); err != nil {
		o.inFlight = false
		o.queue.Restore(batch.Messages)
		log.Warn().Msgf("session.Outbox.Flush send failed bytes=%d err=%v", len(batch.Data), err)
		return err
	}
	observability.RecordFlush(len(batch.Data), len(batch.Messages))
	log.Trace().Msgf("session.Outbox.Flush bytes=%d messages=%d remaining=%d", len(batch.Data), len(batch.Messages), o.queue.Len())
	return nil
}

// Complete records the end of the in-flight transmission and flushes again
// if messages remain.
func (o *Outbox) Complete(err error) error {
	if !o.inFlight {
		return nil
	}
	o.inFlight = false
	if err != nil {
		log.Warn().Msgf("session.Outbox.Complete transmission failed err=%v", err)
	}
	return o.Flush()
}

// Reset drops pending messages and the in-flight flag. The negotiated size
// is forgotten as well.
func (o *Outbox) Reset() {
	o.queue.Reset()
	o.inFlight = false
	o.maxSize = 0
}
