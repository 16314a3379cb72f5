package fabric

import (
	"context"
	"sync"
	"time"

	awcperrors "github.com/anuraagsster/AI-agent-builder-sub000/pkg/errors"
	"github.com/anuraagsster/AI-agent-builder-sub000/pkg/models"
)

const defaultAsyncQueueSize = 1024

// asyncItem is one queued delivery.
type asyncItem struct {
	recipient interface{}
	msg       *models.Message
}

// asyncQueue is the fabric's single-consumer FIFO. The channel is never
// closed: stopping the worker leaves queued items in place for the next
// start, so nothing is dropped silently.
type asyncQueue struct {
	items chan asyncItem

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

func newAsyncQueue(size int) *asyncQueue {
	return &asyncQueue{items: make(chan asyncItem, size)}
}

// RegisterAsyncHandler registers a handler preferred by the async
// worker for the given message type. Types without an async handler
// fall back to a synchronous send.
func (f *Fabric) RegisterAsyncHandler(messageType string, fn Handler) {
	if fn == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.asyncHandlers[messageType] = fn
}

// SendAsync enqueues a message for the background worker. It returns
// queued on success and failed when the queue is full.
func (f *Fabric) SendAsync(recipient interface{}, msgType string, content interface{}, senderID string, metadata models.JSONMap) models.Delivery {
	msg := f.newMessage(msgType, content, senderID, metadata)
	select {
	case f.async.items <- asyncItem{recipient: recipient, msg: msg}:
		f.metrics.IncrementCounter("fabric.async.queued", 1)
		return models.Delivery{Status: models.DeliveryQueued}
	default:
		f.metrics.IncrementCounter("fabric.async.rejected", 1)
		return models.Delivery{Status: models.DeliveryFailed, Error: "async queue full"}
	}
}

// StartAsyncProcessing starts the single background worker. Calling it
// while the worker runs is a no-op.
func (f *Fabric) StartAsyncProcessing(ctx context.Context) {
	q := f.async
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return
	}
	q.running = true
	q.stop = make(chan struct{})
	q.done = make(chan struct{})
	go f.asyncWorker(ctx, q.stop, q.done)
}

// StopAsyncProcessing stops the worker and waits for it to exit, up to
// the timeout. Queued messages stay on the queue for the next start.
func (f *Fabric) StopAsyncProcessing(timeout time.Duration) error {
	q := f.async
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return nil
	}
	q.running = false
	close(q.stop)
	done := q.done
	q.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return awcperrors.Unavailable("async worker did not stop within %s", timeout)
	}
}

// asyncWorker drains the queue one item at a time, so delivery order is
// FIFO for every (source, destination) pair.
func (f *Fabric) asyncWorker(ctx context.Context, stop, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case item := <-f.async.items:
			f.processAsync(ctx, item)
		}
	}
}

func (f *Fabric) processAsync(ctx context.Context, item asyncItem) {
	f.mu.RLock()
	handler := f.asyncHandlers[item.msg.Type]
	f.mu.RUnlock()
	if handler != nil {
		if _, err := handler(ctx, item.msg.SenderID, item.msg.Content); err != nil {
			f.logger.Error("async handler failed", map[string]interface{}{
				"type":  item.msg.Type,
				"error": err.Error(),
			})
		}
		return
	}
	d := f.Send(ctx, item.recipient, item.msg.Type, item.msg.Content, item.msg.SenderID, item.msg.Metadata)
	if d.Status == models.DeliveryFailed {
		f.logger.Error("async delivery failed", map[string]interface{}{
			"type":  item.msg.Type,
			"error": d.Error,
		})
	}
}

// AsyncQueueDepth returns the number of messages waiting on the async
// queue.
func (f *Fabric) AsyncQueueDepth() int {
	return len(f.async.items)
}
