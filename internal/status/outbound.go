package status

import (
	"container/list"
	"sync"
	"time"
)

// OutboundRateWindow and OutboundRateMax implement the gateway's "no more
// than 5 messages per 5s" channel rate limit from §5's resource model.
const (
	OutboundRateWindow = 5 * time.Second
	OutboundRateMax    = 5
)

// OutboundMessage is one queued send.
type OutboundMessage struct {
	ChannelID string
	BranchID  int
	Text      string
}

// Sender delivers a single outbound message; errors are logged by the
// caller and do not block the queue.
type Sender func(msg OutboundMessage) error

// OutboundQueue is a per-channel FIFO that respects the channel's send
// rate limit while giving every branch a fair turn: branches are served
// round-robin rather than draining one branch's backlog before the next's
// (§4.11: "fair round-robin across branches").
type OutboundQueue struct {
	send Sender
	now  func() time.Time

	mu       sync.Mutex
	perChan  map[string]*channelQueue
	stopping bool
	wg       sync.WaitGroup
}

type channelQueue struct {
	mu       sync.Mutex
	order    *list.List // of branch ids, round-robin order
	present  map[int]bool
	pending  map[int][]string // branchID -> queued texts
	sentAt   []time.Time      // sliding window of recent send times
	wake     chan struct{}
}

// NewOutboundQueue creates a queue that delivers via send.
func NewOutboundQueue(send Sender) *OutboundQueue {
	return &OutboundQueue{send: send, now: time.Now, perChan: make(map[string]*channelQueue)}
}

// Enqueue queues msg for delivery, starting the channel's worker goroutine
// on first use.
func (q *OutboundQueue) Enqueue(msg OutboundMessage) {
	q.mu.Lock()
	cq, ok := q.perChan[msg.ChannelID]
	if !ok {
		cq = &channelQueue{
			order:   list.New(),
			present: make(map[int]bool),
			pending: make(map[int][]string),
			wake:    make(chan struct{}, 1),
		}
		q.perChan[msg.ChannelID] = cq
		q.wg.Add(1)
		go q.runChannel(msg.ChannelID, cq)
	}
	q.mu.Unlock()

	cq.mu.Lock()
	cq.pending[msg.BranchID] = append(cq.pending[msg.BranchID], msg.Text)
	if !cq.present[msg.BranchID] {
		cq.present[msg.BranchID] = true
		cq.order.PushBack(msg.BranchID)
	}
	cq.mu.Unlock()

	select {
	case cq.wake <- struct{}{}:
	default:
	}
}

func (q *OutboundQueue) runChannel(channelID string, cq *channelQueue) {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		stopping := q.stopping
		q.mu.Unlock()
		if stopping {
			return
		}

		branchID, text, ok := cq.popNext()
		if !ok {
			<-cq.wake
			continue
		}

		if wait := cq.waitForSlot(q.now); wait > 0 {
			time.Sleep(wait)
		}

		_ = q.send(OutboundMessage{ChannelID: channelID, BranchID: branchID, Text: text})
		cq.recordSend(q.now())
	}
}

// popNext pops the next branch's oldest pending message in round-robin
// order, rotating that branch to the back of the order list.
func (cq *channelQueue) popNext() (branchID int, text string, ok bool) {
	cq.mu.Lock()
	defer cq.mu.Unlock()

	for n := cq.order.Len(); n > 0; n-- {
		front := cq.order.Front()
		id := front.Value.(int)
		cq.order.MoveToBack(front)

		queue := cq.pending[id]
		if len(queue) == 0 {
			continue
		}
		text, queue = queue[0], queue[1:]
		if len(queue) == 0 {
			delete(cq.pending, id)
			cq.order.Remove(cq.order.Back())
			delete(cq.present, id)
		} else {
			cq.pending[id] = queue
		}
		return id, text, true
	}
	return 0, "", false
}

func (cq *channelQueue) waitForSlot(now func() time.Time) time.Duration {
	cq.mu.Lock()
	defer cq.mu.Unlock()
	cutoff := now().Add(-OutboundRateWindow)
	i := 0
	for i < len(cq.sentAt) && cq.sentAt[i].Before(cutoff) {
		i++
	}
	cq.sentAt = cq.sentAt[i:]
	if len(cq.sentAt) < OutboundRateMax {
		return 0
	}
	return OutboundRateWindow - now().Sub(cq.sentAt[0])
}

func (cq *channelQueue) recordSend(t time.Time) {
	cq.mu.Lock()
	defer cq.mu.Unlock()
	cq.sentAt = append(cq.sentAt, t)
}

// Stop signals every channel worker to exit once idle. Queued messages not
// yet delivered are dropped.
func (q *OutboundQueue) Stop() {
	q.mu.Lock()
	q.stopping = true
	for _, cq := range q.perChan {
		select {
		case cq.wake <- struct{}{}:
		default:
		}
	}
	q.mu.Unlock()
}
