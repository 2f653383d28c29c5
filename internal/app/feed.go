package app

import (
	"sync"

	"cbt-exam-service/internal/domain"
)

// SubmissionFeed fans committed submissions out to live subscribers (admin dashboards).
type SubmissionFeed struct {
	mu          sync.Mutex
	subscribers map[chan domain.SubmissionRecord]struct{}
}

func NewSubmissionFeed() *SubmissionFeed {
	return &SubmissionFeed{
		subscribers: make(map[chan domain.SubmissionRecord]struct{}),
	}
}

// Subscribe returns a channel that receives submissions committed from now on.
// The caller must invoke the returned cancel function to avoid leaks.
func (f *SubmissionFeed) Subscribe() (<-chan domain.SubmissionRecord, func()) {
	ch := make(chan domain.SubmissionRecord, 8)

	f.mu.Lock()
	f.subscribers[ch] = struct{}{}
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		if _, ok := f.subscribers[ch]; ok {
			delete(f.subscribers, ch)
			close(ch)
		}
		f.mu.Unlock()
	}
	return ch, cancel
}

// Publish never blocks: a full subscriber buffer loses its oldest record.
func (f *SubmissionFeed) Publish(record domain.SubmissionRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subscribers {
		select {
		case ch <- record:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- record
		}
	}
}

// Subscribers reports how many live subscriptions exist.
func (f *SubmissionFeed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscribers)
}
