package testsupport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"sloppy/internal/jobs"
	"sloppy/internal/notify"
)

// FakeQueue records submitted jobs and hands out sequential ids. Outcomes are
// delivered by the test calling Registry.Resolve directly.
type FakeQueue struct {
	Prefix string

	mu   sync.Mutex
	next int
	ids  []string
	fail error
	jobs []jobs.Job
}

// NewFakeQueue returns a queue that assigns ids j1, j2, ...
func NewFakeQueue() *FakeQueue {
	return &FakeQueue{Prefix: "j"}
}

// NextIDs queues explicit ids to return before falling back to the sequence.
func (q *FakeQueue) NextIDs(ids ...string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ids = append(q.ids, ids...)
}

// FailWith makes every Submit fail with err until cleared with nil.
func (q *FakeQueue) FailWith(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.fail = err
}

// Submit implements jobs.Queue.
func (q *FakeQueue) Submit(ctx context.Context, job jobs.Job) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.fail != nil {
		return "", q.fail
	}
	var id string
	if len(q.ids) > 0 {
		id, q.ids = q.ids[0], q.ids[1:]
	} else {
		q.next++
		id = fmt.Sprintf("%s%d", q.Prefix, q.next)
	}
	job.JobID = id
	q.jobs = append(q.jobs, job)
	return id, nil
}

// Submitted returns a copy of every accepted job.
func (q *FakeQueue) Submitted() []jobs.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]jobs.Job(nil), q.jobs...)
}

// Last returns the most recently accepted job.
func (q *FakeQueue) Last() (jobs.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) == 0 {
		return jobs.Job{}, errors.New("no jobs submitted")
	}
	return q.jobs[len(q.jobs)-1], nil
}

// RecordingPublisher captures registry notifications in order.
type RecordingPublisher struct {
	mu        sync.Mutex
	Published []PublishedMessage
	Evicted   []string
}

// PublishedMessage is one captured Publish call.
type PublishedMessage struct {
	Channel string
	Message notify.Message
}

// Publish implements jobs.Publisher.
func (p *RecordingPublisher) Publish(channelID string, msg notify.Message) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Published = append(p.Published, PublishedMessage{Channel: channelID, Message: msg})
	return 0
}

// Evict implements jobs.Publisher.
func (p *RecordingPublisher) Evict(channelID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Evicted = append(p.Evicted, channelID)
	return 0
}

// On returns the messages published on channelID.
func (p *RecordingPublisher) On(channelID string) []notify.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []notify.Message
	for _, m := range p.Published {
		if m.Channel == channelID {
			out = append(out, m.Message)
		}
	}
	return out
}
