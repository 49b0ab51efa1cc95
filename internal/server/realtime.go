package server

import (
	"context"
	"sync"
	"time"
)

const (
	RealtimeEventRatingChanged = "rating-change"
	RealtimeEventAnswerCreated = "answer-created"
	realtimeEventHeartbeat     = "heartbeat"
	realtimeSourceBackend      = "askme-backend"

	targetQuestion = "question"
	targetAnswer   = "answer"
)

// RealtimeMessage describes one change visible on a question page.
type RealtimeMessage struct {
	QuestionID int64
	EventType  string
	TargetKind string
	TargetID   int64
	Rating     int
	Timestamp  time.Time
}

// RealtimeDispatcher fans messages out to the subscribers of each question.
// Slow subscribers miss messages instead of blocking publishers.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[int64]map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
}

type realtimeSubscriber struct {
	id     int64
	stream chan RealtimeMessage
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[int64]map[int64]*realtimeSubscriber),
		bufferSize:  16,
	}
}

// Subscribe registers for messages about the question until ctx is done or
// the returned cleanup runs.
func (d *RealtimeDispatcher) Subscribe(ctx context.Context, questionID int64) (<-chan RealtimeMessage, func()) {
	if questionID < 1 {
		ch := make(chan RealtimeMessage)
		close(ch)
		return ch, func() {}
	}
	subscriber := &realtimeSubscriber{
		id:     d.nextSequence(),
		stream: make(chan RealtimeMessage, d.bufferSize),
	}
	d.registerSubscriber(questionID, subscriber)
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.unregisterSubscriber(questionID, subscriber.id)
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.QuestionID < 1 || message.EventType == "" {
		return
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now().UTC()
	}
	d.mu.RLock()
	subscribers := d.subscribers[message.QuestionID]
	if len(subscribers) == 0 {
		d.mu.RUnlock()
		return
	}
	copies := make([]*realtimeSubscriber, 0, len(subscribers))
	for _, subscriber := range subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

// SubscriberCount reports how many streams follow the question.
func (d *RealtimeDispatcher) SubscriberCount(questionID int64) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers[questionID])
}

// ActiveSubscribers reports the number of open streams across all questions.
func (d *RealtimeDispatcher) ActiveSubscribers() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	total := 0
	for _, subscribers := range d.subscribers {
		total += len(subscribers)
	}
	return total
}

func (d *RealtimeDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *RealtimeDispatcher) registerSubscriber(questionID int64, subscriber *realtimeSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[questionID]; !ok {
		d.subscribers[questionID] = make(map[int64]*realtimeSubscriber)
	}
	d.subscribers[questionID][subscriber.id] = subscriber
}

func (d *RealtimeDispatcher) unregisterSubscriber(questionID, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[questionID]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, questionID)
		}
	}
	d.mu.Unlock()
}
