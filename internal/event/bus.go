package event

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	TypeWarningIssued   = "warning"
	TypeUserBanned      = "ban"
	TypeCaptchaResolved = "captcha"
	TypeCaptchaSkipped  = "captcha_skipped"

	defaultQueueSize = 256
	defaultTTL       = 5 * time.Minute
)

type (
	// Event describes a moderation action. Fields irrelevant to the type stay zero.
	Event struct {
		Type     string    `json:"type"`
		ChatID   int64     `json:"chat_id"`
		ThreadID int       `json:"thread_id,omitempty"`
		UserID   int64     `json:"user_id,omitempty"`
		ActorID  int64     `json:"actor_id,omitempty"`
		Outcome  string    `json:"outcome,omitempty"`
		Reason   string    `json:"reason,omitempty"`
		Provider string    `json:"provider,omitempty"`
		Count    int       `json:"count,omitempty"`
		Limit    int       `json:"limit,omitempty"`
		At       time.Time `json:"at"`
		expireAt time.Time
	}

	Subscriber func(ctx context.Context, e Event)

	Publisher interface {
		Publish(e Event)
	}

	// Bus fans events out to subscribers on a single worker goroutine.
	Bus struct {
		q             chan Event
		mu            sync.RWMutex
		subscriptions map[string][]Subscriber

		startStopMutex sync.Mutex
		started        bool
		cancel         context.CancelFunc
		wg             sync.WaitGroup
	}
)

func NewBus(queueSize int) *Bus {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Bus{
		q:             make(chan Event, queueSize),
		subscriptions: map[string][]Subscriber{},
	}
}

func (b *Bus) getLogEntry() *log.Entry {
	return log.WithField("component", "event_bus")
}

// Subscribe registers fn for the given types; no types means every event.
func (b *Bus) Subscribe(fn Subscriber, types ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(types) == 0 {
		types = []string{"*"}
	}
	for _, t := range types {
		b.subscriptions[t] = append(b.subscriptions[t], fn)
	}
}

// Publish enqueues without blocking; events are dropped when the queue is full.
func (b *Bus) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	if e.expireAt.IsZero() {
		e.expireAt = e.At.Add(defaultTTL)
	}
	select {
	case b.q <- e:
	default:
		b.getLogEntry().WithField("type", e.Type).Warn("event queue is full, dropping")
	}
}

func (b *Bus) Start(ctx context.Context) error {
	b.startStopMutex.Lock()
	defer b.startStopMutex.Unlock()
	if b.started {
		return nil
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	b.cancel = cancel
	b.started = true

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.run(runCtx)
	}()
	return nil
}

func (b *Bus) Stop(ctx context.Context) error {
	b.startStopMutex.Lock()
	if !b.started {
		b.startStopMutex.Unlock()
		return nil
	}
	b.started = false
	cancel := b.cancel
	b.startStopMutex.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		b.wg.Wait()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (b *Bus) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			b.drain(ctx)
			return
		case e := <-b.q:
			b.dispatch(ctx, e)
		}
	}
}

// drain delivers what is already queued so shutdown does not lose events.
func (b *Bus) drain(ctx context.Context) {
	for {
		select {
		case e := <-b.q:
			b.dispatch(context.WithoutCancel(ctx), e)
		default:
			return
		}
	}
}

func (b *Bus) dispatch(ctx context.Context, e Event) {
	if time.Now().After(e.expireAt) {
		return
	}
	b.mu.RLock()
	subscribers := append(append([]Subscriber(nil), b.subscriptions[e.Type]...), b.subscriptions["*"]...)
	b.mu.RUnlock()

	for _, sub := range subscribers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.getLogEntry().WithField("type", e.Type).WithField("panic", r).Error("subscriber panicked")
				}
			}()
			sub(ctx, e)
		}()
	}
}

// Nop discards events, used when a component runs without a bus.
type Nop struct{}

func (Nop) Publish(Event) {}
