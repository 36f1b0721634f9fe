package events

import (
	"log"
	"sync"

	"github.com/sweeney/molding-monitor/internal/logic"
	"github.com/sweeney/molding-monitor/internal/metrics"
	"github.com/sweeney/molding-monitor/internal/mqtt"
)

// AsyncPublisher queues events for a Publisher that may block (a broker
// round trip) and publishes them from one goroutine. A full queue drops
// the event.
type AsyncPublisher struct {
	pub    mqtt.Publisher
	queue  chan logic.Event
	logger *log.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewAsyncPublisher starts the publishing goroutine.
func NewAsyncPublisher(pub mqtt.Publisher, size int, logger *log.Logger) *AsyncPublisher {
	if size <= 0 {
		size = 256
	}
	if logger == nil {
		logger = log.Default()
	}
	a := &AsyncPublisher{
		pub:    pub,
		queue:  make(chan logic.Event, size),
		logger: logger,
		done:   make(chan struct{}),
	}
	go a.loop()
	return a
}

// Notify enqueues event without blocking. Events after Close are dropped.
func (a *AsyncPublisher) Notify(event logic.Event) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}
	select {
	case a.queue <- event:
	default:
		metrics.IncEventPublished("mqtt", string(event.Type), "dropped")
	}
}

// Close stops accepting events and waits for queued ones to be published.
func (a *AsyncPublisher) Close() {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()
	<-a.done
}

func (a *AsyncPublisher) loop() {
	defer close(a.done)
	for ev := range a.queue {
		if err := a.pub.Publish(ev); err != nil {
			a.logger.Printf("mqtt: publish %s for %s: %v", ev.Type, ev.MachineID, err)
			metrics.IncEventPublished("mqtt", string(ev.Type), metrics.ResultError)
			continue
		}
		metrics.IncEventPublished("mqtt", string(ev.Type), metrics.ResultSuccess)
	}
}
