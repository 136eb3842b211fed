package notifier

import (
	"sync"

	"github.com/google/uuid"

	"github.com/wayfarehq/wayfare-backend/pkg/enums"
	"github.com/wayfarehq/wayfare-backend/pkg/metrics"
)

const defaultBufferSize = 16

// ChangeEvent is one occupancy delta fanned out to subscribers.
type ChangeEvent struct {
	ItemID      uuid.UUID `json:"itemId"`
	VisitDate   string    `json:"visitDate"`
	BookedUnits int       `json:"bookedUnits"`
}

// Hub fans occupancy changes out to per-item subscribers. Sends never block:
// a subscriber whose buffer is full loses that delta and reconverges on the
// next one (or by re-reading availability).
type Hub struct {
	mu          sync.RWMutex
	subscribers map[uuid.UUID]map[*subscriber]struct{}
	bufferSize  int
	metrics     *metrics.NotifierMetrics
	count       int
}

type subscriber struct {
	ch chan ChangeEvent
}

// NewHub builds a hub with the given per-subscriber buffer size.
func NewHub(bufferSize int, m *metrics.NotifierMetrics) *Hub {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &Hub{
		subscribers: make(map[uuid.UUID]map[*subscriber]struct{}),
		bufferSize:  bufferSize,
		metrics:     m,
	}
}

// Subscribe attaches a listener for one item's changes. The returned cancel
// func detaches it and closes the channel.
func (h *Hub) Subscribe(itemID uuid.UUID) (<-chan ChangeEvent, func()) {
	sub := &subscriber{ch: make(chan ChangeEvent, h.bufferSize)}

	h.mu.Lock()
	if h.subscribers[itemID] == nil {
		h.subscribers[itemID] = make(map[*subscriber]struct{})
	}
	h.subscribers[itemID][sub] = struct{}{}
	h.count++
	h.metrics.SetSubscribers(h.count)
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			if set, ok := h.subscribers[itemID]; ok {
				if _, attached := set[sub]; attached {
					delete(set, sub)
					h.count--
					if len(set) == 0 {
						delete(h.subscribers, itemID)
					}
				}
			}
			h.metrics.SetSubscribers(h.count)
			h.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

// Publish delivers the event to every subscriber of its item.
func (h *Hub) Publish(event ChangeEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subscribers[event.ItemID] {
		select {
		case sub.ch <- event:
			h.metrics.IncDelivered(string(enums.EventOccupancyChanged))
		default:
			h.metrics.IncDropped(string(enums.EventOccupancyChanged))
		}
	}
}

// Notify adapts the hub to the reservation service's broadcast hook.
func (h *Hub) Notify(itemID uuid.UUID, visitDate string, bookedUnits int) {
	h.Publish(ChangeEvent{ItemID: itemID, VisitDate: visitDate, BookedUnits: bookedUnits})
}

// SubscriberCount reports the number of attached subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}
