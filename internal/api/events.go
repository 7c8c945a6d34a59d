package api

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rebuild-dev/rebuild-server/pkg/storage"
)

// EventHubBufferSize defines the number of events queued per subscriber before further events are dropped.
const EventHubBufferSize = 64

// EventHub forwards the write events of the stores to all connected WebSocket clients.
type EventHub struct {
	upgrader    websocket.Upgrader
	mutex       sync.RWMutex
	subscribers map[chan storage.Event]struct{}
}

func NewEventHub() *EventHub {
	return &EventHub{
		upgrader: websocket.Upgrader{
			// The frontend runs on a different origin during development.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		subscribers: make(map[chan storage.Event]struct{}),
	}
}

// Publish is a storage.Observer. It never blocks: slow subscribers miss events.
func (h *EventHub) Publish(event storage.Event) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	for subscriber := range h.subscribers {
		select {
		case subscriber <- event:
		default:
			log.WithField("resource", event.Store).WithField("id", event.ID).Warn("Dropping event for slow subscriber")
		}
	}
}

// Subscribers returns the number of connected clients.
func (h *EventHub) Subscribers() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.subscribers)
}

func (h *EventHub) subscribe() chan storage.Event {
	subscriber := make(chan storage.Event, EventHubBufferSize)
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.subscribers[subscriber] = struct{}{}
	return subscriber
}

func (h *EventHub) unsubscribe(subscriber chan storage.Event) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	delete(h.subscribers, subscriber)
}

// ServeHTTP upgrades the request to a WebSocket connection and streams the events as JSON until the client leaves.
func (h *EventHub) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	connection, err := h.upgrader.Upgrade(writer, request, nil)
	if err != nil {
		log.WithContext(request.Context()).WithError(err).Warn("Connection upgrade failed")
		return
	}
	defer func() {
		if err := connection.Close(); err != nil {
			log.WithError(err).Debug("Error closing event connection")
		}
	}()

	subscriber := h.subscribe()
	defer h.unsubscribe(subscriber)

	ctx, cancel := context.WithCancel(request.Context())
	defer cancel()
	go readUntilClosed(connection, cancel)

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-subscriber:
			if err := connection.WriteJSON(event); err != nil {
				log.WithError(err).Debug("Could not send event")
				return
			}
		}
	}
}

// readUntilClosed discards client messages. Reading is required for the close handshake to be processed.
func readUntilClosed(connection *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	for {
		if _, _, err := connection.NextReader(); err != nil {
			return
		}
	}
}
