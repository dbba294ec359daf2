package stream

import (
	"context"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Hub fans trip feed payloads out to connected viewers. Broadcasts also go
// through redis pub/sub so viewers connected to another instance see the
// same feed.
type Hub struct {
	redis   *redis.Client
	viewers map[string]map[*Viewer]struct{}
	mu      sync.RWMutex
}

// Viewer is one websocket subscriber to a trip feed.
type Viewer struct {
	TripID string
	Send   chan []byte
}

func NewHub(redisClient *redis.Client) *Hub {
	h := &Hub{
		redis:   redisClient,
		viewers: map[string]map[*Viewer]struct{}{},
	}

	if redisClient != nil {
		go h.subscribeRedis()
	}
	return h
}

func (h *Hub) Register(tripID string) *Viewer {
	viewer := &Viewer{
		TripID: tripID,
		Send:   make(chan []byte, 64),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.viewers[tripID] == nil {
		h.viewers[tripID] = map[*Viewer]struct{}{}
	}
	h.viewers[tripID][viewer] = struct{}{}
	return viewer
}

func (h *Hub) Unregister(viewer *Viewer) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if tripViewers, ok := h.viewers[viewer.TripID]; ok {
		delete(tripViewers, viewer)
		if len(tripViewers) == 0 {
			delete(h.viewers, viewer.TripID)
		}
	}
	close(viewer.Send)
}

func (h *Hub) Broadcast(tripID string, payload []byte) {
	h.mu.RLock()
	viewers := h.viewers[tripID]
	h.mu.RUnlock()

	for viewer := range viewers {
		select {
		case viewer.Send <- payload:
		default:
		}
	}

	if h.redis != nil {
		err := h.redis.Publish(context.Background(), redisChannel(tripID), payload).Err()
		if err != nil {
			log.Printf("redis publish error: %v", err)
		}
	}
}

func (h *Hub) subscribeRedis() {
	ctx := context.Background()
	pubsub := h.redis.Subscribe(ctx, "trips:*:feed")
	defer pubsub.Close()

	for msg := range pubsub.Channel() {
		tripID := tripIDFromChannel(msg.Channel)
		h.mu.RLock()
		viewers := h.viewers[tripID]
		h.mu.RUnlock()
		for viewer := range viewers {
			select {
			case viewer.Send <- []byte(msg.Payload):
			default:
			}
		}
	}
}

func redisChannel(tripID string) string {
	return "trips:" + tripID + ":feed"
}

func tripIDFromChannel(ch string) string {
	// trips:{trip}:feed
	const prefix = "trips:"
	const suffix = ":feed"
	if len(ch) <= len(prefix)+len(suffix) {
		return ""
	}
	return ch[len(prefix) : len(ch)-len(suffix)]
}
