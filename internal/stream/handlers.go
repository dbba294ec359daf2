package stream

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// RegisterRoutes mounts the live trip feed. Viewers connect with a trip id
// and receive track points as they are ingested.
func RegisterRoutes(r fiber.Router, hub *Hub) {
	r.Get("/ws/:tripID", websocket.New(func(c *websocket.Conn) {
		tripID := c.Params("tripID")
		viewer := hub.Register(tripID)
		defer hub.Unregister(viewer)

		done := make(chan struct{})
		go func() {
			for msg := range viewer.Send {
				if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
					break
				}
			}
			close(done)
		}()

		for {
			if _, _, err := c.ReadMessage(); err != nil {
				break
			}
		}
		<-done
	}))
}
