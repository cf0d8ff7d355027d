/**
 * @description
 * Odds streaming handler.
 * Streams live odds updates over SSE, fed by the Redis-backed fan-out hub.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2
 * - backend/internal/services
 */

package handlers

import (
	"bufio"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/prophecy-market/backend/internal/services"
)

type StreamHandler struct {
	Hub *services.OddsStreamHub
}

func NewStreamHandler(hub *services.OddsStreamHub) *StreamHandler {
	return &StreamHandler{Hub: hub}
}

// StreamOddsUpdates streams live odds updates over SSE
// GET /api/v1/predictions/stream
func (h *StreamHandler) StreamOddsUpdates(c *fiber.Ctx) error {
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")

	requestCtx := c.Context()
	ch, unsubscribe := h.Hub.Subscribe()

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer unsubscribe()

		requestDone := requestCtx.Done()

		for {
			select {
			case <-requestDone:
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				fmt.Fprintf(w, "data: %s\n\n", msg)
				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	})

	return nil
}
