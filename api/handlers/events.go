package handlers

import (
	"net/http"
	"strconv"

	"github.com/adaptivesql/pooltuner/pkg/models"
	"github.com/gin-gonic/gin"
)

// EventStore serves the capped recent-event ring.
type EventStore interface {
	Recent(n int) []*models.Event
}

type EventsHandler struct {
	store EventStore
}

func NewEventsHandler(store EventStore) *EventsHandler {
	return &EventsHandler{store: store}
}

func (h *EventsHandler) Recent(c *gin.Context) {
	limit := 50
	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	events := h.store.Recent(limit)
	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}
