package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type inboxItem struct {
	Id         string          `json:"id"`
	Type       string          `json:"type"`
	Object     string          `json:"object,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	ReceivedAt time.Time       `json:"receivedAt"`
}

// HandlePostInbox ingests activities a peer or a local component pushed
// to an author's inbox.
func (s *Server) HandlePostInbox(c *gin.Context) {
	id, ok := paramId(c, "id")
	if !ok {
		return
	}
	body, err := c.GetRawData()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Request body too large"})
			return
		}
		slog.Warn("Inbox: failed to read body", "recipient", id, "error", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	results, err := s.processor.IngestEnvelope(c.Request.Context(), id, body)
	if err != nil {
		slog.Info("Inbox: rejected", "recipient", id, "ip", c.ClientIP(), "stored", len(results), "error", err)
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"type": "inbox", "items": results})
}

func (s *Server) HandleGetInbox(c *gin.Context) {
	author, ok := s.localAuthor(c)
	if !ok {
		return
	}
	entries, err := s.store.ReadInbox(author.Id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	items := make([]inboxItem, 0, len(entries))
	for _, e := range entries {
		item := inboxItem{
			Id:         e.Id.String(),
			Type:       e.Type,
			Object:     e.Object,
			ReceivedAt: e.ReceivedAt,
		}
		if json.Valid([]byte(e.Payload)) {
			item.Payload = json.RawMessage(e.Payload)
		}
		items = append(items, item)
	}
	c.JSON(http.StatusOK, gin.H{"type": "inbox", "author": author.URL, "items": items})
}
