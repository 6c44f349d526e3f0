package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aravindsuri/dqagent/internal/services"
	"github.com/aravindsuri/dqagent/internal/utils"
	"github.com/aravindsuri/dqagent/pkg/logger"
	"github.com/aravindsuri/dqagent/pkg/response"
)

// keepaliveInterval is how often an idle stream emits an SSE comment so
// intermediate proxies do not reap the connection.
const keepaliveInterval = 25 * time.Second

// EventsHandler streams questionnaire events over Server-Sent Events. A
// client subscribes to one channel, the questionnaire key "CC:YYYY-MM-DD",
// or to "all" for every channel.
type EventsHandler struct {
	hub *services.EventHub
}

func NewEventsHandler(hub *services.EventHub) *EventsHandler {
	return &EventsHandler{hub: hub}
}

// streamToken pulls the JWT from ?token= or the Authorization header.
// EventSource cannot set headers, so the query form is the common path.
func streamToken(c *gin.Context) string {
	if token := c.Query("token"); token != "" {
		return token
	}
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

func writeStreamHeaders(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Header("Access-Control-Allow-Origin", "*")
}

func writeStreamEvent(c *gin.Context, w io.Writer, event services.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		logger.Error().Err(err).Str("event", event.Name).Msg("SSE marshal error")
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Name, data)
	c.Writer.Flush()
}

// Stream handles one SSE connection.
// GET /api/events/:channel
func (h *EventsHandler) Stream(c *gin.Context) {
	token := streamToken(c)
	if token == "" {
		response.Unauthorized(c, "Unauthorized")
		return
	}
	if _, err := utils.ParseToken(token); err != nil {
		response.Unauthorized(c, "Invalid token")
		return
	}

	channel := c.Param("channel")
	if channel == "" || channel == "all" {
		channel = "*"
	}

	writeStreamHeaders(c)

	clientID := uuid.New().String()
	events := h.hub.Subscribe(clientID, channel)
	defer h.hub.Unsubscribe(clientID)

	logger.Info().Str("client_id", clientID).Str("channel", channel).Int("total", h.hub.ClientCount()).Msg("SSE client connected")

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-events:
			if !ok {
				return false
			}
			writeStreamEvent(c, w, event)
			return true
		case <-keepalive.C:
			// Comment lines hold the connection open without waking
			// EventSource message handlers on the client.
			fmt.Fprint(w, ": keepalive\n\n")
			c.Writer.Flush()
			return true
		case <-c.Request.Context().Done():
			logger.Info().Str("client_id", clientID).Msg("SSE client disconnected")
			return false
		}
	})
}
