package server

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type realtimeEventPayload struct {
	Source     string `json:"source"`
	QuestionID int64  `json:"question_id"`
	Target     string `json:"target,omitempty"`
	TargetID   int64  `json:"target_id,omitempty"`
	Rating     *int   `json:"rating,omitempty"`
	Timestamp  string `json:"timestamp"`
}

// handleQuestionEvents streams rating and answer events for one question as
// server-sent events, with periodic heartbeats.
func (h *httpHandler) handleQuestionEvents(c *gin.Context) {
	questionID, ok := h.pathID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if _, err := h.questions.GetQuestion(ctx, questionID); err != nil {
		h.respondError(c, err)
		return
	}

	stream, cleanup := h.realtime.Subscribe(ctx, questionID)
	defer cleanup()

	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	greeted := false
	c.Stream(func(w io.Writer) bool {
		if !greeted {
			greeted = true
			c.SSEvent(realtimeEventHeartbeat, heartbeatPayload(questionID))
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case message, open := <-stream:
			if !open {
				return false
			}
			c.SSEvent(message.EventType, eventPayload(message))
			return true
		case <-ticker.C:
			c.SSEvent(realtimeEventHeartbeat, heartbeatPayload(questionID))
			return true
		}
	})
}

func eventPayload(message RealtimeMessage) realtimeEventPayload {
	payload := realtimeEventPayload{
		Source:     realtimeSourceBackend,
		QuestionID: message.QuestionID,
		Target:     message.TargetKind,
		TargetID:   message.TargetID,
		Timestamp:  message.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	if message.EventType == RealtimeEventRatingChanged {
		rating := message.Rating
		payload.Rating = &rating
	}
	return payload
}

func heartbeatPayload(questionID int64) realtimeEventPayload {
	return realtimeEventPayload{
		Source:     realtimeSourceBackend,
		QuestionID: questionID,
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
	}
}
