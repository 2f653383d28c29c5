package http

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"cbt-exam-service/internal/app"
	"cbt-exam-service/internal/domain"
	"cbt-exam-service/internal/export"
	"github.com/gorilla/websocket"
)

const feedWriteTimeout = 10 * time.Second

// FeedHandler streams committed submissions to admins over a websocket.
type FeedHandler struct {
	feed     *app.SubmissionFeed
	upgrader websocket.Upgrader
}

func NewFeedHandler(feed *app.SubmissionFeed) *FeedHandler {
	return &FeedHandler{
		feed: feed,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type submissionPayload struct {
	Timestamp string            `json:"timestamp"`
	Username  string            `json:"username"`
	Answers   map[string]string `json:"answers"`
	Score     int               `json:"score"`
	Total     int               `json:"total"`
}

func newSubmissionPayload(record domain.SubmissionRecord) submissionPayload {
	answers := make(map[string]string, len(record.Answers))
	for _, a := range record.Answers {
		if a.Answered {
			answers["Q"+strconv.FormatInt(a.QuestionID, 10)] = a.Label
		}
	}
	return submissionPayload{
		Timestamp: record.Timestamp.Format(export.TimestampLayout),
		Username:  record.Username,
		Answers:   answers,
		Score:     record.Score,
		Total:     record.Total,
	}
}

// ServeWS upgrades the request and forwards every new submission until the client goes away.
func (h *FeedHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	updates, cancel := h.feed.Subscribe()
	defer cancel()

	// The reader only watches for close frames; admins never send anything.
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	if err := conn.WriteJSON(outboundMessage[struct{}]{Type: "subscribed"}); err != nil {
		log.Printf("ws write error: %v", err)
		return
	}

	for {
		select {
		case record, ok := <-updates:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(feedWriteTimeout))
			if err := conn.WriteJSON(outboundMessage[submissionPayload]{Type: "submission", Payload: newSubmissionPayload(record)}); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		case <-readerDone:
			return
		case <-r.Context().Done():
			return
		}
	}
}
