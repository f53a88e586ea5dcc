package api

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-client/internal/model"
)

// Stream actions and events, matching the backend exam stream protocol.
type streamAction string

const (
	actionAutosave streamAction = "autosave"
	actionPing     streamAction = "ping"
)

type autosaveRequest struct {
	Action streamAction `json:"action"`
	QID    string       `json:"q_id"`
	Answer string       `json:"ans"`
}

type pingRequest struct {
	Action streamAction `json:"action"`
}

// AutosaveStream is a best-effort WebSocket channel that pushes answers to
// the backend as the student works, so an attempt survives a client crash.
// Every method swallows delivery failures: autosave must never interrupt
// the exam flow.
type AutosaveStream struct {
	conn *websocket.Conn
	log  zerolog.Logger
}

// DialAutosaveStream connects to the exam stream endpoint. The token is
// passed as a query parameter because WebSocket upgrades cannot carry an
// Authorization header from every client.
func DialAutosaveStream(wsBaseURL string, examID uuid.UUID, token string, log zerolog.Logger) (*AutosaveStream, error) {
	url := fmt.Sprintf("%s/ws/v1/student/exams/%s/stream?token=%s", wsBaseURL, examID, token)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial exam stream: %w", err)
	}

	s := &AutosaveStream{
		conn: conn,
		log:  log.With().Str("component", "autosave_stream").Str("exam_id", examID.String()).Logger(),
	}
	go s.drain()
	return s, nil
}

// Save pushes a single answer. Failures are logged and dropped.
func (s *AutosaveStream) Save(questionID uuid.UUID, answer model.Answer) {
	raw, err := json.Marshal(answer)
	if err != nil {
		s.log.Debug().Err(err).Msg("Autosave encode failed")
		return
	}

	msg := autosaveRequest{
		Action: actionAutosave,
		QID:    questionID.String(),
		Answer: string(raw),
	}
	s.write(msg)
}

// Ping keeps the stream alive during idle periods.
func (s *AutosaveStream) Ping() {
	s.write(pingRequest{Action: actionPing})
}

// Close releases the underlying connection.
func (s *AutosaveStream) Close() {
	if s.conn != nil {
		_ = s.conn.Close()
	}
}

func (s *AutosaveStream) write(v interface{}) {
	_ = s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := s.conn.WriteJSON(v); err != nil {
		s.log.Debug().Err(err).Msg("Autosave write failed")
	}
}

// drain consumes server acknowledgements so the read buffer never fills.
// The stream is send-only from the session's point of view.
func (s *AutosaveStream) drain() {
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}
