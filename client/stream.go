package client

import (
	"context"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
)

// WSStream is the websocket implementation of Stream. It joins the case room
// and pumps raw frames into a channel until the connection drops or Close is
// called. Connection loss is not an error surfaced to the feed; the caller
// catches up on the next fetch.
type WSStream struct {
	conn      *websocket.Conn
	messages  chan []byte
	closeOnce sync.Once
}

// DialStream connects to the realtime endpoint for one case. wsURL is the
// ws:// or wss:// address of the /ws route.
func DialStream(ctx context.Context, wsURL, token string, caseID string) (*WSStream, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("token", token)
	q.Set("case_id", caseID)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, err
	}

	s := &WSStream{conn: conn, messages: make(chan []byte, 32)}
	go s.readPump()
	return s, nil
}

func (s *WSStream) readPump() {
	defer close(s.messages)
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		s.messages <- raw
	}
}

func (s *WSStream) Messages() <-chan []byte {
	return s.messages
}

func (s *WSStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.conn.Close()
	})
	return err
}
