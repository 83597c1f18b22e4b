package webserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zsprackett/claude-usage/internal/events"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWS pushes every event to the client as a JSON text message. The
// first message is a snapshot of the latest record. Client messages are
// read only to notice disconnects.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ch := make(chan events.Event, 16)
	s.addClient(ch)
	defer s.removeClient(ch)
	s.logger.Debug("websocket client connected", "remote", r.RemoteAddr, "subject", subjectFrom(r.Context()))

	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := writeWS(conn, s.snapshotEvent()); err != nil {
		return
	}

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-ch:
			if err := writeWS(conn, e); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}

func writeWS(conn *websocket.Conn, e events.Event) error {
	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(e)
}
