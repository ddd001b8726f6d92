package server

import (
	"net/http"
	"time"

	"github.com/danmuck/wearctl/internal/events"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const wsWriteTimeout = 5 * time.Second

// wsMessage is one streamed event.
type wsMessage struct {
	Kind  string       `json:"kind"`
	Event events.Event `json:"event"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleWS streams events as JSON text messages. Repeating the device query
// parameter narrows the stream to those devices; kind does the same for
// event kinds.
func (s *Server) handleWS(c *gin.Context) {
	devices := set(c.QueryArray("device"))
	kinds := set(c.QueryArray("kind"))
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Debug().Msgf("server.Server.handleWS upgrade err=%v", err)
		return
	}
	defer conn.Close()

	sub := s.events.Subscribe()
	defer s.events.Unsubscribe(sub)

	// reads only detect the peer closing
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	log.Debug().Msgf("server.Server.handleWS open remote=%s devices=%d kinds=%d", c.Request.RemoteAddr, len(devices), len(kinds))
	for {
		select {
		case <-closed:
			return
		case ev, ok := <-sub:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(wsWriteTimeout))
				return
			}
			if !match(devices, ev.DeviceID()) || !match(kinds, ev.Kind()) {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(wsMessage{Kind: ev.Kind(), Event: ev}); err != nil {
				log.Debug().Msgf("server.Server.handleWS write err=%v", err)
				return
			}
		}
	}
}

func set(values []string) map[string]struct{} {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		out[v] = struct{}{}
	}
	return out
}

func match(filter map[string]struct{}, v string) bool {
	if filter == nil {
		return true
	}
	_, ok := filter[v]
	return ok
}
