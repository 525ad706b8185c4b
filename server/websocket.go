package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/fyde-finance/fyde/common/log"
	"github.com/fyde-finance/fyde/events"
)

const (
	configMaxSession    = 10
	configEventBuffer   = 256
	configWriteDeadline = 10 * time.Second
)

func Upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
}

type wsSession struct {
	c *websocket.Conn
}

type wsSessionManager struct {
	sync.Mutex
	maxSession int
	sessions   []*wsSession
	log        log.Logger
}

func newWSSessionManager(logger log.Logger) *wsSessionManager {
	return &wsSessionManager{
		maxSession: configMaxSession,
		log:        logger.WithFields(log.Fields{log.FieldKeyModule: "server"}),
	}
}

func (wm *wsSessionManager) NewSession(c *websocket.Conn) *wsSession {
	wm.Lock()
	defer wm.Unlock()

	if len(wm.sessions) >= wm.maxSession {
		return nil
	}
	wss := &wsSession{c}
	wm.sessions = append(wm.sessions, wss)
	return wss
}

func (wm *wsSessionManager) StopSession(wss *wsSession) {
	wm.Lock()
	defer wm.Unlock()

	for i := 0; i < len(wm.sessions); i++ {
		if wss == wm.sessions[i] {
			if wss.c != nil {
				wss.c.Close()
				wss.c = nil
			}
			last := len(wm.sessions) - 1
			wm.sessions[i] = wm.sessions[last]
			wm.sessions[last] = nil
			wm.sessions = wm.sessions[:last]
			return
		}
	}
}

func (wm *wsSessionManager) StopAllSessions() {
	wm.Lock()
	defer wm.Unlock()

	for _, wss := range wm.sessions {
		if wss.c != nil {
			wss.c.Close()
			wss.c = nil
		}
	}
	wm.sessions = nil
}

// RunEventSession streams journal events to the client as JSON
// messages until the client goes away.
func (wm *wsSessionManager) RunEventSession(journal *events.Journal) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		upgrader := Upgrader()
		c, err := upgrader.Upgrade(ctx.Response(), ctx.Request(), nil)
		if err != nil {
			return err
		}

		wss := wm.NewSession(c)
		if wss == nil {
			c.Close()
			return echo.NewHTTPError(http.StatusTooManyRequests, "too many stream sessions")
		}
		defer wm.StopSession(wss)

		ch := make(chan events.Event, configEventBuffer)
		unsubscribe := journal.Subscribe(ch)
		defer unsubscribe()

		closed := make(chan struct{})
		go func() {
			// the read pump only detects disconnects
			defer close(closed)
			for {
				if _, _, err := c.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-closed:
				return nil
			case ev := <-ch:
				bs, err := journal.MarshalEvent(&ev)
				if err != nil {
					wm.log.Warnf("FailToMarshalEvent(seq=%d,err=%+v)", ev.Seq, err)
					continue
				}
				_ = c.SetWriteDeadline(time.Now().Add(configWriteDeadline))
				if err := c.WriteMessage(websocket.TextMessage, bs); err != nil {
					return nil
				}
			}
		}
	}
}
