package market

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"gridbot/logger"
)

const (
	okxPublicWSURL = "wss://ws.okx.com:8443/ws/v5/public"
	wsPingInterval = 20 * time.Second
	wsReadTimeout  = 30 * time.Second
)

// TickerMonitor streams live tickers for one instrument over the OKX public
// websocket. It reconnects with backoff; consumers poll Latest() and fall
// back to REST when the stream goes stale.
type TickerMonitor struct {
	instID string
	url    string

	mu       sync.RWMutex
	last     float64
	lastTime time.Time
}

// NewTickerMonitor creates a monitor for the given instrument ID.
func NewTickerMonitor(instID string) *TickerMonitor {
	return &TickerMonitor{
		instID: instID,
		url:    okxPublicWSURL,
	}
}

// Latest returns the most recently streamed price and when it arrived,
// zero values before the first update.
func (m *TickerMonitor) Latest() (float64, time.Time) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last, m.lastTime
}

// Run connects and streams until the context is cancelled, reconnecting
// with increasing backoff on failure.
func (m *TickerMonitor) Run(ctx context.Context) {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}

		err := m.stream(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			logger.Warnf("[WS] ticker stream disconnected: %v, reconnecting in %v", err, backoff)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

type wsSubscribeReq struct {
	Op   string          `json:"op"`
	Args []wsChannelArgs `json:"args"`
}

type wsChannelArgs struct {
	Channel string `json:"channel"`
	InstID  string `json:"instId"`
}

type wsTickerMsg struct {
	Event string `json:"event,omitempty"`
	Arg   struct {
		Channel string `json:"channel"`
		InstID  string `json:"instId"`
	} `json:"arg"`
	Data []struct {
		Last   string `json:"last"`
		BidPx  string `json:"bidPx"`
		AskPx  string `json:"askPx"`
		Vol24h string `json:"vol24h"`
	} `json:"data"`
}

func (m *TickerMonitor) stream(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, m.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	sub := wsSubscribeReq{
		Op:   "subscribe",
		Args: []wsChannelArgs{{Channel: "tickers", InstID: m.instID}},
	}
	if err := conn.WriteJSON(sub); err != nil {
		return err
	}
	logger.Infof("[WS] subscribed to tickers for %s", m.instID)

	// OKX closes idle connections; send a text ping periodically.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				conn.Close()
				return
			case <-ticker.C:
				if err := conn.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
					return
				}
			}
		}
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if string(raw) == "pong" {
			continue
		}

		var msg wsTickerMsg
		if err := json.Unmarshal(raw, &msg); err != nil {
			logger.Debugf("[WS] skipping unparseable message: %v", err)
			continue
		}
		if msg.Event != "" || len(msg.Data) == 0 {
			continue
		}

		last, err := strconv.ParseFloat(msg.Data[0].Last, 64)
		if err != nil || last <= 0 {
			continue
		}

		m.mu.Lock()
		m.last = last
		m.lastTime = time.Now()
		m.mu.Unlock()
	}
}
