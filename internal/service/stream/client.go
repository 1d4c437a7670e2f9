package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"VolScreen/internal/domain/models"
	drepo "VolScreen/internal/domain/repository"
	"VolScreen/internal/service/ratelimit"
	"VolScreen/pkg/logger"
)

const providerName = "stream"

// sessionState tracks one candle-collection session. The state machine is
// linear: connecting -> accumulating -> completed | timedOut.
type sessionState int

const (
	stateConnecting sessionState = iota
	stateAccumulating
	stateCompleted
	stateTimedOut
)

// Client collects daily candles over a WebSocket feed. One FetchCandles call
// is one session: subscribe, accumulate until the server signals end of
// history or the deadline fires, then evaluate the minimum-sample gate.
type Client struct {
	url     string
	apiKey  string
	timeout time.Duration
	rc      *ratelimit.Controller
	log     *logger.Logger
}

// New creates a streaming candle source.
func New(url, apiKey string, timeout time.Duration, rc *ratelimit.Controller, log *logger.Logger) drepo.CandleSource {
	return &Client{
		url:     url,
		apiKey:  apiKey,
		timeout: timeout,
		rc:      rc,
		log:     log,
	}
}

type wireCandle struct {
	T int64   `json:"t"` // unix seconds
	O float64 `json:"o"`
	H float64 `json:"h"`
	L float64 `json:"l"`
	C float64 `json:"c"`
	V float64 `json:"v"`
}

type wireMessage struct {
	Type   string       `json:"type"`
	Symbol string       `json:"symbol"`
	Data   []wireCandle `json:"data"`
}

// FetchCandles accumulates up to windowDays daily candles for symbol. If the
// deadline fires first, the partial series is returned as long as it holds at
// least minSamples candles; fewer is a StreamTimeoutError.
func (c *Client) FetchCandles(ctx context.Context, symbol string, windowDays, minSamples int) ([]models.Candle, error) {
	if err := c.rc.Acquire(ctx, providerName); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	state := stateConnecting
	u := c.url
	if c.apiKey != "" {
		u = fmt.Sprintf("%s?token=%s", c.url, c.apiKey)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		c.rc.OnResponse(providerName, 0, 0)
		return nil, &models.TransientError{Provider: providerName, Err: fmt.Errorf("dial: %w", err)}
	}
	defer conn.Close()
	c.rc.OnResponse(providerName, 200, 0)

	sub := map[string]interface{}{"type": "candles", "symbol": symbol, "days": windowDays}
	if err := conn.WriteJSON(sub); err != nil {
		return nil, &models.TransientError{Provider: providerName, Err: fmt.Errorf("subscribe %s: %w", symbol, err)}
	}
	state = stateAccumulating

	// Unblocks the read loop when the deadline fires.
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	frames := make(chan []models.Candle, 16)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go c.readLoop(conn, symbol, frames, readErr, done)

	var candles []models.Candle
	for state == stateAccumulating {
		select {
		case batch, ok := <-frames:
			if !ok {
				state = stateCompleted
				break
			}
			candles = append(candles, batch...)
			if len(candles) >= windowDays {
				// A multi-candle frame can overshoot the window; keep the
				// most recent windowDays.
				candles = candles[len(candles)-windowDays:]
				state = stateCompleted
			}
		case err := <-readErr:
			if ctx.Err() != nil {
				state = stateTimedOut
				break
			}
			if len(candles) == 0 {
				return nil, &models.TransientError{Provider: providerName, Err: err}
			}
			c.log.Warn("stream closed mid-session",
				logger.String("symbol", symbol), logger.Error(err))
			state = stateTimedOut
		case <-ctx.Done():
			state = stateTimedOut
		}
	}

	if state == stateTimedOut && len(candles) < minSamples {
		return nil, &models.StreamTimeoutError{
			Symbol:     symbol,
			Received:   len(candles),
			MinSamples: minSamples,
		}
	}
	return candles, nil
}

func (c *Client) readLoop(conn *websocket.Conn, symbol string, frames chan<- []models.Candle, readErr chan<- error, done <-chan struct{}) {
	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			select {
			case readErr <- fmt.Errorf("read: %w", err):
			case <-done:
			}
			return
		}
		var m wireMessage
		if err := json.Unmarshal(b, &m); err != nil {
			// ignore frames we do not understand
			continue
		}
		switch m.Type {
		case "candle":
			batch := make([]models.Candle, 0, len(m.Data))
			for _, d := range m.Data {
				batch = append(batch, models.Candle{
					Symbol: symbol,
					Time:   time.Unix(d.T, 0).UTC(),
					Open:   d.O,
					High:   d.H,
					Low:    d.L,
					Close:  d.C,
					Volume: d.V,
				})
			}
			select {
			case frames <- batch:
			case <-done:
				return
			}
		case "eof":
			close(frames)
			return
		}
	}
}
