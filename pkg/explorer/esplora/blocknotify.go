package esplora

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/blockwatch-network/blockwatch-daemon/pkg/explorer"
)

const pingInterval = 30 * time.Second

// blockNotifier subscribes to the websocket block feed exposed by
// mempool-flavored esplora instances and forwards the height of every newly
// mined block. When the connection drops it reconnects with a fresh
// subscription; the caller's poller covers any blocks missed in between.
type blockNotifier struct {
	wsURL string

	conn        *websocket.Conn
	writeTicker *time.Ticker

	blockChan chan uint64
	quitChan  chan struct{}
}

// NewBlockNotifier returns an explorer.BlockNotifier connected to the given
// websocket endpoint.
func NewBlockNotifier(wsURL string) explorer.BlockNotifier {
	return &blockNotifier{
		wsURL:     wsURL,
		blockChan: make(chan uint64, 10),
		quitChan:  make(chan struct{}, 1),
	}
}

func (b *blockNotifier) BlockChan() chan uint64 {
	return b.blockChan
}

func (b *blockNotifier) Start() error {
	conn, err := connectAndSubscribe(b.wsURL)
	if err != nil {
		return err
	}
	b.conn = conn
	b.writeTicker = time.NewTicker(pingInterval)

	mustReconnect, err := b.start()
	for mustReconnect {
		log.WithError(err).Warn("block feed dropped unexpectedly. Trying to reconnect...")

		conn, err = connectAndSubscribe(b.wsURL)
		if err != nil {
			return err
		}
		b.conn = conn

		log.Debug("block feed re-established. Restarting...")
		mustReconnect, err = b.start()
	}

	return err
}

func (b *blockNotifier) Stop() {
	b.quitChan <- struct{}{}
}

func (b *blockNotifier) start() (mustReconnect bool, err error) {
	msgChan := make(chan []byte)
	errChan := make(chan error, 1)

	go func() {
		for {
			_, msg, err := b.conn.ReadMessage()
			if err != nil {
				errChan <- err
				return
			}
			msgChan <- msg
		}
	}()

	for {
		select {
		case <-b.quitChan:
			b.writeTicker.Stop()
			b.conn.Close()
			close(b.blockChan)
			return false, nil
		case <-b.writeTicker.C:
			if err := b.conn.WriteMessage(
				websocket.PingMessage, nil,
			); err != nil {
				return true, err
			}
		case err := <-errChan:
			return true, err
		case msg := <-msgChan:
			if height, ok := parseBlockMessage(msg); ok {
				b.blockChan <- height
			}
		}
	}
}

func connectAndSubscribe(wsURL string) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return nil, err
	}

	subscription := map[string]interface{}{
		"action": "want",
		"data":   []string{"blocks"},
	}
	if err := conn.WriteJSON(subscription); err != nil {
		conn.Close()
		return nil, err
	}

	return conn, nil
}

func parseBlockMessage(msg []byte) (uint64, bool) {
	var payload struct {
		Block *struct {
			Height uint64 `json:"height"`
		} `json:"block"`
	}
	if err := json.Unmarshal(msg, &payload); err != nil {
		return 0, false
	}
	if payload.Block == nil {
		return 0, false
	}
	return payload.Block.Height, true
}
