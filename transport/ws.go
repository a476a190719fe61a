package transport

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WSControl bridges a line-oriented control protocol over a WebSocket
// connection, for deployments where a raw TCP socket to the radio isn't
// reachable (e.g. a browser-facing relay). Each Write is sent as one text
// frame; inbound text frames are buffered and handed back out through Read
// so the protocol engine's bufio.Scanner sees the same byte stream it would
// over a plain TCP socket.
type WSControl struct {
	conn *websocket.Conn

	wmu sync.Mutex

	rmu sync.Mutex
	buf bytes.Buffer
}

// DialWSControl dials a WebSocket control bridge at url ("ws://..." or
// "wss://...").
func DialWSControl(url string) (*WSControl, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: dial ws control %s: %w", url, err)
	}
	return &WSControl{conn: conn}, nil
}

func (w *WSControl) Write(p []byte) (int, error) {
	w.wmu.Lock()
	defer w.wmu.Unlock()
	if err := w.conn.WriteMessage(websocket.TextMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *WSControl) Read(p []byte) (int, error) {
	w.rmu.Lock()
	defer w.rmu.Unlock()

	for w.buf.Len() == 0 {
		_, data, err := w.conn.ReadMessage()
		if err != nil {
			return 0, err
		}
		w.buf.Write(data)
		if len(data) == 0 || data[len(data)-1] != '\n' {
			w.buf.WriteByte('\n')
		}
	}
	return w.buf.Read(p)
}

func (w *WSControl) Close() error {
	w.wmu.Lock()
	_ = w.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	w.wmu.Unlock()
	return w.conn.Close()
}
