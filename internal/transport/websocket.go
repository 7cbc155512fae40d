package transport

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/railtracker-live/internal/common/logger"
)

const handshakeTimeout = 15 * time.Second

// WebSocketCarrier is a Carrier over a server-authenticated TLS WebSocket.
// The server certificate is verified against the PEM trust store given at
// construction; text frames only.
type WebSocketCarrier struct {
	host     string
	endpoint string
	port     string
	certPath string
	logger   logger.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

// NewWebSocketCarrier creates a carrier for wss://host:port/endpoint.
// No connection is attempted until Connect.
func NewWebSocketCarrier(host, endpoint, port, certPath string, log logger.Logger) *WebSocketCarrier {
	return &WebSocketCarrier{
		host:     host,
		endpoint: endpoint,
		port:     port,
		certPath: certPath,
		logger:   log,
	}
}

func (c *WebSocketCarrier) Connect(onUp func(error), onMessage func([]byte), onDown func(error)) {
	tlsConfig, err := c.tlsConfig()
	if err != nil {
		onUp(err)
		return
	}

	u := url.URL{Scheme: "wss", Host: c.host + ":" + c.port, Path: c.endpoint}
	dialer := websocket.Dialer{
		TLSClientConfig:  tlsConfig,
		HandshakeTimeout: handshakeTimeout,
	}
	conn, _, err := dialer.Dial(u.String(), nil)
	if err != nil {
		onUp(fmt.Errorf("dialing %s: %w", u.String(), err))
		return
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.logger.Debug("WebSocket connected", "url", u.String())
	onUp(nil)

	go c.readPump(conn, onMessage, onDown)
}

func (c *WebSocketCarrier) tlsConfig() (*tls.Config, error) {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if c.certPath == "" {
		return cfg, nil
	}
	pem, err := os.ReadFile(c.certPath)
	if err != nil {
		return nil, fmt.Errorf("reading trust store: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates found in %s", c.certPath)
	}
	cfg.RootCAs = pool
	return cfg, nil
}

// readPump delivers inbound messages in arrival order from a single
// goroutine. A read failing after a local Close is the cancelled read
// completing; it is consumed silently instead of surfacing through onDown.
func (c *WebSocketCarrier) readPump(conn *websocket.Conn, onMessage func([]byte), onDown func(error)) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if c.locallyClosed() {
				return
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				onDown(nil)
			} else {
				onDown(fmt.Errorf("reading message: %w", err))
			}
			return
		}
		onMessage(msg)
	}
}

func (c *WebSocketCarrier) Send(msg []byte, onSent func(error)) {
	c.mu.Lock()
	conn := c.conn
	if conn == nil || c.closed {
		c.mu.Unlock()
		onSent(fmt.Errorf("carrier is not connected"))
		return
	}
	// The write happens under the lock so at most one write is in flight.
	err := conn.WriteMessage(websocket.TextMessage, msg)
	c.mu.Unlock()
	if err != nil {
		onSent(fmt.Errorf("writing message: %w", err))
		return
	}
	onSent(nil)
}

func (c *WebSocketCarrier) Close(onClosed func(error)) {
	c.mu.Lock()
	if c.closed || c.conn == nil {
		c.mu.Unlock()
		onClosed(nil)
		return
	}
	c.closed = true
	conn := c.conn
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	err := conn.Close()
	c.mu.Unlock()
	onClosed(err)
}

func (c *WebSocketCarrier) locallyClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
