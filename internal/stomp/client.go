package stomp

import (
	"bytes"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"sync"

	"github.com/railtracker-live/internal/common/logger"
	"github.com/railtracker-live/internal/transport"
)

// Session errors.
var (
	ErrSessionState    = errors.New("stomp: unexpected frame for session state")
	ErrReceiptMismatch = errors.New("stomp: receipt id mismatch")
	ErrServerError     = errors.New("stomp: server error frame")
)

// State is the session lifecycle state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateSubscribing
	StateSubscribed
	StateClosing
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateSubscribing:
		return "subscribing"
	case StateSubscribed:
		return "subscribed"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Handler receives the outcome of a session operation or an inbound message.
// body is the frame body on success and a diagnostic on failure.
type Handler func(err error, body string)

// SubscribeToken carries the ids generated for a subscription.
type SubscribeToken struct {
	SubscriptionID string
	ReceiptID      string
}

// Client drives a STOMP 1.2 session over a message-oriented carrier.
//
// All inbound routing happens on the carrier's single delivery goroutine,
// so handlers are never invoked concurrently and message order equals wire
// order. The state mutex only guards against Connect/Subscribe/Close racing
// the delivery goroutine; handlers are always invoked with the mutex
// released, so a handler may call back into the client.
type Client struct {
	carrier     transport.Carrier
	host        string
	destination string
	logger      logger.Logger

	mu             sync.Mutex
	state          State
	subscriptionID string
	receiptID      string

	onConnect    Handler
	onDisconnect Handler
	onSubscribe  Handler
	onMessage    Handler
}

// NewClient creates a session over the given carrier. host goes into the
// STOMP connect frame; destination is the subscription target checked
// against inbound MESSAGE frames.
func NewClient(carrier transport.Carrier, host, destination string, log logger.Logger) *Client {
	return &Client{
		carrier:     carrier,
		host:        host,
		destination: destination,
		logger:      log,
		state:       StateIdle,
	}
}

// Connect opens the carrier and performs the STOMP connect handshake.
// onConnect fires once with the handshake outcome; onDisconnect fires if
// the session later terminates on a transport or server error.
func (c *Client) Connect(username, password string, onConnect, onDisconnect Handler) {
	c.mu.Lock()
	if c.state != StateIdle {
		state := c.state
		c.mu.Unlock()
		onConnect(fmt.Errorf("%w: connect while %v", ErrSessionState, state), "")
		return
	}
	c.state = StateConnecting
	c.onConnect = onConnect
	c.onDisconnect = onDisconnect
	c.mu.Unlock()

	c.carrier.Connect(
		func(err error) {
			if err != nil {
				c.fail()
				onConnect(err, "")
				return
			}
			c.sendConnectFrame(username, password)
		},
		c.handleMessage,
		c.handleDown,
	)
}

func (c *Client) sendConnectFrame(username, password string) {
	pairs := []HeaderValue{
		{HeaderAcceptVersion, "1.2"},
		{HeaderHost, c.host},
	}
	if username != "" {
		pairs = append(pairs, HeaderValue{HeaderLogin, username})
	}
	if password != "" {
		pairs = append(pairs, HeaderValue{HeaderPasscode, password})
	}
	c.carrier.Send(marshalFrame(CommandStomp, pairs, nil), func(err error) {
		if err != nil {
			c.fail()
			c.handler(&c.onConnect)(fmt.Errorf("sending connect frame: %w", err), "")
		}
	})
}

// Subscribe requests delivery from the configured destination. Calling it
// while already subscribed is idempotent and returns the stored token.
func (c *Client) Subscribe(onSubscribe, onMessage Handler) SubscribeToken {
	c.mu.Lock()
	if c.state == StateSubscribed {
		token := SubscribeToken{c.subscriptionID, c.receiptID}
		c.mu.Unlock()
		return token
	}
	if c.state != StateConnected {
		state := c.state
		c.mu.Unlock()
		onSubscribe(fmt.Errorf("%w: subscribe while %v", ErrSessionState, state), "")
		return SubscribeToken{}
	}
	c.subscriptionID = strconv.Itoa(rand.IntN(100000))
	c.receiptID = strconv.Itoa(rand.IntN(100000))
	c.state = StateSubscribing
	c.onSubscribe = onSubscribe
	c.onMessage = onMessage
	token := SubscribeToken{c.subscriptionID, c.receiptID}
	c.mu.Unlock()

	msg := marshalFrame(CommandSubscribe, []HeaderValue{
		{HeaderID, token.SubscriptionID},
		{HeaderReceipt, token.ReceiptID},
		{HeaderDestination, c.destination},
		{HeaderAck, "auto"},
	}, nil)
	c.carrier.Send(msg, func(err error) {
		if err != nil {
			c.fail()
			c.handler(&c.onSubscribe)(fmt.Errorf("sending subscribe frame: %w", err), "")
		}
	})
	return token
}

// Close tears the session down. The carrier suppresses the cancelled read,
// so no disconnect handler fires for a locally initiated close.
func (c *Client) Close(onClose func(error)) {
	c.mu.Lock()
	if c.state == StateClosed || c.state == StateFailed {
		c.mu.Unlock()
		onClose(nil)
		return
	}
	c.state = StateClosing
	c.mu.Unlock()

	c.carrier.Close(func(err error) {
		c.mu.Lock()
		c.state = StateClosed
		c.mu.Unlock()
		onClose(err)
	})
}

// IsConnected reports whether the connect handshake has completed and the
// session has not terminated.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateConnected || c.state == StateSubscribing || c.state == StateSubscribed
}

// IsSubscribed reports whether the subscription is live.
func (c *Client) IsSubscribed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateSubscribed
}

// IsDisconnected reports whether the session reached a terminal state.
func (c *Client) IsDisconnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateClosed || c.state == StateFailed
}

// handleMessage routes one inbound frame. It runs on the carrier's delivery
// goroutine.
func (c *Client) handleMessage(msg []byte) {
	frame, err := ParseFrame(msg)
	if err != nil {
		c.routeError(fmt.Errorf("parsing inbound frame: %w", err), string(msg))
		return
	}

	c.mu.Lock()
	state := c.state
	c.mu.Unlock()

	switch frame.Command() {
	case CommandConnected:
		if state != StateConnecting {
			c.unexpectedFrame(frame, state)
			return
		}
		c.mu.Lock()
		c.state = StateConnected
		c.mu.Unlock()
		c.handler(&c.onConnect)(nil, "")

	case CommandReceipt:
		if state != StateSubscribing {
			c.unexpectedFrame(frame, state)
			return
		}
		c.mu.Lock()
		match := frame.Header(HeaderReceiptID) == c.receiptID
		if match {
			c.state = StateSubscribed
		} else {
			c.state = StateFailed
		}
		c.mu.Unlock()
		if match {
			c.handler(&c.onSubscribe)(nil, "")
		} else {
			c.handler(&c.onSubscribe)(fmt.Errorf("%w: got %q", ErrReceiptMismatch, frame.Header(HeaderReceiptID)), string(msg))
		}

	case CommandMessage:
		if state != StateSubscribed {
			c.unexpectedFrame(frame, state)
			return
		}
		c.mu.Lock()
		valid := frame.Header(HeaderSubscription) == c.subscriptionID &&
			frame.Header(HeaderDestination) == c.destination
		c.mu.Unlock()
		if valid {
			c.handler(&c.onMessage)(nil, string(frame.Body()))
		} else {
			c.handler(&c.onMessage)(fmt.Errorf("%w: invalid headers", ErrSessionState), "invalid headers")
		}

	case CommandError:
		c.handleServerError(state, frame)

	default:
		c.unexpectedFrame(frame, state)
	}
}

// handleServerError maps an inbound ERROR frame to the callback of the
// phase the session is in. An ERROR during either handshake, or while
// subscribed, is fatal.
func (c *Client) handleServerError(state State, frame *Frame) {
	err := fmt.Errorf("%w: %s", ErrServerError, frame.Body())
	switch state {
	case StateConnecting:
		c.fail()
		c.handler(&c.onConnect)(err, string(frame.Body()))
	case StateSubscribing:
		c.fail()
		c.handler(&c.onSubscribe)(err, string(frame.Body()))
	case StateSubscribed:
		c.handler(&c.onMessage)(err, string(frame.Body()))
		c.fail()
		c.handler(&c.onDisconnect)(err, "")
	default:
		c.logger.Warn("Server error frame in unexpected state", "state", state.String(), "body", string(frame.Body()))
	}
}

// routeError surfaces a frame parse or validation failure through the
// callback of the current phase. Handshake phases fail the session.
func (c *Client) routeError(err error, detail string) {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()

	switch state {
	case StateConnecting:
		c.fail()
		c.handler(&c.onConnect)(err, detail)
	case StateSubscribing:
		c.fail()
		c.handler(&c.onSubscribe)(err, detail)
	case StateSubscribed:
		c.handler(&c.onMessage)(err, detail)
	default:
		c.logger.Warn("Dropping broken frame", "state", state.String(), "error", err)
	}
}

func (c *Client) unexpectedFrame(frame *Frame, state State) {
	err := fmt.Errorf("%w: %v while %v", ErrSessionState, frame.Command(), state)
	if state == StateSubscribed {
		c.handler(&c.onMessage)(err, "unhandled")
		return
	}
	c.routeError(err, "unhandled")
}

// handleDown reacts to the carrier stream ending. Before the connect
// handshake completes this fails the connect; afterwards it fails the
// session and notifies the disconnect handler.
func (c *Client) handleDown(err error) {
	c.mu.Lock()
	state := c.state
	c.state = StateFailed
	c.mu.Unlock()

	if state == StateConnecting {
		c.handler(&c.onConnect)(fmt.Errorf("transport down: %w", err), "")
		return
	}
	c.handler(&c.onDisconnect)(err, "")
}

func (c *Client) fail() {
	c.mu.Lock()
	c.state = StateFailed
	c.mu.Unlock()
}

// handler snapshots a callback under the lock and returns a nil-safe
// version of it.
func (c *Client) handler(slot *Handler) Handler {
	c.mu.Lock()
	h := *slot
	c.mu.Unlock()
	if h == nil {
		return func(error, string) {}
	}
	return h
}

// marshalFrame serializes an outbound frame without running it through the
// inbound validator: client frames may carry headers (such as receipt on
// SUBSCRIBE) that the inbound tables do not admit.
func marshalFrame(command Command, headers []HeaderValue, body []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(command.String())
	buf.WriteByte('\n')
	for _, hv := range headers {
		buf.WriteString(hv.Header.String())
		buf.WriteByte(':')
		buf.WriteString(hv.Value)
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	buf.Write(body)
	buf.WriteByte(0)
	return buf.Bytes()
}
