package stomp

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/railtracker-live/internal/common/logger"
	"github.com/railtracker-live/internal/transport"
)

const (
	testHost        = "host.com"
	testDestination = "/passengers"
)

// callbackRecorder captures handler invocations in order.
type callbackRecorder struct {
	errs   []error
	bodies []string
}

func (r *callbackRecorder) handler() Handler {
	return func(err error, body string) {
		r.errs = append(r.errs, err)
		r.bodies = append(r.bodies, body)
	}
}

func (r *callbackRecorder) calls() int { return len(r.errs) }

func (r *callbackRecorder) lastErr() error {
	if len(r.errs) == 0 {
		return errors.New("no calls recorded")
	}
	return r.errs[len(r.errs)-1]
}

func newTestClient() (*Client, *transport.MockCarrier) {
	carrier := &transport.MockCarrier{}
	client := NewClient(carrier, testHost, testDestination, logger.Nop())
	return client, carrier
}

// connect drives the client into the connected state.
func connect(t *testing.T, client *Client, carrier *transport.MockCarrier) {
	t.Helper()
	onConnect := &callbackRecorder{}
	client.Connect("george", "secret", onConnect.handler(), (&callbackRecorder{}).handler())
	carrier.Deliver([]byte("CONNECTED\nversion:1.2\nsession:12\n\n\x00"))
	require.Equal(t, 1, onConnect.calls())
	require.NoError(t, onConnect.lastErr())
}

// subscribe drives a connected client into the subscribed state.
func subscribe(t *testing.T, client *Client, carrier *transport.MockCarrier) SubscribeToken {
	t.Helper()
	onSubscribe := &callbackRecorder{}
	token := client.Subscribe(onSubscribe.handler(), (&callbackRecorder{}).handler())
	carrier.Deliver([]byte("RECEIPT\nreceipt-id:" + token.ReceiptID + "\n\n\x00"))
	require.Equal(t, 1, onSubscribe.calls())
	require.NoError(t, onSubscribe.lastErr())
	return token
}

func TestClientConnect(t *testing.T) {
	t.Run("happy path", func(t *testing.T) {
		client, carrier := newTestClient()
		onConnect := &callbackRecorder{}
		client.Connect("george", "secret", onConnect.handler(), (&callbackRecorder{}).handler())

		// The connect frame goes out as soon as the transport is up.
		sent := carrier.Sent()
		require.Len(t, sent, 1)
		frame, err := ParseFrame(sent[0])
		require.NoError(t, err)
		assert.Equal(t, CommandStomp, frame.Command())
		assert.Equal(t, "1.2", frame.Header(HeaderAcceptVersion))
		assert.Equal(t, testHost, frame.Header(HeaderHost))
		assert.Equal(t, "george", frame.Header(HeaderLogin))
		assert.Equal(t, "secret", frame.Header(HeaderPasscode))

		assert.False(t, client.IsConnected())
		carrier.Deliver([]byte("CONNECTED\nversion:1.2\nsession:12\n\n\x00"))

		require.Equal(t, 1, onConnect.calls())
		assert.NoError(t, onConnect.lastErr())
		assert.True(t, client.IsConnected())
		assert.False(t, client.IsSubscribed())
		assert.False(t, client.IsDisconnected())
	})

	t.Run("credentials are omitted when empty", func(t *testing.T) {
		client, carrier := newTestClient()
		client.Connect("", "", (&callbackRecorder{}).handler(), (&callbackRecorder{}).handler())
		sent := carrier.Sent()
		require.Len(t, sent, 1)
		frame, err := ParseFrame(sent[0])
		require.NoError(t, err)
		assert.False(t, frame.HasHeader(HeaderLogin))
		assert.False(t, frame.HasHeader(HeaderPasscode))
	})

	t.Run("transport connect failure", func(t *testing.T) {
		client, carrier := newTestClient()
		carrier.ConnectErr = fmt.Errorf("no route to host")
		onConnect := &callbackRecorder{}
		client.Connect("george", "secret", onConnect.handler(), (&callbackRecorder{}).handler())
		require.Equal(t, 1, onConnect.calls())
		assert.Error(t, onConnect.lastErr())
		assert.True(t, client.IsDisconnected())
	})

	t.Run("error frame before connected", func(t *testing.T) {
		client, carrier := newTestClient()
		onConnect := &callbackRecorder{}
		client.Connect("george", "secret", onConnect.handler(), (&callbackRecorder{}).handler())
		carrier.Deliver([]byte("ERROR\nmessage:denied\n\n\x00"))
		require.Equal(t, 1, onConnect.calls())
		assert.ErrorIs(t, onConnect.lastErr(), ErrServerError)
		assert.True(t, client.IsDisconnected())
	})

	t.Run("connect twice", func(t *testing.T) {
		client, carrier := newTestClient()
		connect(t, client, carrier)
		onConnect := &callbackRecorder{}
		client.Connect("george", "secret", onConnect.handler(), (&callbackRecorder{}).handler())
		require.Equal(t, 1, onConnect.calls())
		assert.ErrorIs(t, onConnect.lastErr(), ErrSessionState)
	})
}

func TestClientSubscribe(t *testing.T) {
	t.Run("happy path", func(t *testing.T) {
		client, carrier := newTestClient()
		connect(t, client, carrier)

		onSubscribe := &callbackRecorder{}
		token := client.Subscribe(onSubscribe.handler(), (&callbackRecorder{}).handler())
		assert.NotEmpty(t, token.SubscriptionID)
		assert.NotEmpty(t, token.ReceiptID)

		// The SUBSCRIBE frame carries the generated ids and ack:auto.
		sent := carrier.Sent()
		require.Len(t, sent, 2)
		assert.True(t, bytes.HasPrefix(sent[1], []byte("SUBSCRIBE\n")))
		assert.Contains(t, string(sent[1]), "id:"+token.SubscriptionID+"\n")
		assert.Contains(t, string(sent[1]), "receipt:"+token.ReceiptID+"\n")
		assert.Contains(t, string(sent[1]), "destination:"+testDestination+"\n")
		assert.Contains(t, string(sent[1]), "ack:auto\n")

		carrier.Deliver([]byte("RECEIPT\nreceipt-id:" + token.ReceiptID + "\n\n\x00"))
		require.Equal(t, 1, onSubscribe.calls())
		assert.NoError(t, onSubscribe.lastErr())
		assert.True(t, client.IsSubscribed())
	})

	t.Run("subscribe is idempotent once subscribed", func(t *testing.T) {
		client, carrier := newTestClient()
		connect(t, client, carrier)
		token := subscribe(t, client, carrier)

		again := client.Subscribe((&callbackRecorder{}).handler(), (&callbackRecorder{}).handler())
		assert.Equal(t, token, again)
		assert.Len(t, carrier.Sent(), 2) // no second SUBSCRIBE frame
	})

	t.Run("subscribe before connect", func(t *testing.T) {
		client, _ := newTestClient()
		onSubscribe := &callbackRecorder{}
		client.Subscribe(onSubscribe.handler(), (&callbackRecorder{}).handler())
		require.Equal(t, 1, onSubscribe.calls())
		assert.ErrorIs(t, onSubscribe.lastErr(), ErrSessionState)
	})

	t.Run("receipt id mismatch", func(t *testing.T) {
		client, carrier := newTestClient()
		connect(t, client, carrier)
		onSubscribe := &callbackRecorder{}
		client.Subscribe(onSubscribe.handler(), (&callbackRecorder{}).handler())
		carrier.Deliver([]byte("RECEIPT\nreceipt-id:not-it\n\n\x00"))
		require.Equal(t, 1, onSubscribe.calls())
		assert.ErrorIs(t, onSubscribe.lastErr(), ErrReceiptMismatch)
		assert.True(t, client.IsDisconnected())
	})

	t.Run("error frame during subscribe", func(t *testing.T) {
		client, carrier := newTestClient()
		connect(t, client, carrier)
		onSubscribe := &callbackRecorder{}
		client.Subscribe(onSubscribe.handler(), (&callbackRecorder{}).handler())
		carrier.Deliver([]byte("ERROR\nversion:1.2\ncontent-length:5\ncontent-type:text/plain\n\nError\x00"))
		require.Equal(t, 1, onSubscribe.calls())
		assert.ErrorIs(t, onSubscribe.lastErr(), ErrServerError)
		assert.True(t, client.IsDisconnected())
		assert.False(t, client.IsSubscribed())
	})
}

func TestClientMessageDelivery(t *testing.T) {
	t.Run("message for our subscription", func(t *testing.T) {
		client, carrier := newTestClient()
		connect(t, client, carrier)
		onMessage := &callbackRecorder{}
		token := client.Subscribe((&callbackRecorder{}).handler(), onMessage.handler())
		carrier.Deliver([]byte("RECEIPT\nreceipt-id:" + token.ReceiptID + "\n\n\x00"))

		carrier.Deliver([]byte("MESSAGE\nsubscription:" + token.SubscriptionID +
			"\nmessage-id:001\ndestination:" + testDestination +
			"\ncontent-length:11\ncontent-type:text/plain\n\nhello queue\x00"))

		require.Equal(t, 1, onMessage.calls())
		assert.NoError(t, onMessage.lastErr())
		assert.Equal(t, "hello queue", onMessage.bodies[0])
	})

	t.Run("message for another subscription", func(t *testing.T) {
		client, carrier := newTestClient()
		connect(t, client, carrier)
		onMessage := &callbackRecorder{}
		token := client.Subscribe((&callbackRecorder{}).handler(), onMessage.handler())
		carrier.Deliver([]byte("RECEIPT\nreceipt-id:" + token.ReceiptID + "\n\n\x00"))

		carrier.Deliver([]byte("MESSAGE\nsubscription:other\nmessage-id:001\ndestination:" +
			testDestination + "\n\nhello\x00"))

		require.Equal(t, 1, onMessage.calls())
		assert.ErrorIs(t, onMessage.lastErr(), ErrSessionState)
	})

	t.Run("message order follows wire order", func(t *testing.T) {
		client, carrier := newTestClient()
		connect(t, client, carrier)
		onMessage := &callbackRecorder{}
		token := client.Subscribe((&callbackRecorder{}).handler(), onMessage.handler())
		carrier.Deliver([]byte("RECEIPT\nreceipt-id:" + token.ReceiptID + "\n\n\x00"))

		for _, body := range []string{"one", "two", "three"} {
			carrier.Deliver([]byte("MESSAGE\nsubscription:" + token.SubscriptionID +
				"\nmessage-id:1\ndestination:" + testDestination + "\n\n" + body + "\x00"))
		}
		assert.Equal(t, []string{"one", "two", "three"}, onMessage.bodies)
	})

	t.Run("error frame while subscribed tears the session down", func(t *testing.T) {
		client, carrier := newTestClient()
		onDisconnect := &callbackRecorder{}
		onConnect := &callbackRecorder{}
		client.Connect("george", "secret", func(err error, _ string) {
			onConnect.handler()(err, "")
		}, onDisconnect.handler())
		carrier.Deliver([]byte("CONNECTED\nversion:1.2\n\n\x00"))

		onMessage := &callbackRecorder{}
		token := client.Subscribe((&callbackRecorder{}).handler(), onMessage.handler())
		carrier.Deliver([]byte("RECEIPT\nreceipt-id:" + token.ReceiptID + "\n\n\x00"))

		carrier.Deliver([]byte("ERROR\nmessage:broker shutting down\n\n\x00"))

		require.Equal(t, 1, onMessage.calls())
		assert.ErrorIs(t, onMessage.lastErr(), ErrServerError)
		require.Equal(t, 1, onDisconnect.calls())
		assert.True(t, client.IsDisconnected())
	})

	t.Run("unhandled command while subscribed", func(t *testing.T) {
		client, carrier := newTestClient()
		connect(t, client, carrier)
		onMessage := &callbackRecorder{}
		token := client.Subscribe((&callbackRecorder{}).handler(), onMessage.handler())
		carrier.Deliver([]byte("RECEIPT\nreceipt-id:" + token.ReceiptID + "\n\n\x00"))

		carrier.Deliver([]byte("CONNECTED\nversion:1.2\n\n\x00"))
		require.Equal(t, 1, onMessage.calls())
		assert.ErrorIs(t, onMessage.lastErr(), ErrSessionState)
		assert.Equal(t, "unhandled", onMessage.bodies[0])
	})

	t.Run("broken frame while subscribed", func(t *testing.T) {
		client, carrier := newTestClient()
		connect(t, client, carrier)
		onMessage := &callbackRecorder{}
		token := client.Subscribe((&callbackRecorder{}).handler(), onMessage.handler())
		carrier.Deliver([]byte("RECEIPT\nreceipt-id:" + token.ReceiptID + "\n\n\x00"))

		carrier.Deliver([]byte("garbage"))
		require.Equal(t, 1, onMessage.calls())
		assert.ErrorIs(t, onMessage.lastErr(), ErrParse)
		// A broken frame does not kill a subscribed session.
		assert.True(t, client.IsSubscribed())
	})
}

func TestClientClose(t *testing.T) {
	t.Run("close from subscribed", func(t *testing.T) {
		client, carrier := newTestClient()
		onDisconnect := &callbackRecorder{}
		client.Connect("george", "secret", (&callbackRecorder{}).handler(), onDisconnect.handler())
		carrier.Deliver([]byte("CONNECTED\nversion:1.2\n\n\x00"))
		subscribe(t, client, carrier)

		var closeErr error
		client.Close(func(err error) { closeErr = err })
		assert.NoError(t, closeErr)
		assert.True(t, client.IsDisconnected())
		assert.True(t, carrier.Closed())

		// The cancelled read after a local close is not a disconnect.
		carrier.Drop(fmt.Errorf("read aborted"))
		assert.Equal(t, 0, onDisconnect.calls())
	})

	t.Run("peer drop while subscribed notifies disconnect", func(t *testing.T) {
		client, carrier := newTestClient()
		onDisconnect := &callbackRecorder{}
		client.Connect("george", "secret", (&callbackRecorder{}).handler(), onDisconnect.handler())
		carrier.Deliver([]byte("CONNECTED\nversion:1.2\n\n\x00"))
		subscribe(t, client, carrier)

		carrier.Drop(fmt.Errorf("connection reset"))
		require.Equal(t, 1, onDisconnect.calls())
		assert.Error(t, onDisconnect.lastErr())
		assert.True(t, client.IsDisconnected())
	})
}
