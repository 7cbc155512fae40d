package transport

// Carrier is a duplex text-message transport. A carrier delivers whole
// messages: byte-to-message framing is the carrier's concern, and each
// onMessage payload is one complete inbound message.
//
// Contract:
//   - Connect invokes onUp exactly once, with nil on success or the
//     connect/handshake error. After a successful connect, onMessage fires
//     once per inbound message in arrival order, all from a single
//     goroutine. onDown fires at most once, when the peer closes the stream
//     or an I/O error terminates it; it never fires after a locally
//     initiated Close.
//   - Send writes one message. At most one write is outstanding at a time;
//     messages reach the wire in call order.
//   - Close is idempotent and cancels any in-flight read.
type Carrier interface {
	Connect(onUp func(error), onMessage func(msg []byte), onDown func(error))
	Send(msg []byte, onSent func(error))
	Close(onClosed func(error))
}
