package rpc

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/brackenfield/kadnet/id"
	"github.com/brackenfield/kadnet/kadnerr"
)

// RequestHandler processes an inbound request Message from a peer and
// returns the reply body to send back, or an error to drop the datagram
// silently (mirroring the teacher's transport.PacketHandler contract of
// returning an error on a malformed or unprocessable packet).
type RequestHandler func(from id.Contact, req *Message) (*Message, error)

// Transport is the DHT's UDP request/reply layer: it owns the socket,
// matches replies to outstanding requests by correlation id, and dispatches
// inbound requests to a single registered handler per Kind, grounded on the
// teacher's transport.UDPTransport (github.com/opd-ai/toxcore/transport/udp.go).
type Transport struct {
	conn     net.PacketConn
	self     id.Contact
	pending  *pendingTable
	handlers map[Kind]RequestHandler
	log      *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc
}

// Listen opens a UDP socket at addr and starts the receive loop.
func Listen(addr string, self id.Contact, log *logrus.Entry) (*Transport, error) {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("rpc: listen: %w", err)
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	ctx, cancel := context.WithCancel(context.Background())

	t := &Transport{
		conn:     conn,
		self:     self,
		pending:  newPendingTable(),
		handlers: make(map[Kind]RequestHandler),
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
	}
	go t.receiveLoop()
	return t, nil
}

// LocalAddr returns the address the transport is actually bound to.
func (t *Transport) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}

// RegisterHandler installs the request handler for a given Kind. Replies
// (Pong, StoreAck, FindNodeReply, FindValueReply, StunReply) are routed to
// waiting callers via correlation id instead and must never be registered
// here.
func (t *Transport) RegisterHandler(k Kind, h RequestHandler) {
	t.handlers[k] = h
}

// Close stops the receive loop and releases the socket.
func (t *Transport) Close() error {
	t.cancel()
	return t.conn.Close()
}

// Call sends a request to peer and blocks until a correlated reply arrives,
// ctx is cancelled, or DefaultTimeout elapses.
func (t *Transport) Call(ctx context.Context, peer id.Contact, req *Message) (*Message, error) {
	correlationID, replyCh, logID := t.pending.register()
	req.CorrelationID = correlationID
	req.Sender = t.self

	entry := t.log.WithFields(logrus.Fields{
		"rpc_id": logID,
		"kind":   req.Kind.String(),
		"peer":   peer.ID.String(),
	})

	data, err := Encode(req)
	if err != nil {
		t.pending.cancel(correlationID)
		entry.WithError(err).Warn("rpc request dropped before sending")
		return nil, err
	}

	addr, err := net.ResolveUDPAddr("udp", peer.Addr())
	if err != nil {
		t.pending.cancel(correlationID)
		return nil, fmt.Errorf("rpc: resolve %s: %w", peer.Addr(), err)
	}
	if _, err := t.conn.WriteTo(data, addr); err != nil {
		t.pending.cancel(correlationID)
		return nil, fmt.Errorf("rpc: send: %w", err)
	}
	entry.Debug("rpc request sent")

	timeout := time.NewTimer(DefaultTimeout)
	defer timeout.Stop()

	select {
	case reply := <-replyCh:
		entry.Debug("rpc reply received")
		return reply, nil
	case <-timeout.C:
		t.pending.cancel(correlationID)
		entry.Warn("rpc timed out")
		return nil, kadnerr.ErrTransportTimeout
	case <-ctx.Done():
		t.pending.cancel(correlationID)
		return nil, ctx.Err()
	case <-t.ctx.Done():
		t.pending.cancel(correlationID)
		return nil, kadnerr.ErrClosed
	}
}

// reply is a fire-and-forget send used by handlers to answer a request;
// unlike Call it does not allocate a pending entry since it carries the
// correlation id of the request it is answering.
func (t *Transport) reply(addr net.Addr, m *Message) error {
	data, err := Encode(m)
	if err != nil {
		return err
	}
	_, err = t.conn.WriteTo(data, addr)
	return err
}

// receiveLoop mirrors the teacher's UDPTransport.processPackets: a
// deadline-bounded read loop so context cancellation can interrupt it
// promptly, dispatching each datagram to a goroutine so one slow handler
// never blocks the socket.
func (t *Transport) receiveLoop() {
	buf := make([]byte, MaxDatagramSize+256)
	for {
		select {
		case <-t.ctx.Done():
			return
		default:
		}

		_ = t.conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		n, addr, err := t.conn.ReadFrom(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			continue
		}

		datagram := make([]byte, n)
		copy(datagram, buf[:n])
		go t.handleDatagram(datagram, addr)
	}
}

func (t *Transport) handleDatagram(data []byte, addr net.Addr) {
	m, err := Decode(data)
	if err != nil {
		t.log.WithError(err).WithField("addr", addr.String()).Debug("dropping undecodable datagram")
		return
	}

	if isReply(m.Kind) {
		t.pending.resolve(m.CorrelationID, m)
		return
	}

	handler, ok := t.handlers[m.Kind]
	if !ok {
		t.log.WithField("kind", m.Kind.String()).Debug("no handler registered for request kind")
		return
	}

	// The sender's ID comes from the message; its address is the one the
	// datagram actually arrived from.
	from := m.Sender
	if udpAddr, ok := addr.(*net.UDPAddr); ok {
		from.IP = udpAddr.IP
		from.Port = uint16(udpAddr.Port)
	}
	resp, err := handler(from, m)
	if err != nil {
		t.log.WithError(err).WithField("kind", m.Kind.String()).Debug("request handler failed")
		return
	}
	if resp == nil {
		return
	}
	resp.CorrelationID = m.CorrelationID
	resp.Sender = t.self
	if err := t.reply(addr, resp); err != nil {
		t.log.WithError(err).Debug("failed to send reply")
	}
}

func isReply(k Kind) bool {
	switch k {
	case KindPong, KindStoreAck, KindFindNodeReply, KindFindValueReply, KindStunReply:
		return true
	default:
		return false
	}
}
