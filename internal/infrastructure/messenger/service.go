package messenger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/peertrade-network/peertrade-daemon/internal/core/ports"
)

// The relay speaks a small JSON frame protocol over the websocket: the
// daemon registers its address once, then exchanges send frames going up and
// ack/deliver frames coming down. Message payloads are end-to-end encrypted
// by the relay client library, the relay itself only routes.
type wireFrame struct {
	Kind     string          `json:"kind"`
	MsgId    string          `json:"msgId,omitempty"`
	Address  string          `json:"address,omitempty"`
	To       string          `json:"to,omitempty"`
	ToPubKey string          `json:"toPubKey,omitempty"`
	Mailbox  bool            `json:"mailbox,omitempty"`
	Envelope *ports.Envelope `json:"envelope,omitempty"`
	Outcome  string          `json:"outcome,omitempty"`
	Reason   string          `json:"reason,omitempty"`
}

const (
	frameKindRegister = "register"
	frameKindSend     = "send"
	frameKindAck      = "ack"
	frameKindDeliver  = "deliver"

	outcomeArrived = "arrived"
	outcomeMailbox = "mailbox"

	ackTimeout = 2 * time.Minute
)

type service struct {
	relayUrl    string
	nodeAddress string

	conn     *websocket.Conn
	writeMtx sync.Mutex

	pendingMtx sync.Mutex
	pending    map[string]chan ports.DeliveryOutcome

	inbound chan ports.Envelope
	done    chan struct{}
	closed  sync.Once
}

// NewService dials the relay, registers the local node address and starts the
// read loop.
func NewService(relayUrl, nodeAddress string) (ports.Messenger, error) {
	conn, _, err := websocket.DefaultDialer.Dial(relayUrl, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing relay: %w", err)
	}

	s := &service{
		relayUrl:    relayUrl,
		nodeAddress: nodeAddress,
		conn:        conn,
		pending:     map[string]chan ports.DeliveryOutcome{},
		inbound:     make(chan ports.Envelope, 64),
		done:        make(chan struct{}),
	}
	if err := s.writeFrame(wireFrame{
		Kind: frameKindRegister, Address: nodeAddress,
	}); err != nil {
		conn.Close()
		return nil, err
	}

	go s.readLoop()
	return s, nil
}

func (s *service) SendDirect(
	ctx context.Context, address, pubKey string, env ports.Envelope,
) (<-chan ports.DeliveryOutcome, error) {
	return s.send(ctx, address, pubKey, env, false)
}

func (s *service) SendMailbox(
	ctx context.Context, address, pubKey string, env ports.Envelope,
) (<-chan ports.DeliveryOutcome, error) {
	return s.send(ctx, address, pubKey, env, true)
}

func (s *service) Inbound() <-chan ports.Envelope {
	return s.inbound
}

func (s *service) Close() error {
	var err error
	s.closed.Do(func() {
		close(s.done)
		err = s.conn.Close()
	})
	return err
}

func (s *service) send(
	ctx context.Context, address, pubKey string, env ports.Envelope, mailbox bool,
) (<-chan ports.DeliveryOutcome, error) {
	if env.Id == "" {
		return nil, errors.New("envelope id is required")
	}

	outcome := make(chan ports.DeliveryOutcome, 1)
	s.pendingMtx.Lock()
	s.pending[env.Id] = outcome
	s.pendingMtx.Unlock()

	if err := s.writeFrame(wireFrame{
		Kind:     frameKindSend,
		MsgId:    env.Id,
		To:       address,
		ToPubKey: pubKey,
		Mailbox:  mailbox,
		Envelope: &env,
	}); err != nil {
		s.dropPending(env.Id)
		return nil, err
	}

	// A relay that never acks must not suspend a pipeline forever.
	go s.expirePending(ctx, env.Id)
	return outcome, nil
}

func (s *service) writeFrame(frame wireFrame) error {
	s.writeMtx.Lock()
	defer s.writeMtx.Unlock()
	return s.conn.WriteJSON(frame)
}

func (s *service) readLoop() {
	for {
		var frame wireFrame
		if err := s.conn.ReadJSON(&frame); err != nil {
			select {
			case <-s.done:
			default:
				log.WithError(err).Warn("relay connection lost")
			}
			close(s.inbound)
			return
		}

		switch frame.Kind {
		case frameKindAck:
			s.resolvePending(frame)
		case frameKindDeliver:
			if frame.Envelope == nil {
				continue
			}
			select {
			case s.inbound <- *frame.Envelope:
			case <-s.done:
				return
			}
		}
	}
}

func (s *service) resolvePending(frame wireFrame) {
	s.pendingMtx.Lock()
	ch, ok := s.pending[frame.MsgId]
	if ok {
		delete(s.pending, frame.MsgId)
	}
	s.pendingMtx.Unlock()
	if !ok {
		return
	}

	out := ports.DeliveryOutcome{Reason: frame.Reason}
	switch frame.Outcome {
	case outcomeArrived:
		out.State = ports.DeliveryArrived
	case outcomeMailbox:
		out.State = ports.DeliveryStoredInMailbox
	default:
		out.State = ports.DeliveryFault
		if out.Reason == "" {
			out.Reason = "relay reported delivery failure"
		}
	}
	ch <- out
}

func (s *service) expirePending(ctx context.Context, msgId string) {
	timer := time.NewTimer(ackTimeout)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	case <-s.done:
	}

	s.pendingMtx.Lock()
	ch, ok := s.pending[msgId]
	if ok {
		delete(s.pending, msgId)
	}
	s.pendingMtx.Unlock()
	if ok {
		ch <- ports.DeliveryOutcome{
			State:  ports.DeliveryFault,
			Reason: "no delivery acknowledgement from relay",
		}
	}
}

func (s *service) dropPending(msgId string) {
	s.pendingMtx.Lock()
	delete(s.pending, msgId)
	s.pendingMtx.Unlock()
}
