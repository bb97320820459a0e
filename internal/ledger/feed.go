package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"wildchain/internal/protocol"
)

// Sink receives decoded, validated feed traffic. The core implements
// it; everything crossing this boundary has passed shape validation.
type Sink interface {
	SubmitSnapshot(msg protocol.TableMsg)
	SubmitEvent(ev protocol.Event)
}

type FeedConfig struct {
	URL        string
	ClientName string
	Player     string

	DialTimeout  time.Duration
	WriteTimeout time.Duration
	ReadTimeout  time.Duration
	BackoffMin   time.Duration
	BackoffMax   time.Duration

	// OnSubmit, when set, observes every outbound catch submission with
	// the request id that went on the wire.
	OnSubmit func(reqID string, slot int, targetID, ball string)
}

func (c *FeedConfig) applyDefaults() {
	if c.ClientName == "" {
		c.ClientName = "wildchain-client"
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 60 * time.Second
	}
	if c.BackoffMin <= 0 {
		c.BackoffMin = time.Second
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = 30 * time.Second
	}
}

// Feed is the client side of the ledger gateway: one websocket carrying
// table snapshots and push events inbound, TABLE_REQ and SUBMIT
// outbound. It reconnects with backoff and requests a fresh snapshot
// after every reconnect, since events during the gap are gone for good.
type Feed struct {
	cfg  FeedConfig
	log  *log.Logger
	sink Sink

	out     chan []byte
	lastSeq uint64
}

func NewFeed(cfg FeedConfig, logger *log.Logger, sink Sink) *Feed {
	cfg.applyDefaults()
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Feed{
		cfg:  cfg,
		log:  logger,
		sink: sink,
		out:  make(chan []byte, 32),
	}
}

// Run dials and services the feed until ctx is cancelled.
func (f *Feed) Run(ctx context.Context) error {
	backoff := f.cfg.BackoffMin
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		conn, err := f.connect(ctx)
		if err != nil {
			f.log.Printf("feed connect: %v; retry in %s", err, backoff)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > f.cfg.BackoffMax {
				backoff = f.cfg.BackoffMax
			}
			continue
		}
		backoff = f.cfg.BackoffMin

		// The gap between disconnect and resubscribe can drop events;
		// an immediate full snapshot shortens the stale window.
		_ = f.RequestTable(uuid.NewString())

		f.session(ctx, conn)
		_ = conn.Close()
	}
}

func (f *Feed) connect(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, f.cfg.DialTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, f.cfg.URL, nil)
	if err != nil {
		return nil, err
	}

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      f.cfg.ClientName,
		Player:          f.cfg.Player,
		SinceSeq:        f.lastSeq,
	}
	if err := writeJSON(conn, hello, f.cfg.WriteTimeout); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("hello: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(f.cfg.DialTimeout))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("welcome: %w", err)
	}
	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeWelcome {
		_ = conn.Close()
		return nil, fmt.Errorf("expected WELCOME, got %q", base.Type)
	}
	var welcome protocol.WelcomeMsg
	if err := json.Unmarshal(msg, &welcome); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("welcome: %w", err)
	}
	if welcome.ProtocolVersion != protocol.Version {
		_ = conn.Close()
		return nil, fmt.Errorf("protocol version %q, want %q", welcome.ProtocolVersion, protocol.Version)
	}
	f.log.Printf("feed connected: session=%s slots=%d seq=%d", welcome.SessionID, welcome.MaxSlots, welcome.CurrentSeq)
	return conn, nil
}

// session services one connection until it breaks or ctx ends.
func (f *Feed) session(ctx context.Context, conn *websocket.Conn) {
	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Writer goroutine.
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-sessCtx.Done():
				return
			case b := <-f.out:
				_ = conn.SetWriteDeadline(time.Now().Add(f.cfg.WriteTimeout))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	// Reader loop.
	for {
		_ = conn.SetReadDeadline(time.Now().Add(f.cfg.ReadTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if sessCtx.Err() == nil {
				f.log.Printf("feed read: %v", err)
			}
			cancel()
			break
		}
		f.route(msg)
	}
	<-writerDone
}

// route decodes one inbound message and hands it to the sink. A
// malformed message is logged and skipped; it never stops the feed.
func (f *Feed) route(msg []byte) {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		f.log.Printf("%s: undecodable frame: %v", protocol.ErrProtoBadRequest, err)
		return
	}
	switch base.Type {
	case protocol.TypeTable:
		var tbl protocol.TableMsg
		if err := json.Unmarshal(msg, &tbl); err != nil {
			f.log.Printf("%s: table: %v", protocol.ErrProtoBadRequest, err)
			return
		}
		f.sink.SubmitSnapshot(tbl)
	case protocol.TypeEvent:
		ev, err := protocol.DecodeEvent(msg)
		if err != nil {
			f.log.Printf("drop event: %v", err)
			return
		}
		if ev.Seq > f.lastSeq {
			f.lastSeq = ev.Seq
		}
		f.sink.SubmitEvent(ev)
	case protocol.TypeAck:
		var ack protocol.AckMsg
		if err := json.Unmarshal(msg, &ack); err != nil {
			return
		}
		if !ack.Accepted {
			f.log.Printf("gateway rejected %s: %s %s", ack.AckFor, ack.Code, ack.Message)
		}
	default:
		// Unknown types are forward-compatible noise.
	}
}

var errQueueFull = errors.New("feed write queue full")

func (f *Feed) enqueue(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case f.out <- b:
		return nil
	default:
		return errQueueFull
	}
}

// RequestTable implements mirror.TablePoller.
func (f *Feed) RequestTable(reqID string) error {
	return f.enqueue(protocol.TableReqMsg{
		Type:            protocol.TypeTableReq,
		ProtocolVersion: protocol.Version,
		ReqID:           reqID,
	})
}

// SubmitCatch implements mirror.Submitter. The outcome arrives later on
// the feed as a CAUGHT or FAILED event correlated by actor id.
func (f *Feed) SubmitCatch(slot int, targetID, ball string) error {
	reqID := uuid.NewString()
	err := f.enqueue(protocol.SubmitMsg{
		Type:            protocol.TypeSubmit,
		ProtocolVersion: protocol.Version,
		ReqID:           reqID,
		Slot:            slot,
		TargetID:        targetID,
		Ball:            ball,
	})
	if err == nil && f.cfg.OnSubmit != nil {
		f.cfg.OnSubmit(reqID, slot, targetID, ball)
	}
	return err
}

func writeJSON(conn *websocket.Conn, v any, timeout time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(timeout))
	return conn.WriteMessage(websocket.TextMessage, b)
}
