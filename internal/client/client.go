// internal/client/client.go

// Package client is the user-side SDK for the host server's matchmaking
// protocol: it frames requests with fresh request ids and surfaces every
// inbound host message on a channel. Rendering and the in-game client
// framework live elsewhere; this package only speaks the lobby protocol.
package client

import (
	"context"
	"net/http"
	"sync/atomic"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/arena/internal/protocol"
)

// Incoming pairs a host message with the request id it answers (zero for
// unsolicited messages).
type Incoming struct {
	ReqID uint64
	Msg   protocol.HostToUser
}

// Client is one user connection to the host.
type Client struct {
	conn   *websocket.Conn
	log    *logrus.Logger
	cancel context.CancelFunc

	reqID atomic.Uint64

	// Messages carries every inbound host message in receive order. The
	// channel closes when the connection dies.
	Messages chan Incoming
}

// Dial connects to the host's user endpoint with a user JWT.
func Dial(ctx context.Context, url, token string, log *logrus.Logger) (*Client, error) {
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		Subprotocols: []string{"arena.user"},
		HTTPHeader:   http.Header{"Authorization": {"Bearer " + token}},
	})
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c := &Client{
		conn:     conn,
		log:      log,
		cancel:   cancel,
		Messages: make(chan Incoming, 64),
	}

	go func() {
		defer close(c.Messages)
		for {
			typ, raw, err := conn.Read(runCtx)
			if err != nil {
				return
			}
			if typ != websocket.MessageText {
				continue
			}
			reqID, msg, err := protocol.DecodeHostToUser(raw)
			if err != nil {
				log.Warnf("invalid frame from host: %v", err)
				continue
			}
			select {
			case c.Messages <- Incoming{ReqID: reqID, Msg: msg}:
			case <-runCtx.Done():
				return
			}
		}
	}()

	return c, nil
}

// Send frames the request with a fresh request id and returns that id so
// the caller can match the host's answer.
func (c *Client) Send(ctx context.Context, msg protocol.UserToHost) (uint64, error) {
	reqID := c.reqID.Add(1)
	frame, err := protocol.EncodeUserToHost(reqID, msg)
	if err != nil {
		return 0, err
	}
	if err := c.conn.Write(ctx, websocket.MessageText, frame); err != nil {
		return 0, err
	}
	return reqID, nil
}

// Close tears the connection down.
func (c *Client) Close() {
	c.cancel()
	c.conn.Close(websocket.StatusNormalClosure, "closing")
}
