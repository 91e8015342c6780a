// internal/hub/client.go
package hub

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/arena/internal/protocol"
)

// HostClient maintains the hub's websocket connection to the host server.
// It implements HostLink; outbound messages are queued and flushed by the
// connection's write pump, and the client redials with backoff on loss.
type HostClient struct {
	url   string
	token string
	log   *logrus.Logger

	server *Server
	out    chan []byte
}

// NewHostClient prepares a client for the host's hub endpoint. token is a
// hub JWT minted with the host's signing key.
func NewHostClient(url, token string, log *logrus.Logger) *HostClient {
	return &HostClient{
		url:   url,
		token: token,
		log:   log,
		out:   make(chan []byte, 64),
	}
}

// Bind attaches the hub server whose events this client feeds.
func (c *HostClient) Bind(server *Server) { c.server = server }

// ToHost implements HostLink. Messages are queued non-blockingly; a full
// queue drops the message with a warning.
func (c *HostClient) ToHost(msg protocol.HubToHost) {
	frame, err := protocol.EncodeHubToHost(msg)
	if err != nil {
		c.log.WithError(err).Error("failed encoding host message")
		return
	}
	select {
	case c.out <- frame:
	default:
		c.log.Warn("host outbound queue full, dropped message")
	}
}

// Run dials the host and pumps messages until the context is cancelled,
// redialing with capped exponential backoff.
func (c *HostClient) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		err := c.runOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.WithError(err).Warnf("host connection lost, retrying in %s", backoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > 30*time.Second {
			backoff = 30 * time.Second
		}
	}
}

func (c *HostClient) runOnce(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	conn, _, err := websocket.Dial(dialCtx, c.url, &websocket.DialOptions{
		Subprotocols: []string{"arena.hub"},
		HTTPHeader:   http.Header{"Authorization": {"Bearer " + c.token}},
	})
	cancel()
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "closing")

	c.log.Info("connected to host")
	c.server.HostConnected()

	connCtx, connCancel := context.WithCancel(ctx)
	defer connCancel()

	// write pump
	go func() {
		for {
			select {
			case <-connCtx.Done():
				return
			case frame := <-c.out:
				if err := conn.Write(connCtx, websocket.MessageText, frame); err != nil {
					c.log.Warnf("failed writing to host: %v", err)
					connCancel()
					return
				}
			}
		}
	}()

	// read loop
	for {
		typ, raw, err := conn.Read(connCtx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageText {
			continue
		}
		msg, err := protocol.DecodeHostToHub(raw)
		if err != nil {
			c.log.Warnf("invalid frame from host: %v", err)
			continue
		}
		c.server.HostMsg(msg)
	}
}
