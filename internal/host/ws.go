// internal/host/ws.go
package host

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/arena/internal/auth"
	"github.com/jason-s-yu/arena/internal/protocol"
)

// Subprotocols spoken by host peers.
const (
	UserSubprotocol = "arena.user"
	HubSubprotocol  = "arena.hub"
)

// Custom WebSocket close codes used by the host gateway.
const (
	BadSubprotocolError   = 3000 // Client connected with an unsupported subprotocol.
	InvalidAuthTokenError = 3001 // Provided auth token was invalid or expired.
	WrongPeerRoleError    = 3002 // Token role does not match the endpoint.
)

// wsConn is one live peer connection: a buffered outbound queue plus the
// cancel for its pumps.
type wsConn struct {
	out    chan []byte
	cancel func()
}

// write pushes an encoded frame non-blockingly; a full queue drops the
// frame with a warning.
func (c *wsConn) write(log *logrus.Logger, frame []byte) {
	select {
	case c.out <- frame:
	default:
		log.Warn("peer outbound queue full, dropped message")
	}
}

// Gateway is the host's websocket front-end. It keeps the live connection
// registry and implements Outbox: outbound messages are encoded on the tick
// goroutine and queued to per-connection write pumps.
type Gateway struct {
	log    *logrus.Logger
	server *Server

	mu    sync.Mutex
	users map[uuid.UUID]*wsConn
	hubs  map[uuid.UUID]*wsConn
}

// NewGateway makes an unbound gateway. Install it as the host state's
// outbox, then Bind the server whose event queue it feeds.
func NewGateway(log *logrus.Logger) *Gateway {
	return &Gateway{
		log:   log,
		users: make(map[uuid.UUID]*wsConn),
		hubs:  make(map[uuid.UUID]*wsConn),
	}
}

// Bind attaches the host server. Must be called before the handlers serve.
func (g *Gateway) Bind(server *Server) { g.server = server }

// ToUser implements Outbox.
func (g *Gateway) ToUser(userID uuid.UUID, reqID uint64, msg protocol.HostToUser) {
	frame, err := protocol.EncodeHostToUser(reqID, msg)
	if err != nil {
		g.log.WithField("user_id", userID).WithError(err).Error("failed encoding user message")
		return
	}
	g.mu.Lock()
	conn, ok := g.users[userID]
	g.mu.Unlock()
	if !ok {
		g.log.WithFields(logrus.Fields{"user_id": userID, "type": msg.MsgType()}).Debug("dropping message for offline user")
		return
	}
	conn.write(g.log, frame)
}

// ToHub implements Outbox.
func (g *Gateway) ToHub(hubID uuid.UUID, msg protocol.HostToHub) {
	frame, err := protocol.EncodeHostToHub(msg)
	if err != nil {
		g.log.WithField("hub_id", hubID).WithError(err).Error("failed encoding hub message")
		return
	}
	g.mu.Lock()
	conn, ok := g.hubs[hubID]
	g.mu.Unlock()
	if !ok {
		g.log.WithFields(logrus.Fields{"hub_id": hubID, "type": msg.MsgType()}).Debug("dropping message for offline hub")
		return
	}
	conn.write(g.log, frame)
}

// register installs a peer connection, replacing (and cancelling) any
// previous one for the same id.
func (g *Gateway) register(conns map[uuid.UUID]*wsConn, id uuid.UUID, conn *wsConn) {
	g.mu.Lock()
	if old, ok := conns[id]; ok && old != conn {
		old.cancel()
	}
	conns[id] = conn
	g.mu.Unlock()
}

// unregister removes a peer connection if it is still the registered one.
// Returns false when a newer connection already replaced it (a transport
// reconnect), in which case no disconnect event should fire.
func (g *Gateway) unregister(conns map[uuid.UUID]*wsConn, id uuid.UUID, conn *wsConn) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if current, ok := conns[id]; ok && current == conn {
		delete(conns, id)
		return true
	}
	return false
}

// UserHandler returns the HTTP handler for user websocket connections.
// It authenticates the peer's JWT during the upgrade, registers the
// connection, and runs the read loop until disconnect.
func (g *Gateway) UserHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{UserSubprotocol},
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			g.log.Warnf("websocket accept error: %v", err)
			return
		}
		if c.Subprotocol() != UserSubprotocol {
			c.Close(BadSubprotocolError, "client must speak the arena.user subprotocol")
			return
		}

		identity, err := authenticateRequest(r)
		if err != nil {
			g.log.Warnf("invalid token: %v", err)
			c.Close(InvalidAuthTokenError, "invalid auth_token")
			return
		}
		if identity.Role != auth.RoleUser {
			c.Close(WrongPeerRoleError, "token is not a user token")
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		conn := &wsConn{out: make(chan []byte, 32), cancel: cancel}
		g.register(g.users, identity.ID, conn)
		g.server.UserConnected(identity.ID, identity.Env)
		g.log.WithField("user_id", identity.ID).Info("user connected")

		go writePump(ctx, c, conn, g.log)

		// read loop: decode frames and enqueue them for the tick loop
		for {
			typ, raw, err := c.Read(ctx)
			if err != nil {
				break
			}
			if typ != websocket.MessageText {
				continue
			}
			reqID, msg, err := protocol.DecodeUserToHost(raw)
			if err != nil {
				g.log.WithField("user_id", identity.ID).Warnf("invalid frame from user: %v", err)
				continue
			}
			g.server.UserMsg(identity.ID, reqID, msg)
		}

		cancel()
		c.Close(websocket.StatusNormalClosure, "closing")
		if g.unregister(g.users, identity.ID, conn) {
			g.server.UserDisconnected(identity.ID)
			g.log.WithField("user_id", identity.ID).Info("user disconnected")
		}
	}
}

// HubHandler returns the HTTP handler for game hub websocket connections.
func (g *Gateway) HubHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{HubSubprotocol},
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			g.log.Warnf("websocket accept error: %v", err)
			return
		}
		if c.Subprotocol() != HubSubprotocol {
			c.Close(BadSubprotocolError, "client must speak the arena.hub subprotocol")
			return
		}

		identity, err := authenticateRequest(r)
		if err != nil {
			g.log.Warnf("invalid token: %v", err)
			c.Close(InvalidAuthTokenError, "invalid auth_token")
			return
		}
		if identity.Role != auth.RoleHub {
			c.Close(WrongPeerRoleError, "token is not a hub token")
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		conn := &wsConn{out: make(chan []byte, 64), cancel: cancel}
		g.register(g.hubs, identity.ID, conn)
		g.server.HubConnected(identity.ID)
		g.log.WithField("hub_id", identity.ID).Info("hub connected")

		go writePump(ctx, c, conn, g.log)

		for {
			typ, raw, err := c.Read(ctx)
			if err != nil {
				break
			}
			if typ != websocket.MessageText {
				continue
			}
			msg, err := protocol.DecodeHubToHost(raw)
			if err != nil {
				g.log.WithField("hub_id", identity.ID).Warnf("invalid frame from hub: %v", err)
				continue
			}
			g.server.HubMsg(identity.ID, msg)
		}

		cancel()
		c.Close(websocket.StatusNormalClosure, "closing")
		if g.unregister(g.hubs, identity.ID, conn) {
			g.server.HubDisconnected(identity.ID)
			g.log.WithField("hub_id", identity.ID).Info("hub disconnected")
		}
	}
}

// authenticateRequest pulls the auth token from the auth_token cookie or
// the Authorization header.
func authenticateRequest(r *http.Request) (auth.Identity, error) {
	token := extractCookieToken(r.Header.Get("Cookie"), "auth_token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	return auth.AuthenticateJWT(token)
}

// writePump writes queued frames to the websocket until the context is
// cancelled.
func writePump(ctx context.Context, c *websocket.Conn, conn *wsConn, log *logrus.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-conn.out:
			if err := c.Write(ctx, websocket.MessageText, frame); err != nil {
				log.Warnf("failed to write to ws: %v", err)
				return
			}
		}
	}
}

// extractCookieToken extracts a named cookie value from the "Cookie" header string.
func extractCookieToken(cookieHeader, cookieName string) string {
	parts := strings.Split(cookieHeader, cookieName+"=")
	if len(parts) < 2 {
		return ""
	}
	token := parts[1]
	if idx := strings.Index(token, ";"); idx != -1 {
		token = token[:idx]
	}
	return token
}
