// internal/connect/meta.go
package connect

import (
	"net/netip"
	"time"
)

// ClientEnv identifies the transport family a game client will use to reach
// its game instance. The host selects per-transport metadata by env when
// minting connect tokens.
type ClientEnv string

const (
	EnvMemory ClientEnv = "memory"
	EnvNative ClientEnv = "native"
	EnvWasmWT ClientEnv = "wasm_wt"
	EnvWasmWS ClientEnv = "wasm_ws"
)

// GameServerSetupConfig holds the server-side parameters baked into every
// connect token minted for a game instance.
type GameServerSetupConfig struct {
	ProtocolID  uint64 `json:"protocol_id"`
	ExpireSecs  uint64 `json:"expire_secs"`
	TimeoutSecs int32  `json:"timeout_secs"`
	ServerIP    string `json:"server_ip"`
}

// MetaMemory is the metadata required to mint connect tokens for in-memory
// clients (single-process test topologies).
type MetaMemory struct {
	ServerConfig GameServerSetupConfig `json:"server_config"`
	ClientIDs    []uint64              `json:"client_ids"`
	SocketID     uint8                 `json:"socket_id"`
	AuthKey      [32]byte              `json:"auth_key"`
}

// MetaNative is the metadata required to mint connect tokens for native
// clients (UDP sockets).
type MetaNative struct {
	ServerConfig    GameServerSetupConfig `json:"server_config"`
	ServerAddresses []string              `json:"server_addresses"`
	SocketID        uint8                 `json:"socket_id"`
	AuthKey         [32]byte              `json:"auth_key"`
}

// MetaWasmWT is the metadata required to mint connect tokens for browser
// clients using WebTransport. Cert hashes let clients accept the game
// server's self-signed certificate.
type MetaWasmWT struct {
	ServerConfig    GameServerSetupConfig `json:"server_config"`
	ServerAddresses []string              `json:"server_addresses"`
	SocketID        uint8                 `json:"socket_id"`
	AuthKey         [32]byte              `json:"auth_key"`
	CertHashes      [][]byte              `json:"cert_hashes"`
}

// MetaWasmWS is the metadata required to mint connect tokens for browser
// clients using WebSockets.
type MetaWasmWS struct {
	ServerConfig    GameServerSetupConfig `json:"server_config"`
	ServerAddresses []string              `json:"server_addresses"`
	SocketID        uint8                 `json:"socket_id"`
	AuthKey         [32]byte              `json:"auth_key"`
	URL             string                `json:"url"`
}

// Metas carries one optional entry per transport family. A game instance
// reports the metas for whichever sockets it opened; the host caches them so
// it can mint fresh tokens for reconnecting users.
type Metas struct {
	Memory *MetaMemory `json:"-"`
	Native *MetaNative `json:"native,omitempty"`
	WasmWT *MetaWasmWT `json:"wasm_wt,omitempty"`
	WasmWS *MetaWasmWS `json:"wasm_ws,omitempty"`
}

// ServerConnectToken is the opaque credential handed to a game client. Token
// is the sealed blob; the remaining fields are transport-specific addressing
// the client needs before it can use the blob.
type ServerConnectToken struct {
	Env        ClientEnv `json:"env"`
	Token      []byte    `json:"token"`
	CertHashes [][]byte  `json:"cert_hashes,omitempty"`
	URL        string    `json:"url,omitempty"`
}

// DummySetupConfig returns a setup config suitable for tests and local games.
func DummySetupConfig() GameServerSetupConfig {
	return GameServerSetupConfig{
		ProtocolID:  0,
		ExpireSecs:  10,
		TimeoutSecs: 5,
		ServerIP:    netip.IPv6Loopback().String(),
	}
}

// DummyNativeMeta returns a meta that mints valid-looking native tokens.
// Not usable against a real game server.
func DummyNativeMeta() MetaNative {
	var authKey [32]byte
	authKey[0] = 1
	return MetaNative{
		ServerConfig:    DummySetupConfig(),
		ServerAddresses: []string{"127.0.0.1:8080"},
		SocketID:        0,
		AuthKey:         authKey,
	}
}

// NewConnectToken mints a token for an in-memory client. The requested client
// id must be one of the ids registered in the meta.
func (m *MetaMemory) NewConnectToken(current time.Time, clientID uint64) (ServerConnectToken, error) {
	found := false
	for _, id := range m.ClientIDs {
		if id == clientID {
			found = true
			break
		}
	}
	if !found {
		return ServerConnectToken{}, ErrUnknownClient
	}
	token, err := mintToken(m.ServerConfig, m.SocketID, m.AuthKey, []string{memoryServerAddr}, current, clientID)
	if err != nil {
		return ServerConnectToken{}, err
	}
	return ServerConnectToken{Env: EnvMemory, Token: token}, nil
}

// NewConnectToken mints a token for a native client.
func (m *MetaNative) NewConnectToken(current time.Time, clientID uint64) (ServerConnectToken, error) {
	token, err := mintToken(m.ServerConfig, m.SocketID, m.AuthKey, m.ServerAddresses, current, clientID)
	if err != nil {
		return ServerConnectToken{}, err
	}
	return ServerConnectToken{Env: EnvNative, Token: token}, nil
}

// NewConnectToken mints a token for a WebTransport client.
func (m *MetaWasmWT) NewConnectToken(current time.Time, clientID uint64) (ServerConnectToken, error) {
	token, err := mintToken(m.ServerConfig, m.SocketID, m.AuthKey, m.ServerAddresses, current, clientID)
	if err != nil {
		return ServerConnectToken{}, err
	}
	return ServerConnectToken{Env: EnvWasmWT, Token: token, CertHashes: m.CertHashes}, nil
}

// NewConnectToken mints a token for a WebSocket client.
func (m *MetaWasmWS) NewConnectToken(current time.Time, clientID uint64) (ServerConnectToken, error) {
	token, err := mintToken(m.ServerConfig, m.SocketID, m.AuthKey, m.ServerAddresses, current, clientID)
	if err != nil {
		return ServerConnectToken{}, err
	}
	return ServerConnectToken{Env: EnvWasmWS, Token: token, URL: m.URL}, nil
}

// NewConnectToken selects the meta matching env and mints a token from it.
// Returns ErrNoMeta if the game reported no meta for that transport family.
func (ms *Metas) NewConnectToken(env ClientEnv, current time.Time, clientID uint64) (ServerConnectToken, error) {
	switch env {
	case EnvMemory:
		if ms.Memory == nil {
			return ServerConnectToken{}, ErrNoMeta
		}
		return ms.Memory.NewConnectToken(current, clientID)
	case EnvNative:
		if ms.Native == nil {
			return ServerConnectToken{}, ErrNoMeta
		}
		return ms.Native.NewConnectToken(current, clientID)
	case EnvWasmWT:
		if ms.WasmWT == nil {
			return ServerConnectToken{}, ErrNoMeta
		}
		return ms.WasmWT.NewConnectToken(current, clientID)
	case EnvWasmWS:
		if ms.WasmWS == nil {
			return ServerConnectToken{}, ErrNoMeta
		}
		return ms.WasmWS.NewConnectToken(current, clientID)
	}
	return ServerConnectToken{}, ErrNoMeta
}

// memoryServerAddr is the placeholder address baked into in-memory tokens.
const memoryServerAddr = "[::1]:0"
