// internal/connect/token.go
package connect

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
)

var (
	// ErrNoMeta is returned when a game reported no connect metadata for the
	// requested transport family.
	ErrNoMeta = errors.New("no connect meta for requested transport")

	// ErrUnknownClient is returned when an in-memory meta does not recognize
	// the requested client id.
	ErrUnknownClient = errors.New("client id not registered in connect meta")
)

// mintToken produces the opaque token blob from the full set of token inputs.
// The layout is fixed and the nonce is derived from the plaintext body, so
// minting is deterministic: equal inputs yield byte-identical tokens.
func mintToken(
	cfg GameServerSetupConfig,
	socketID uint8,
	authKey [32]byte,
	addresses []string,
	current time.Time,
	clientID uint64,
) ([]byte, error) {
	if len(addresses) == 0 {
		return nil, errors.New("token requires at least one server address")
	}

	var body bytes.Buffer
	binary.Write(&body, binary.LittleEndian, cfg.ProtocolID)
	binary.Write(&body, binary.LittleEndian, uint64(current.Unix()))
	binary.Write(&body, binary.LittleEndian, uint64(current.Unix())+cfg.ExpireSecs)
	binary.Write(&body, binary.LittleEndian, clientID)
	binary.Write(&body, binary.LittleEndian, cfg.TimeoutSecs)
	body.WriteByte(socketID)
	body.WriteByte(byte(len(addresses)))
	for _, addr := range addresses {
		if len(addr) > 255 {
			return nil, fmt.Errorf("server address too long: %q", addr)
		}
		body.WriteByte(byte(len(addr)))
		body.WriteString(addr)
	}

	aead, err := chacha20poly1305.NewX(authKey[:])
	if err != nil {
		return nil, fmt.Errorf("token cipher setup: %w", err)
	}

	// Nonce comes from the body digest rather than randomness so the mint is a
	// pure function of its inputs.
	digest := sha256.Sum256(body.Bytes())
	nonce := digest[:chacha20poly1305.NonceSizeX]

	token := make([]byte, 0, len(nonce)+body.Len()+aead.Overhead())
	token = append(token, nonce...)
	token = aead.Seal(token, nonce, body.Bytes(), nil)
	return token, nil
}
