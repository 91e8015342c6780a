// internal/auth/session.go
package auth

import (
	"crypto/ed25519"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/jason-s-yu/arena/internal/connect"
)

// Peer roles carried in connection tokens.
const (
	RoleUser = "user"
	RoleHub  = "hub"
)

// privateKey and publicKey sign and verify connection tokens.
var (
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey

	// TOKEN_EXPIRE_TIME_SEC indicates how many seconds until JWT expiration (0 => never).
	TOKEN_EXPIRE_TIME_SEC int
)

// Identity is the authenticated peer extracted from a connection token.
type Identity struct {
	ID   uuid.UUID
	Role string
	// Env is set for user peers only.
	Env connect.ClientEnv
}

// parseTokenExpireTime reads the TOKEN_EXPIRE_TIME env var and sets TOKEN_EXPIRE_TIME_SEC accordingly.
func parseTokenExpireTime() {
	duration := os.Getenv("TOKEN_EXPIRE_TIME")
	if duration == "never" || duration == "0" || duration == "" {
		TOKEN_EXPIRE_TIME_SEC = 0
	} else {
		d, err := time.ParseDuration(duration)
		if err != nil {
			fmt.Printf("failed to parse token expire time: %v\n", err)
			os.Exit(1)
		}
		TOKEN_EXPIRE_TIME_SEC = int(d.Seconds())
	}
}

// Init generates a fresh ed25519 key pair at runtime and sets the token expiration.
func Init() {
	var err error
	publicKey, privateKey, err = ed25519.GenerateKey(nil)
	if err != nil {
		fmt.Printf("failed to generate ed25519 key pair: %v\n", err)
		os.Exit(1)
	}
	parseTokenExpireTime()
}

// InitFromPath reads ed25519 private/public keys from file and sets the token expiration.
func InitFromPath(privatePath, publicPath string) error {
	privateKeyData, err := os.ReadFile(privatePath)
	if err != nil {
		return fmt.Errorf("failed to read private key file: %w", err)
	}
	publicKeyData, err := os.ReadFile(publicPath)
	if err != nil {
		return fmt.Errorf("failed to read public key file: %w", err)
	}

	privateKey = ed25519.PrivateKey(privateKeyData)
	publicKey = ed25519.PublicKey(publicKeyData)
	parseTokenExpireTime()
	return nil
}

// CreateUserJWT creates a signed token identifying a user peer and its
// transport env.
func CreateUserJWT(userID uuid.UUID, env connect.ClientEnv) (string, error) {
	return createJWT(userID, RoleUser, string(env))
}

// CreateHubJWT creates a signed token identifying a game hub peer.
func CreateHubJWT(hubID uuid.UUID) (string, error) {
	return createJWT(hubID, RoleHub, "")
}

func createJWT(peerID uuid.UUID, role, env string) (string, error) {
	claims := jwt.MapClaims{
		"sub":  peerID.String(),
		"role": role,
	}
	if env != "" {
		claims["env"] = env
	}
	if TOKEN_EXPIRE_TIME_SEC > 0 {
		claims["exp"] = time.Now().Add(time.Duration(TOKEN_EXPIRE_TIME_SEC) * time.Second).Unix()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(privateKey)
}

// AuthenticateJWT verifies a token string and returns the peer identity.
func AuthenticateJWT(tokenString string) (Identity, error) {
	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return publicKey, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("jwt parse error: %w", err)
	}
	if !t.Valid {
		return Identity{}, fmt.Errorf("invalid token")
	}

	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, fmt.Errorf("invalid jwt claims")
	}

	sub, ok := claims["sub"].(string)
	if !ok {
		return Identity{}, fmt.Errorf("missing sub in jwt")
	}
	peerID, err := uuid.Parse(sub)
	if err != nil {
		return Identity{}, fmt.Errorf("invalid peer id in jwt: %w", err)
	}

	role, ok := claims["role"].(string)
	if !ok || (role != RoleUser && role != RoleHub) {
		return Identity{}, fmt.Errorf("missing or invalid role in jwt")
	}

	identity := Identity{ID: peerID, Role: role}
	if env, ok := claims["env"].(string); ok {
		identity.Env = connect.ClientEnv(env)
	}
	return identity, nil
}
