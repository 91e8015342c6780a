// internal/connect/token_test.go
package connect

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMintIsDeterministic(t *testing.T) {
	meta := DummyNativeMeta()
	now := time.Unix(1700000000, 0)

	tok1, err := meta.NewConnectToken(now, 42)
	require.NoError(t, err)
	tok2, err := meta.NewConnectToken(now, 42)
	require.NoError(t, err)

	assert.Equal(t, tok1.Token, tok2.Token, "equal inputs must mint byte-identical tokens")
	assert.Equal(t, EnvNative, tok1.Env)
}

func TestMintVariesByInput(t *testing.T) {
	meta := DummyNativeMeta()
	now := time.Unix(1700000000, 0)

	base, err := meta.NewConnectToken(now, 42)
	require.NoError(t, err)

	otherClient, err := meta.NewConnectToken(now, 43)
	require.NoError(t, err)
	assert.NotEqual(t, base.Token, otherClient.Token)

	otherTime, err := meta.NewConnectToken(now.Add(time.Second), 42)
	require.NoError(t, err)
	assert.NotEqual(t, base.Token, otherTime.Token)

	otherKey := meta
	otherKey.AuthKey[31] = 0xff
	keyed, err := otherKey.NewConnectToken(now, 42)
	require.NoError(t, err)
	assert.NotEqual(t, base.Token, keyed.Token)
}

func TestMintRequiresAddresses(t *testing.T) {
	meta := DummyNativeMeta()
	meta.ServerAddresses = nil
	_, err := meta.NewConnectToken(time.Unix(1700000000, 0), 1)
	assert.Error(t, err)
}

func TestMemoryMetaChecksClientID(t *testing.T) {
	var key [32]byte
	key[5] = 9
	meta := MetaMemory{
		ServerConfig: DummySetupConfig(),
		ClientIDs:    []uint64{1, 2},
		AuthKey:      key,
	}

	_, err := meta.NewConnectToken(time.Unix(1700000000, 0), 3)
	assert.ErrorIs(t, err, ErrUnknownClient)

	tok, err := meta.NewConnectToken(time.Unix(1700000000, 0), 2)
	require.NoError(t, err)
	assert.Equal(t, EnvMemory, tok.Env)
}

func TestMetasSelectsByEnv(t *testing.T) {
	native := DummyNativeMeta()
	metas := Metas{Native: &native}
	now := time.Unix(1700000000, 0)

	tok, err := metas.NewConnectToken(EnvNative, now, 7)
	require.NoError(t, err)
	assert.Equal(t, EnvNative, tok.Env)

	_, err = metas.NewConnectToken(EnvWasmWT, now, 7)
	assert.ErrorIs(t, err, ErrNoMeta)

	_, err = metas.NewConnectToken(EnvWasmWS, now, 7)
	assert.ErrorIs(t, err, ErrNoMeta)
}

func TestWasmTokensCarryAddressing(t *testing.T) {
	var key [32]byte
	key[0] = 2
	now := time.Unix(1700000000, 0)

	wt := MetaWasmWT{
		ServerConfig:    DummySetupConfig(),
		ServerAddresses: []string{"[::1]:9000"},
		AuthKey:         key,
		CertHashes:      [][]byte{{0xde, 0xad}},
	}
	tok, err := wt.NewConnectToken(now, 1)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{{0xde, 0xad}}, tok.CertHashes)

	ws := MetaWasmWS{
		ServerConfig:    DummySetupConfig(),
		ServerAddresses: []string{"[::1]:9001"},
		AuthKey:         key,
		URL:             "wss://localhost:9001/game",
	}
	wsTok, err := ws.NewConnectToken(now, 1)
	require.NoError(t, err)
	assert.Equal(t, "wss://localhost:9001/game", wsTok.URL)
	assert.NotEqual(t, tok.Token, wsTok.Token)
}
