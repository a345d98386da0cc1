package envelope

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veris/apperr"
)

func newTestCodec(t *testing.T) (*Codec, *rsa.PublicKey) {
	t.Helper()

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	der, err := x509.MarshalPKCS8PrivateKey(priv)
	require.NoError(t, err)

	custody := StaticCustody{KeyB64: base64.StdEncoding.EncodeToString(der)}
	return NewCodec(custody, "test-key", 30*time.Second), &priv.PublicKey
}

func TestCodecAcceptsKeyFormats(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	require.NoError(t, err)
	pemKey := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})

	cases := []struct {
		name string
		key  string
	}{
		{"base64 DER", base64.StdEncoding.EncodeToString(der)},
		{"base64 PEM", base64.StdEncoding.EncodeToString(pemKey)},
		{"raw PEM", string(pemKey)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			codec := NewCodec(StaticCustody{KeyB64: tc.key}, "test-key", 30*time.Second)

			key, data, err := Encrypt(map[string]any{"email": "a@b.com"}, &priv.PublicKey)
			require.NoError(t, err)
			plain, err := codec.Decrypt(context.Background(), key, data)
			require.NoError(t, err)
			assert.Contains(t, string(plain), "a@b.com")
		})
	}
}

func TestCodecRoundTrip(t *testing.T) {
	codec, pub := newTestCodec(t)

	key, data, err := Encrypt(map[string]any{"email": "a@b.com"}, pub)
	require.NoError(t, err)

	plain, err := codec.Decrypt(context.Background(), key, data)
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(plain, &payload))
	assert.Equal(t, "a@b.com", payload["email"])
}

func TestCodecFreshnessWindow(t *testing.T) {
	codec, pub := newTestCodec(t)

	key, data, err := Encrypt(map[string]any{
		"timestamp": time.Now().Add(-29 * time.Second).Unix(),
	}, pub)
	require.NoError(t, err)
	_, err = codec.Decrypt(context.Background(), key, data)
	assert.NoError(t, err)

	key, data, err = Encrypt(map[string]any{
		"timestamp": time.Now().Add(-31 * time.Second).Unix(),
	}, pub)
	require.NoError(t, err)
	_, err = codec.Decrypt(context.Background(), key, data)
	assert.ErrorIs(t, err, apperr.ErrRequestExpired)

	// Future drift is rejected symmetrically.
	key, data, err = Encrypt(map[string]any{
		"timestamp": time.Now().Add(31 * time.Second).Unix(),
	}, pub)
	require.NoError(t, err)
	_, err = codec.Decrypt(context.Background(), key, data)
	assert.ErrorIs(t, err, apperr.ErrRequestExpired)
}

func TestCodecMissingTimestamp(t *testing.T) {
	codec, pub := newTestCodec(t)

	payload := map[string]any{"email": "a@b.com", "timestamp": 0}
	key, data, err := Encrypt(payload, pub)
	require.NoError(t, err)

	_, err = codec.Decrypt(context.Background(), key, data)
	assert.ErrorIs(t, err, apperr.ErrRequestExpired)
}

func TestCodecMalformedEnvelope(t *testing.T) {
	codec, _ := newTestCodec(t)
	ctx := context.Background()

	_, err := codec.Decrypt(ctx, "not base64!!", "also not!!")
	assert.ErrorIs(t, err, apperr.ErrMalformedEnvelope)

	short := base64.StdEncoding.EncodeToString(make([]byte, 10))
	key := base64.StdEncoding.EncodeToString(make([]byte, 256))
	_, err = codec.Decrypt(ctx, key, short)
	assert.ErrorIs(t, err, apperr.ErrMalformedEnvelope)
}

func TestCodecWrongKey(t *testing.T) {
	codec, _ := newTestCodec(t)

	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	key, data, err := Encrypt(map[string]any{"x": 1}, &other.PublicKey)
	require.NoError(t, err)

	_, err = codec.Decrypt(context.Background(), key, data)
	assert.ErrorIs(t, err, apperr.ErrKeyUnwrap)
}

func TestCodecTamperedCiphertext(t *testing.T) {
	codec, pub := newTestCodec(t)

	key, data, err := Encrypt(map[string]any{"x": 1}, pub)
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(data)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff

	_, err = codec.Decrypt(context.Background(), key, base64.StdEncoding.EncodeToString(raw))
	assert.ErrorIs(t, err, apperr.ErrDecryptionFailed)
}
