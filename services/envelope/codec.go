// Package envelope decodes the hybrid encryption envelope carried by every
// mutating request: an RSA-OAEP-wrapped AES key plus an AES-256-GCM payload
// whose plaintext JSON carries a freshness timestamp.
package envelope

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"strings"
	"sync"
	"time"

	"veris/apperr"
)

const (
	ivLen  = 12
	tagLen = 16
)

// KeyCustody resolves private key material by key ID. The production
// implementation is the vendor client; tests and single-tenant deployments
// use StaticCustody.
type KeyCustody interface {
	GetKey(ctx context.Context, keyID string) (string, error)
}

// StaticCustody serves one locally configured key regardless of ID.
type StaticCustody struct {
	KeyB64 string
}

func (s StaticCustody) GetKey(ctx context.Context, keyID string) (string, error) {
	return s.KeyB64, nil
}

// Codec decrypts request envelopes. The private key is fetched from custody
// on first use and cached for the life of the codec.
type Codec struct {
	custody KeyCustody
	keyID   string
	skew    time.Duration

	mu   sync.Mutex
	priv *rsa.PrivateKey
}

// NewCodec builds a Codec over the given custody source. skew bounds how far
// a payload timestamp may drift from server time in either direction.
func NewCodec(custody KeyCustody, keyID string, skew time.Duration) *Codec {
	return &Codec{custody: custody, keyID: keyID, skew: skew}
}

func (c *Codec) privateKey(ctx context.Context) (*rsa.PrivateKey, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.priv != nil {
		return c.priv, nil
	}

	raw, err := c.custody.GetKey(ctx, c.keyID)
	if err != nil {
		return nil, err
	}
	// Key custody hands back raw PEM; locally configured keys are
	// base64-wrapped PEM or DER.
	keyBytes := []byte(raw)
	if !strings.HasPrefix(strings.TrimSpace(raw), "-----BEGIN") {
		keyBytes, err = base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return nil, apperr.Wrap(apperr.ErrKeyUnwrap, err)
		}
	}
	der := keyBytes
	if block, _ := pem.Decode(keyBytes); block != nil {
		der = block.Bytes
	}
	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		// Older custody entries are PKCS1.
		pk, pkcs1Err := x509.ParsePKCS1PrivateKey(der)
		if pkcs1Err != nil {
			return nil, apperr.Wrap(apperr.ErrKeyUnwrap, err)
		}
		c.priv = pk
		return pk, nil
	}
	pk, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, apperr.ErrKeyUnwrap
	}
	c.priv = pk
	return pk, nil
}

// Decrypt opens an envelope and enforces the freshness window. The returned
// bytes are the plaintext JSON payload.
func (c *Codec) Decrypt(ctx context.Context, keyB64, dataB64 string) ([]byte, error) {
	wrappedKey, err := base64.StdEncoding.DecodeString(keyB64)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrMalformedEnvelope, err)
	}
	data, err := base64.StdEncoding.DecodeString(dataB64)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrMalformedEnvelope, err)
	}
	if len(data) < ivLen+tagLen {
		return nil, apperr.ErrMalformedEnvelope
	}

	priv, err := c.privateKey(ctx)
	if err != nil {
		return nil, err
	}
	aesKey, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, wrappedKey, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrKeyUnwrap, err)
	}

	block, err := aes.NewCipher(aesKey)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrDecryptionFailed, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrDecryptionFailed, err)
	}
	plaintext, err := gcm.Open(nil, data[:ivLen], data[ivLen:], nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrDecryptionFailed, err)
	}

	if err := c.checkFreshness(plaintext); err != nil {
		return nil, err
	}
	return plaintext, nil
}

func (c *Codec) checkFreshness(plaintext []byte) error {
	var stamp struct {
		Timestamp int64 `json:"timestamp"`
	}
	if err := json.Unmarshal(plaintext, &stamp); err != nil || stamp.Timestamp == 0 {
		return apperr.ErrRequestExpired
	}
	drift := time.Since(time.Unix(stamp.Timestamp, 0))
	if drift < 0 {
		drift = -drift
	}
	if drift > c.skew {
		return apperr.ErrRequestExpired
	}
	return nil
}

// Encrypt seals a payload for the given public key, stamping the current time
// into the JSON before sealing. Used by client tooling and tests.
func Encrypt(payload map[string]any, pub *rsa.PublicKey) (keyB64, dataB64 string, err error) {
	if payload == nil {
		payload = map[string]any{}
	}
	if _, ok := payload["timestamp"]; !ok {
		payload["timestamp"] = time.Now().Unix()
	}
	plaintext, err := json.Marshal(payload)
	if err != nil {
		return "", "", err
	}

	aesKey := make([]byte, 32)
	if _, err := rand.Read(aesKey); err != nil {
		return "", "", err
	}
	block, err := aes.NewCipher(aesKey)
	if err != nil {
		return "", "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", "", err
	}
	iv := make([]byte, ivLen)
	if _, err := rand.Read(iv); err != nil {
		return "", "", err
	}
	sealed := gcm.Seal(iv, iv, plaintext, nil)

	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, aesKey, nil)
	if err != nil {
		return "", "", err
	}
	return base64.StdEncoding.EncodeToString(wrapped),
		base64.StdEncoding.EncodeToString(sealed), nil
}
