// Package crypto provides the symmetric primitives used to protect shared
// transactions: group key generation, fingerprint derivation and AEAD
// encryption with a fresh random nonce per message.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/atinyakov/CoOrganizer/internal/models"
	"go.uber.org/zap"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// KeySize is the group key length in bytes (256 bits).
	KeySize = 32
	// NonceSize is the per-message nonce length in bytes (96 bits).
	NonceSize = 12
	// TagSize is the authentication tag length in bytes (128 bits).
	TagSize = 16

	idSize = 16
)

var (
	// ErrDecrypt is wrapped by every decryption failure.
	ErrDecrypt = errors.New("decryption failed")
	// ErrInvalidKey is wrapped when key material has the wrong encoding or size.
	ErrInvalidKey = errors.New("invalid key")
)

// CryptoError describes a failed crypto operation. Callers match the cause
// with errors.Is(err, ErrDecrypt) or errors.Is(err, ErrInvalidKey).
type CryptoError struct {
	Op  string
	Err error
}

func (e *CryptoError) Error() string {
	return fmt.Sprintf("crypto %s: %v", e.Op, e.Err)
}

func (e *CryptoError) Unwrap() error {
	return e.Err
}

// Key is a 256-bit symmetric group key.
type Key [KeySize]byte

// String returns the std base64 form used at rest and in invites.
func (k Key) String() string {
	return base64.StdEncoding.EncodeToString(k[:])
}

// ParseKey decodes the std base64 form of a key.
func ParseKey(s string) (Key, error) {
	var k Key
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return k, &CryptoError{Op: "parse key", Err: fmt.Errorf("%w: %v", ErrInvalidKey, err)}
	}
	if len(raw) != KeySize {
		return k, &CryptoError{Op: "parse key", Err: fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidKey, len(raw), KeySize)}
	}
	copy(k[:], raw)
	return k, nil
}

// Suite selects the AEAD construction. Both ends of a share must agree.
type Suite int

const (
	// SuiteAESGCM is AES-256-GCM, the default wire format.
	SuiteAESGCM Suite = iota
	// SuiteChaCha20Poly1305 is ChaCha20-Poly1305 with a 96-bit nonce.
	SuiteChaCha20Poly1305
)

// String implements fmt.Stringer.
func (s Suite) String() string {
	switch s {
	case SuiteAESGCM:
		return "aes-gcm"
	case SuiteChaCha20Poly1305:
		return "chacha20-poly1305"
	default:
		return fmt.Sprintf("suite(%d)", int(s))
	}
}

// ParseSuite maps a config value to a Suite. Empty means the default.
func ParseSuite(s string) (Suite, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "aes-gcm", "aes256-gcm":
		return SuiteAESGCM, nil
	case "chacha20-poly1305", "chacha20poly1305":
		return SuiteChaCha20Poly1305, nil
	default:
		return 0, fmt.Errorf("unknown cipher suite %q", s)
	}
}

// Engine performs all key, fingerprint and AEAD operations. It holds no
// mutable state after construction and is safe for concurrent use.
type Engine struct {
	suite Suite
	rand  io.Reader
	log   *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithSuite selects the AEAD construction.
func WithSuite(s Suite) Option {
	return func(e *Engine) { e.suite = s }
}

// WithRandom replaces crypto/rand as the source of keys, nonces and ids.
func WithRandom(r io.Reader) Option {
	return func(e *Engine) { e.rand = r }
}

// WithLogger attaches a logger for debug output. Key material is never logged.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// New constructs an Engine. Without options it uses AES-256-GCM and crypto/rand.
func New(opts ...Option) *Engine {
	e := &Engine{suite: SuiteAESGCM, rand: rand.Reader, log: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Suite returns the configured AEAD construction.
func (e *Engine) Suite() Suite {
	return e.suite
}

// GenerateKey returns a fresh random 256-bit key.
func (e *Engine) GenerateKey() (Key, error) {
	var k Key
	if _, err := io.ReadFull(e.rand, k[:]); err != nil {
		return k, &CryptoError{Op: "generate key", Err: err}
	}
	e.log.Debug("generated symmetric key")
	return k, nil
}

// Fingerprint derives the public group identifier: SHA-256 over
// "<name>:<base64 key>", first 8 bytes, uppercase hex in four blocks.
// The result has 64 bits of space. It is fine for addressing a group and
// must not be used to authenticate one.
func (e *Engine) Fingerprint(name string, key Key) models.Fingerprint {
	return Fingerprint(name, key.String())
}

// Fingerprint is the engine-independent form of Engine.Fingerprint taking
// the key in its base64 text form.
func Fingerprint(name, encodedKey string) models.Fingerprint {
	sum := sha256.Sum256([]byte(name + ":" + encodedKey))
	h := strings.ToUpper(hex.EncodeToString(sum[:8]))
	return models.Fingerprint(h[0:4] + "-" + h[4:8] + "-" + h[8:12] + "-" + h[12:16])
}

// Encrypt seals plaintext under key with a fresh random nonce and returns
// base64(nonce || ciphertext || tag).
func (e *Engine) Encrypt(plaintext []byte, key Key) (string, error) {
	aead, err := e.aead(key)
	if err != nil {
		return "", &CryptoError{Op: "encrypt", Err: err}
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := io.ReadFull(e.rand, nonce); err != nil {
		return "", &CryptoError{Op: "encrypt", Err: fmt.Errorf("generate nonce: %w", err)}
	}
	sealed := aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Any malformed, truncated or forged input fails
// with a *CryptoError wrapping ErrDecrypt and no plaintext.
func (e *Engine) Decrypt(blob string, key Key) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(blob))
	if err != nil {
		return nil, &CryptoError{Op: "decrypt", Err: fmt.Errorf("%w: bad base64: %v", ErrDecrypt, err)}
	}
	aead, err := e.aead(key)
	if err != nil {
		return nil, &CryptoError{Op: "decrypt", Err: err}
	}
	if len(raw) < aead.NonceSize()+aead.Overhead() {
		return nil, &CryptoError{Op: "decrypt", Err: fmt.Errorf("%w: input truncated (%d bytes)", ErrDecrypt, len(raw))}
	}
	nonce, sealed := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		e.log.Debug("authentication failed while decrypting", zap.Int("size", len(raw)))
		return nil, &CryptoError{Op: "decrypt", Err: fmt.Errorf("%w: %v", ErrDecrypt, err)}
	}
	return plain, nil
}

// RandomID returns 128 random bits as unpadded URL-safe base64. It is meant
// for correlation ids and never for authorization.
func (e *Engine) RandomID() (string, error) {
	b := make([]byte, idSize)
	if _, err := io.ReadFull(e.rand, b); err != nil {
		return "", &CryptoError{Op: "random id", Err: err}
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func (e *Engine) aead(key Key) (cipher.AEAD, error) {
	switch e.suite {
	case SuiteAESGCM:
		block, err := aes.NewCipher(key[:])
		if err != nil {
			return nil, fmt.Errorf("create cipher: %w", err)
		}
		aead, err := cipher.NewGCM(block)
		if err != nil {
			return nil, fmt.Errorf("create AEAD: %w", err)
		}
		return aead, nil
	case SuiteChaCha20Poly1305:
		aead, err := chacha20poly1305.New(key[:])
		if err != nil {
			return nil, fmt.Errorf("create AEAD: %w", err)
		}
		return aead, nil
	default:
		return nil, fmt.Errorf("unsupported suite %s", e.suite)
	}
}
