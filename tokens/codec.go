package tokens

import (
	"bytes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const keyInfo = "market token store v1"

var sealedMagic = []byte("MKT1")

// record is the persisted form of a pair.
type record struct {
	Version int       `json:"version"`
	Pair    Pair      `json:"pair"`
	SavedAt time.Time `json:"saved_at"`
}

type options struct {
	aead    cipher.AEAD
	logger  zerolog.Logger
	nowTime func() time.Time
}

// Option configures a Store implementation.
type Option func(*options) error

// WithSecret encrypts the persisted pair with XChaCha20-Poly1305 using a key
// derived from secret with HKDF-SHA256. An empty secret leaves it unencrypted.
func WithSecret(secret string) Option {
	return func(o *options) error {
		if secret == "" {
			return nil
		}
		key := make([]byte, chacha20poly1305.KeySize)
		if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(keyInfo)), key); err != nil {
			return errors.Wrap(err, "[WithSecret] derive key")
		}
		aead, err := chacha20poly1305.NewX(key)
		if err != nil {
			return errors.Wrap(err, "[WithSecret] chacha20poly1305.NewX")
		}
		o.aead = aead
		return nil
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) error {
		o.logger = logger
		return nil
	}
}

// WithNowTime sets the clock used to stamp saves (primarily for testing).
func WithNowTime(now func() time.Time) Option {
	return func(o *options) error {
		o.nowTime = now
		return nil
	}
}

func newOptions(component string, opts []Option) (*options, error) {
	o := &options{
		logger:  log.Logger,
		nowTime: time.Now,
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	o.logger = o.logger.With().Str("component", component).Logger()
	return o, nil
}

func (o *options) encode(pair Pair) ([]byte, error) {
	data, err := json.Marshal(record{Version: 1, Pair: pair, SavedAt: o.nowTime().UTC()})
	if err != nil {
		return nil, errors.Wrap(err, "marshal")
	}
	if o.aead == nil {
		return data, nil
	}
	nonce := make([]byte, o.aead.NonceSize(), o.aead.NonceSize()+len(data)+o.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, errors.Wrap(err, "nonce")
	}
	sealed := o.aead.Seal(nonce, nonce, data, []byte(StorageKey))
	return append(append([]byte{}, sealedMagic...), sealed...), nil
}

func (o *options) decode(data []byte) (*Pair, error) {
	if bytes.HasPrefix(data, sealedMagic) {
		if o.aead == nil {
			return nil, errors.Wrap(ErrCorruptTokens, "encrypted tokens but no secret configured")
		}
		data = data[len(sealedMagic):]
		if len(data) < o.aead.NonceSize() {
			return nil, errors.Wrap(ErrCorruptTokens, "short ciphertext")
		}
		nonce, ciphertext := data[:o.aead.NonceSize()], data[o.aead.NonceSize():]
		plain, err := o.aead.Open(nil, nonce, ciphertext, []byte(StorageKey))
		if err != nil {
			return nil, errors.Wrap(ErrCorruptTokens, "decrypt")
		}
		data = plain
	} else if o.aead != nil {
		o.logger.Warn().Msg("stored tokens are not encrypted; they will be encrypted on next save")
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errors.Wrap(ErrCorruptTokens, err.Error())
	}
	if rec.Pair.AccessToken == "" {
		return nil, errors.Wrap(ErrCorruptTokens, "missing access token")
	}
	return &rec.Pair, nil
}
