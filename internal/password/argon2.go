// Package password hashes user passwords and device API keys with argon2id and
// stores them in PHC string format ($argon2id$v=19$m=...,t=...,p=...$salt$hash).
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const algorithmID = "argon2id"

var (
	// ErrInvalidHash is returned when a stored hash cannot be parsed
	ErrInvalidHash = errors.New("invalid argon2id hash")

	// ErrIncompatibleVersion is returned for hashes from another argon2 version
	ErrIncompatibleVersion = errors.New("incompatible argon2 version")

	// ErrEmptySecret is returned when asked to hash an empty string
	ErrEmptySecret = errors.New("secret must not be empty")
)

// Config holds argon2id cost parameters.
type Config struct {
	Memory      uint32 // KiB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultConfig mirrors the argon2-cffi defaults.
func DefaultConfig() Config {
	return Config{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 4,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Hasher hashes and verifies secrets.
type Hasher struct {
	config Config
}

// NewHasher validates cfg and returns a Hasher
func NewHasher(cfg Config) (*Hasher, error) {
	if cfg.Memory < 8*1024 {
		return nil, errors.New("argon2 memory must be >= 8192 KiB")
	}
	if cfg.Time < 1 || cfg.Parallelism < 1 {
		return nil, errors.New("argon2 time and parallelism must be >= 1")
	}
	if cfg.SaltLength < 16 || cfg.KeyLength < 16 {
		return nil, errors.New("argon2 salt and key length must be >= 16")
	}
	return &Hasher{config: cfg}, nil
}

// Hash returns the PHC encoding of secret under a fresh random salt
func (h *Hasher) Hash(secret string) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}

	salt := make([]byte, h.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("failed to read salt: %w", err)
	}

	key := argon2.IDKey([]byte(secret), salt, h.config.Time, h.config.Memory, h.config.Parallelism, h.config.KeyLength)

	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		h.config.Memory,
		h.config.Time,
		h.config.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether secret matches encoded. The parameters stored in
// encoded are used, so hashes survive cost changes.
func (h *Hasher) Verify(secret, encoded string) (bool, error) {
	p, err := decode(encoded)
	if err != nil {
		return false, err
	}

	key := argon2.IDKey([]byte(secret), p.salt, p.time, p.memory, p.parallelism, uint32(len(p.key)))
	return subtle.ConstantTimeCompare(key, p.key) == 1, nil
}

type params struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func decode(encoded string) (*params, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != algorithmID {
		return nil, ErrInvalidHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, ErrInvalidHash
	}
	if version != argon2.Version {
		return nil, ErrIncompatibleVersion
	}

	p := &params{}
	for _, kv := range strings.Split(parts[3], ",") {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, ErrInvalidHash
		}
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil || n == 0 {
			return nil, ErrInvalidHash
		}
		switch name {
		case "m":
			p.memory = uint32(n)
		case "t":
			p.time = uint32(n)
		case "p":
			if n > 255 {
				return nil, ErrInvalidHash
			}
			p.parallelism = uint8(n)
		default:
			return nil, ErrInvalidHash
		}
	}
	if p.memory == 0 || p.time == 0 || p.parallelism == 0 {
		return nil, ErrInvalidHash
	}

	var err error
	if p.salt, err = decodeB64(parts[4]); err != nil || len(p.salt) == 0 {
		return nil, ErrInvalidHash
	}
	if p.key, err = decodeB64(parts[5]); err != nil || len(p.key) == 0 {
		return nil, ErrInvalidHash
	}

	return p, nil
}

// decodeB64 accepts both padded and unpadded standard base64.
func decodeB64(s string) ([]byte, error) {
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}
