package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHasher(t *testing.T) *Hasher {
	t.Helper()
	h, err := NewHasher(Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	require.NoError(t, err)
	return h
}

func TestHasher_HashAndVerify(t *testing.T) {
	h := testHasher(t)

	encoded, err := h.Hash("correct horse battery staple")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "$argon2id$v=19$m=8192,t=1,p=1$"))

	ok, err := h.Verify("correct horse battery staple", encoded)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify("wrong password", encoded)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHasher_SaltIsRandom(t *testing.T) {
	h := testHasher(t)

	a, err := h.Hash("same-secret")
	require.NoError(t, err)
	b, err := h.Hash("same-secret")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestHasher_VerifyUsesStoredParameters(t *testing.T) {
	cheap := testHasher(t)
	encoded, err := cheap.Hash("device-api-key")
	require.NoError(t, err)

	costly, err := NewHasher(Config{Memory: 16 * 1024, Time: 2, Parallelism: 2, SaltLength: 16, KeyLength: 32})
	require.NoError(t, err)

	ok, err := costly.Verify("device-api-key", encoded)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHasher_HashEmpty(t *testing.T) {
	_, err := testHasher(t).Hash("")
	assert.ErrorIs(t, err, ErrEmptySecret)
}

func TestHasher_VerifyMalformed(t *testing.T) {
	h := testHasher(t)

	tests := []struct {
		name    string
		encoded string
		want    error
	}{
		{"empty", "", ErrInvalidHash},
		{"wrong algorithm", "$argon2i$v=19$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA", ErrInvalidHash},
		{"wrong version", "$argon2id$v=16$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA", ErrIncompatibleVersion},
		{"missing params", "$argon2id$v=19$m=8192,t=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA", ErrInvalidHash},
		{"bad salt", "$argon2id$v=19$m=8192,t=1,p=1$!!!$aGFzaA", ErrInvalidHash},
		{"unknown param", "$argon2id$v=19$m=8192,t=1,x=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA", ErrInvalidHash},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := h.Verify("secret", tt.encoded)
			assert.False(t, ok)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestNewHasher_RejectsWeakConfig(t *testing.T) {
	_, err := NewHasher(Config{Memory: 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	assert.Error(t, err)

	_, err = NewHasher(Config{Memory: 8192, Time: 1, Parallelism: 1, SaltLength: 8, KeyLength: 32})
	assert.Error(t, err)

	_, err = NewHasher(DefaultConfig())
	assert.NoError(t, err)
}
