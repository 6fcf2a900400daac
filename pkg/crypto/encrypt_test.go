package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "0123456789abcdef0123456789abcdef"

func TestNewEncryptorRejectsShortKey(t *testing.T) {
	_, err := NewEncryptor("short")
	assert.Error(t, err)
}

func TestSealOpen(t *testing.T) {
	enc, err := NewEncryptor(testKey)
	require.NoError(t, err)

	sealed, err := enc.Seal("sk_test_51Habc")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "sk_test")

	again, err := enc.Seal("sk_test_51Habc")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "nonce must differ between seals")

	plain, err := enc.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "sk_test_51Habc", plain)
}

func TestEmptyStaysEmpty(t *testing.T) {
	enc, err := NewEncryptor(testKey)
	require.NoError(t, err)

	sealed, err := enc.Seal("")
	require.NoError(t, err)
	assert.Empty(t, sealed)

	plain, err := enc.Open("")
	require.NoError(t, err)
	assert.Empty(t, plain)
}

func TestOpenRejectsGarbage(t *testing.T) {
	enc, err := NewEncryptor(testKey)
	require.NoError(t, err)

	_, err = enc.Open("not base64!!")
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = enc.Open("YWJj")
	assert.ErrorIs(t, err, ErrMalformed)
}
