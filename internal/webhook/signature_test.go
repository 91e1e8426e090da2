package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignKnownVector(t *testing.T) {
	sig, err := Sign([]byte("The quick brown fox jumps over the lazy dog"), "key")
	require.NoError(t, err)
	assert.Equal(t, "f7bc83f430538424b13298e6aa6fb143ef4d59a14946175997479dbc2d1a3cd8", sig)
}

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"id_event":"e-1","data":{}}`)
	sig, err := Sign(payload, "s3cret")
	require.NoError(t, err)

	assert.NoError(t, VerifySignature(payload, sig, "s3cret"))
	assert.NoError(t, VerifySignature(payload, "sha256="+sig, "s3cret"))
	assert.ErrorIs(t, VerifySignature(payload, sig, "other"), ErrInvalidSignature)
	assert.ErrorIs(t, VerifySignature([]byte(`{}`), sig, "s3cret"), ErrInvalidSignature)
	assert.ErrorIs(t, VerifySignature(payload, "not-hex", "s3cret"), ErrInvalidSignature)
	assert.ErrorIs(t, VerifySignature(payload, sig, ""), ErrInvalidSignature)
}

func TestSignRejectsEmptySecret(t *testing.T) {
	_, err := Sign([]byte("x"), "")
	assert.Error(t, err)
}
