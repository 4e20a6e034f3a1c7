package secret

import (
	"bytes"
	"encoding/base64"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/slot-automator/internal/errors"
)

// fast keeps key derivation cheap in tests
func fast() *Box {
	return NewBox(WithIterations(1000))
}

func TestRoundTrip(t *testing.T) {
	box := fast()

	blob, err := box.EncryptString("0xdeadbeef", "hunter2")
	require.NoError(t, err)

	got, err := box.DecryptString(blob, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "0xdeadbeef", got)
}

func TestBlobLayout(t *testing.T) {
	box := fast()
	plaintext := []byte("wallets")

	blob, err := box.Encrypt(plaintext, "pw")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(blob)
	require.NoError(t, err)
	// salt + nonce + ciphertext + 16 byte tag
	assert.Len(t, raw, SaltSize+NonceSize+len(plaintext)+16)
}

func TestFreshSaltAndNonce(t *testing.T) {
	box := fast()

	a, err := box.EncryptString("same", "pw")
	require.NoError(t, err)
	b, err := box.EncryptString("same", "pw")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestDeterministicWithFixedRandom(t *testing.T) {
	seed := bytes.Repeat([]byte{7}, SaltSize+NonceSize)
	a, err := NewBox(WithIterations(1000), WithRandom(bytes.NewReader(seed))).EncryptString("x", "pw")
	require.NoError(t, err)
	b, err := NewBox(WithIterations(1000), WithRandom(bytes.NewReader(seed))).EncryptString("x", "pw")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestDecryptFailures(t *testing.T) {
	box := fast()
	blob, err := box.EncryptString("secret", "right")
	require.NoError(t, err)

	raw, _ := base64.StdEncoding.DecodeString(blob)
	raw[len(raw)-1] ^= 0xff
	tampered := base64.StdEncoding.EncodeToString(raw)

	tests := []struct {
		name       string
		blob       string
		passphrase string
	}{
		{"wrong passphrase", blob, "wrong"},
		{"not base64", "%%%not-base64%%%", "right"},
		{"too short", base64.StdEncoding.EncodeToString([]byte("short")), "right"},
		{"tampered tag", tampered, "right"},
		{"empty", "", "right"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := box.Decrypt(tt.blob, tt.passphrase)
			require.Error(t, err)
			assert.True(t, apperrors.IsAuthentication(err))
		})
	}
}

func TestDefaultIterations(t *testing.T) {
	assert.Equal(t, DefaultIterations, NewBox().Iterations())
	assert.Equal(t, DefaultIterations, NewBox(WithIterations(0)).Iterations())
}

// Property: decrypt(encrypt(p, k), k) == p for any payload and passphrase
func TestRoundTripProperty(t *testing.T) {
	box := NewBox(WithIterations(10))
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 25
	properties := gopter.NewProperties(parameters)

	properties.Property("round trip", prop.ForAll(
		func(plaintext, passphrase string) bool {
			blob, err := box.EncryptString(plaintext, passphrase)
			if err != nil {
				return false
			}
			got, err := box.DecryptString(blob, passphrase)
			return err == nil && got == plaintext
		},
		gen.AnyString(),
		gen.AnyString(),
	))

	properties.Property("other passphrase fails", prop.ForAll(
		func(plaintext, passphrase string) bool {
			blob, err := box.EncryptString(plaintext, passphrase)
			if err != nil {
				return false
			}
			_, err = box.DecryptString(blob, passphrase+"x")
			return apperrors.IsAuthentication(err)
		},
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
