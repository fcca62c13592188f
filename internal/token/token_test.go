package token

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSigner(t *testing.T) *Signer {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewSigner(logger)
}

func TestSignAndVerifyWithDefaultKey(t *testing.T) {
	s := newTestSigner(t)
	assert.Equal(t, DefaultAlgorithm, s.Algorithm())

	raw, err := s.Sign(jwt.MapClaims{"sub": "alice"})
	require.NoError(t, err)

	claims, err := s.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims["sub"])
}

func TestSetAlgorithmRejectsUnknown(t *testing.T) {
	s := newTestSigner(t)
	assert.Equal(t, "HS512", s.SetAlgorithm("HS512"))
	assert.Equal(t, "HS512", s.SetAlgorithm("none"))
	assert.Equal(t, "HS512", s.Algorithm())
}

func TestSetKeyRejectsEmpty(t *testing.T) {
	s := newTestSigner(t)
	assert.ErrorIs(t, s.SetKey("   ", false), ErrInvalidKey)
}

func TestVerifyFailsAfterKeyChange(t *testing.T) {
	s := newTestSigner(t)
	require.NoError(t, s.SetKey("first-secret", false))
	raw, err := s.Sign(jwt.MapClaims{"sub": "bob"})
	require.NoError(t, err)

	require.NoError(t, s.SetKey("second-secret", false))
	_, err = s.Verify(raw)
	assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
}

func TestVerifyRejectsOtherAlgorithm(t *testing.T) {
	s := newTestSigner(t)
	require.NoError(t, s.SetKey("shared", false))

	raw, err := s.Sign(jwt.MapClaims{"sub": "carol"}, WithAlgorithm("HS384"))
	require.NoError(t, err)

	_, err = s.Verify(raw)
	assert.Error(t, err)

	s.SetAlgorithm("HS384")
	_, err = s.Verify(raw)
	assert.NoError(t, err)
}

func TestVerifyRejectsExpired(t *testing.T) {
	s := newTestSigner(t)
	raw, err := s.Sign(jwt.MapClaims{"exp": time.Now().Add(-time.Minute).Unix()})
	require.NoError(t, err)

	_, err = s.Verify(raw)
	assert.True(t, errors.Is(err, jwt.ErrTokenExpired), "got %v", err)
}

func TestSignWithExpiration(t *testing.T) {
	s := newTestSigner(t)
	s.SetExpiration(time.Hour)

	raw, err := s.Sign(jwt.MapClaims{"sub": "dave"})
	require.NoError(t, err)

	claims, err := s.Decode(raw)
	require.NoError(t, err)
	exp, err := claims.GetExpirationTime()
	require.NoError(t, err)
	require.NotNil(t, exp)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp.Time, time.Minute)
}

func TestDecodeSkipsVerification(t *testing.T) {
	s := newTestSigner(t)
	raw, err := s.Sign(jwt.MapClaims{"role": "admin"})
	require.NoError(t, err)

	other := newTestSigner(t)
	_, err = other.Verify(raw)
	require.Error(t, err)

	claims, err := other.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims["role"])

	_, err = other.Decode("not-a-token")
	assert.Error(t, err)
}

func TestECDSAKeyFromFile(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalECPrivateKey(priv)
	require.NoError(t, err)
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der})

	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	require.NoError(t, err)
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})

	dir := t.TempDir()
	privPath := filepath.Join(dir, "es256.pem")
	require.NoError(t, os.WriteFile(privPath, privPEM, 0o600))

	signer := newTestSigner(t)
	signer.SetAlgorithm("ES256")
	require.NoError(t, signer.SetKey(privPath, true))

	raw, err := signer.Sign(jwt.MapClaims{"sub": "erin"})
	require.NoError(t, err)

	verifier := newTestSigner(t)
	verifier.SetAlgorithm("ES256")
	require.NoError(t, verifier.SetKey(string(pubPEM), false))

	claims, err := verifier.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, "erin", claims["sub"])

	_, err = verifier.Sign(jwt.MapClaims{"sub": "mallory"})
	assert.ErrorIs(t, err, ErrVerifyOnly)
}

func TestSetKeyMissingFile(t *testing.T) {
	s := newTestSigner(t)
	err := s.SetKey(filepath.Join(t.TempDir(), "missing.pem"), true)
	assert.Error(t, err)
}

func TestRSAKeyRejectsGarbage(t *testing.T) {
	s := newTestSigner(t)
	s.SetAlgorithm("RS256")
	require.NoError(t, s.SetKey("not a pem", false))

	_, err := s.Sign(jwt.MapClaims{})
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestRSAPrivateKeyRoundTrip(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	privPEM := string(pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(priv),
	}))

	for _, alg := range []string{"RS256", "RS512"} {
		t.Run(alg, func(t *testing.T) {
			s := newTestSigner(t)
			require.Equal(t, alg, s.SetAlgorithm(alg))
			require.NoError(t, s.SetKey(privPEM, false))
			require.NoError(t, s.CheckKey())

			raw, err := s.Sign(jwt.MapClaims{"sub": "frank"})
			require.NoError(t, err)

			parsed, err := jwt.Parse(raw, func(*jwt.Token) (any, error) { return &priv.PublicKey, nil })
			require.NoError(t, err)
			assert.Equal(t, alg, parsed.Method.Alg())

			claims, err := s.Verify(raw)
			require.NoError(t, err)
			assert.Equal(t, "frank", claims["sub"])
		})
	}
}

func TestCheckKeyRejectsUnparsablePEM(t *testing.T) {
	s := newTestSigner(t)
	s.SetAlgorithm("RS256")
	require.NoError(t, s.SetKey("not a pem", false))
	assert.ErrorIs(t, s.CheckKey(), ErrInvalidKey)

	s.SetAlgorithm("HS256")
	assert.NoError(t, s.CheckKey())
}
