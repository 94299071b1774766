package credential

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vers-au/veoresign/internal/veo"
	"github.com/vers-au/veoresign/internal/veoerr"
)

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.pfx"), "whatever")
	require.Error(t, err)
	require.Equal(t, veoerr.CredentialLoad, veoerr.Of(err))
}

func TestLoadRejectsGarbageContainer(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "garbage.pfx")
	require.NoError(t, writeFile(path, []byte("not a pkcs12 container")))

	_, err := Load(path, "password")
	require.Error(t, err)
	require.Equal(t, veoerr.CredentialLoad, veoerr.Of(err))
}

func writeFile(path string, data []byte) error {
	return os.WriteFile(path, data, 0o644)
}

func selfSignedForCredentialTest(t *testing.T, cn string) (*rsa.PrivateKey, *x509.Certificate) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return key, cert
}

func TestKeysMatchRSA(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	require.True(t, keysMatch(&key.PublicKey, &key.PublicKey))

	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	require.False(t, keysMatch(&key.PublicKey, &other.PublicKey))
}

func TestKeysMatchECDSA(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	require.True(t, keysMatch(&key.PublicKey, &key.PublicKey))
}

func TestKeysMatchRejectsMixedAlgorithms(t *testing.T) {
	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	require.False(t, keysMatch(&rsaKey.PublicKey, &ecKey.PublicKey))
}

func TestDerChainEmpty(t *testing.T) {
	require.Empty(t, derChain(nil))
}

func TestExpiryFlagsExpiredCertificateIsSoftFlaggedNotRejected(t *testing.T) {
	_, cert := selfSignedForCredentialTest(t, "leaf")
	cert.NotAfter = time.Now().Add(-24 * time.Hour)

	expired, expireSoon, days := expiryFlags(cert, time.Now())
	require.True(t, expired)
	require.True(t, expireSoon)
	require.Less(t, days, 0)
}

func TestExpiryFlagsExpiringSoon(t *testing.T) {
	_, cert := selfSignedForCredentialTest(t, "leaf")
	cert.NotAfter = time.Now().Add(10 * 24 * time.Hour)

	expired, expireSoon, _ := expiryFlags(cert, time.Now())
	require.False(t, expired)
	require.True(t, expireSoon)
}

func TestExpiryFlagsFarFromExpiry(t *testing.T) {
	_, cert := selfSignedForCredentialTest(t, "leaf")
	cert.NotAfter = time.Now().Add(365 * 24 * time.Hour)

	expired, expireSoon, _ := expiryFlags(cert, time.Now())
	require.False(t, expired)
	require.False(t, expireSoon)
}

func TestCertificatesRoundTripsLeafAndChain(t *testing.T) {
	_, leafCert := selfSignedForCredentialTest(t, "leaf")
	_, caCert := selfSignedForCredentialTest(t, "ca")

	s := &veo.Signer{
		Label:    "test",
		LeafCert: leafCert.Raw,
		Chain:    [][]byte{caCert.Raw},
	}
	certs, err := Certificates(s)
	require.NoError(t, err)
	require.Len(t, certs, 2)
	require.Equal(t, "leaf", certs[0].Subject.CommonName)
	require.Equal(t, "ca", certs[1].Subject.CommonName)
}
