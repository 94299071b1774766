// Package credential loads signing identities from PKCS#12 containers
// (component C1). This is adapted from fiskalhrgo's certManager, generalized
// from RSA-only to any crypto.Signer (RSA or ECDSA) leaf key.
package credential

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	"golang.org/x/crypto/pkcs12"

	"github.com/vers-au/veoresign/internal/veo"
	"github.com/vers-au/veoresign/internal/veoerr"
)

// Load decrypts the PKCS#12 container at path with password and returns the
// signer identity it contains. Fails with CredentialLoad if the container
// cannot be read or parsed (including a wrong password), CredentialEmpty if
// it parses but holds no usable private key or leaf certificate.
func Load(path, password string) (*veo.Signer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, veoerr.Wrap(veoerr.CredentialLoad, err, "reading %s", path)
	}

	pemBlocks, err := pkcs12.ToPEM(raw, password)
	if err != nil {
		return nil, veoerr.Wrap(veoerr.CredentialLoad, err, "decrypting %s", path)
	}

	var signer crypto.Signer
	var certs []*x509.Certificate

	for _, block := range pemBlocks {
		switch block.Type {
		case "PRIVATE KEY":
			key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
			if err != nil {
				key, err = x509.ParsePKCS1PrivateKey(block.Bytes)
			}
			if err != nil {
				// pkcs12.ToPEM encodes ECDSA keys in SEC 1 form.
				key, err = x509.ParseECPrivateKey(block.Bytes)
			}
			if err != nil {
				return nil, veoerr.Wrap(veoerr.CredentialLoad, err, "parsing private key in %s", path)
			}
			s, ok := toSigner(key)
			if !ok {
				return nil, veoerr.New(veoerr.CredentialLoad, "private key in "+path+" is neither RSA nor ECDSA")
			}
			signer = s
		case "CERTIFICATE":
			cert, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return nil, veoerr.Wrap(veoerr.CredentialLoad, err, "parsing certificate in %s", path)
			}
			certs = append(certs, cert)
		}
	}

	if signer == nil {
		return nil, veoerr.New(veoerr.CredentialEmpty, "no private key found in "+path)
	}

	// The leaf is the first certificate whose public key matches the
	// private key; every other certificate goes into the chain.
	var leaf *x509.Certificate
	var chain []*x509.Certificate
	for _, cert := range certs {
		if leaf == nil && keysMatch(signer.Public(), cert.PublicKey) {
			leaf = cert
		} else {
			chain = append(chain, cert)
		}
	}
	if leaf == nil {
		return nil, veoerr.New(veoerr.CredentialEmpty, "no certificate in "+path+" matches the private key")
	}

	now := time.Now()
	if now.Before(leaf.NotBefore) {
		return nil, veoerr.New(veoerr.CredentialLoad, fmt.Sprintf("certificate in %s is not valid yet (valid from %s)", path, leaf.NotBefore))
	}

	// Expiry is a soft flag, not a load failure: a signer whose certificate
	// has already lapsed can still be used to verify or renew a VEO the
	// operator needs processed today, and the caller decides what to do
	// with Expired/ExpireSoon (typically log a warning).
	expired, expireSoon, expireDays := expiryFlags(leaf, now)

	return &veo.Signer{
		Label:      path,
		PrivateKey: signer,
		LeafCert:   leaf.Raw,
		Chain:      derChain(chain),
		Expired:    expired,
		ExpireSoon: expireSoon,
		ExpireDays: expireDays,
	}, nil
}

// expiryFlags mirrors fiskalhrgo's decodeP12Cert expiry bookkeeping: not
// valid yet is a hard failure handled by the caller, but expired/expiring
// within 30 days are soft flags only.
func expiryFlags(leaf *x509.Certificate, now time.Time) (expired, expireSoon bool, expireDays int) {
	expireDays = int(leaf.NotAfter.Sub(now).Hours() / 24)
	return now.After(leaf.NotAfter), expireDays <= 30, expireDays
}

func toSigner(key any) (crypto.Signer, bool) {
	switch k := key.(type) {
	case *rsa.PrivateKey:
		return k, true
	case *ecdsa.PrivateKey:
		return k, true
	default:
		return nil, false
	}
}

func keysMatch(signerPub crypto.PublicKey, certPub any) bool {
	switch pub := signerPub.(type) {
	case *rsa.PublicKey:
		certRSA, ok := certPub.(*rsa.PublicKey)
		return ok && pub.Equal(certRSA)
	case *ecdsa.PublicKey:
		certEC, ok := certPub.(*ecdsa.PublicKey)
		return ok && pub.Equal(certEC)
	default:
		return false
	}
}

func derChain(chain []*x509.Certificate) [][]byte {
	out := make([][]byte, len(chain))
	for i, c := range chain {
		out[i] = c.Raw
	}
	return out
}

// Certificates parses a signer's raw DER chain back into *x509.Certificate,
// leaf first.
func Certificates(s *veo.Signer) ([]*x509.Certificate, error) {
	leaf, err := x509.ParseCertificate(s.LeafCert)
	if err != nil {
		return nil, veoerr.Wrap(veoerr.CredentialLoad, err, "re-parsing leaf certificate for %s", s.Label)
	}
	out := []*x509.Certificate{leaf}
	for _, der := range s.Chain {
		if len(der) == 0 {
			continue
		}
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, veoerr.Wrap(veoerr.CredentialLoad, err, "re-parsing chain certificate for %s", s.Label)
		}
		out = append(out, cert)
	}
	return out, nil
}

// Signer returns s.PrivateKey asserted back to crypto.Signer.
func Signer(s *veo.Signer) (crypto.Signer, bool) {
	signer, ok := s.PrivateKey.(crypto.Signer)
	return signer, ok
}
