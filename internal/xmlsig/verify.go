package xmlsig

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"os"

	"github.com/vers-au/veoresign/internal/veo"
	"github.com/vers-au/veoresign/internal/veoerr"
)

// Verify checks sig against the file at payloadPath and returns a
// VerifiedSignature recording the outcome. It never mutates sig; a
// cryptographic mismatch is reported via Valid=false, not an error.
// Certificate-chain trust is not evaluated; only the signature itself is
// checked against the leaf certificate embedded in the document.
func Verify(sig veo.Signature, payloadPath string) (veo.VerifiedSignature, error) {
	result := veo.VerifiedSignature{Signature: sig}

	hash, err := hashForDigestURI(sig.CanonicalDigest)
	if err != nil {
		return result, err
	}
	pubAlg, sigHash, err := methodForSignatureURI(sig.SignatureURI)
	if err != nil {
		return result, err
	}

	payload, err := os.ReadFile(payloadPath)
	if err != nil {
		return result, veoerr.Wrap(veoerr.VerifyIO, err, "reading payload %s", payloadPath)
	}
	actualDigest := digestBytes(hash, PayloadBytes(payload))
	if base64.StdEncoding.EncodeToString(actualDigest) != sig.DigestValueB64 {
		return result, nil
	}

	cert, err := x509.ParseCertificate(sig.CertificateDER)
	if err != nil {
		return result, veoerr.Wrap(veoerr.VerifyIO, err, "parsing embedded certificate")
	}

	signedInfo := buildSignedInfo(sig.ReferenceURI, sig.CanonicalDigest, sig.SignatureURI, sig.DigestValueB64)
	canon := NewExclusiveCanonicalizer("")
	canonSignedInfo, err := canon.Canonicalize(signedInfo)
	if err != nil {
		return result, veoerr.Wrap(veoerr.SignatureMalformed, err, "canonicalizing SignedInfo for verification")
	}
	signedInfoDigest := digestBytes(sigHash, canonSignedInfo)

	ok := verifySignature(pubAlg, cert.PublicKey, sigHash, signedInfoDigest, sig.SignatureValue)
	result.Valid = ok
	return result, nil
}

func verifySignature(alg x509.PublicKeyAlgorithm, pub crypto.PublicKey, hash crypto.Hash, digest, signature []byte) bool {
	switch alg {
	case x509.RSA:
		rsaPub, ok := pub.(*rsa.PublicKey)
		if !ok {
			return false
		}
		return rsa.VerifyPKCS1v15(rsaPub, hash, digest, signature) == nil
	case x509.ECDSA:
		ecPub, ok := pub.(*ecdsa.PublicKey)
		if !ok {
			return false
		}
		return ecdsa.VerifyASN1(ecPub, digest, signature)
	default:
		return false
	}
}
