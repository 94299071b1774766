// Package xmlsig implements the canonicalization, parsing, emission and
// verification of VEO's detached XML-DSig signature documents (components
// C2, C3 and C4).
//
// This file is adapted from the github.com/russellhaering/goxmldsig project.
package xmlsig

import (
	"crypto"
	"crypto/x509"

	"github.com/vers-au/veoresign/internal/veoerr"
)

// AlgorithmID identifies a canonicalization, digest or signature method by
// its XML-DSig URI.
type AlgorithmID string

func (id AlgorithmID) String() string { return string(id) }

const (
	CanonicalXML10ExclusiveAlgorithmID AlgorithmID = "http://www.w3.org/2001/10/xml-exc-c14n#"

	EnvelopedSignatureAlgorithmID AlgorithmID = "http://www.w3.org/2000/09/xmldsig#enveloped-signature"
)

// Signature method URIs, RSA and ECDSA paired with each supported digest.
const (
	RSASHA1SignatureMethod     = "http://www.w3.org/2000/09/xmldsig#rsa-sha1"
	RSASHA256SignatureMethod   = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256"
	RSASHA384SignatureMethod   = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha384"
	RSASHA512SignatureMethod   = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha512"
	ECDSASHA1SignatureMethod   = "http://www.w3.org/2001/04/xmldsig-more#ecdsa-sha1"
	ECDSASHA256SignatureMethod = "http://www.w3.org/2001/04/xmldsig-more#ecdsa-sha256"
	ECDSASHA384SignatureMethod = "http://www.w3.org/2001/04/xmldsig-more#ecdsa-sha384"
	ECDSASHA512SignatureMethod = "http://www.w3.org/2001/04/xmldsig-more#ecdsa-sha512"
)

var digestAlgorithmIdentifiers = map[crypto.Hash]string{
	crypto.SHA1:   "http://www.w3.org/2000/09/xmldsig#sha1",
	crypto.SHA256: "http://www.w3.org/2001/04/xmlenc#sha256",
	crypto.SHA384: "http://www.w3.org/2001/04/xmldsig-more#sha384",
	crypto.SHA512: "http://www.w3.org/2001/04/xmlenc#sha512",
}

// DigestNames maps the short names used on the CLI and in Signer records
// ("sha1".."sha512") to the crypto.Hash they select. SHA-512 is the default
// per the signature codec's specification.
var DigestNames = map[string]crypto.Hash{
	"sha1":   crypto.SHA1,
	"sha256": crypto.SHA256,
	"sha384": crypto.SHA384,
	"sha512": crypto.SHA512,
}

const DefaultDigestName = "sha512"

type signatureMethodInfo struct {
	PublicKeyAlgorithm x509.PublicKeyAlgorithm
	Hash               crypto.Hash
}

var signatureMethodIdentifiers = map[x509.PublicKeyAlgorithm]map[crypto.Hash]string{
	x509.RSA: {
		crypto.SHA1:   RSASHA1SignatureMethod,
		crypto.SHA256: RSASHA256SignatureMethod,
		crypto.SHA384: RSASHA384SignatureMethod,
		crypto.SHA512: RSASHA512SignatureMethod,
	},
	x509.ECDSA: {
		crypto.SHA1:   ECDSASHA1SignatureMethod,
		crypto.SHA256: ECDSASHA256SignatureMethod,
		crypto.SHA384: ECDSASHA384SignatureMethod,
		crypto.SHA512: ECDSASHA512SignatureMethod,
	},
}

var digestAlgorithmsByIdentifier = map[string]crypto.Hash{}
var signatureMethodsByIdentifier = map[string]signatureMethodInfo{}

func init() {
	for hash, id := range digestAlgorithmIdentifiers {
		digestAlgorithmsByIdentifier[id] = hash
	}
	for algo, hashToMethod := range signatureMethodIdentifiers {
		for hash, method := range hashToMethod {
			signatureMethodsByIdentifier[method] = signatureMethodInfo{
				PublicKeyAlgorithm: algo,
				Hash:               hash,
			}
		}
	}
}

// digestURIFor returns the DigestMethod URI for a hash, erroring VerifyAlgo
// if the build does not support it.
func digestURIFor(hash crypto.Hash) (string, error) {
	uri, ok := digestAlgorithmIdentifiers[hash]
	if !ok {
		return "", veoerr.New(veoerr.VerifyAlgo, "unsupported digest algorithm")
	}
	return uri, nil
}

// signatureURIFor returns the SignatureMethod URI for a public key algorithm
// and hash pair.
func signatureURIFor(alg x509.PublicKeyAlgorithm, hash crypto.Hash) (string, error) {
	byHash, ok := signatureMethodIdentifiers[alg]
	if !ok {
		return "", veoerr.New(veoerr.VerifyAlgo, "unsupported signature key algorithm")
	}
	uri, ok := byHash[hash]
	if !ok {
		return "", veoerr.New(veoerr.VerifyAlgo, "unsupported signature/digest pairing")
	}
	return uri, nil
}

// hashForDigestURI resolves a DigestMethod URI parsed from a signature
// document back to a crypto.Hash.
func hashForDigestURI(uri string) (crypto.Hash, error) {
	hash, ok := digestAlgorithmsByIdentifier[uri]
	if !ok {
		return 0, veoerr.New(veoerr.VerifyAlgo, "unrecognized digest algorithm: "+uri)
	}
	return hash, nil
}

// methodForSignatureURI resolves a SignatureMethod URI back to the public
// key algorithm and hash pair it names.
func methodForSignatureURI(uri string) (x509.PublicKeyAlgorithm, crypto.Hash, error) {
	info, ok := signatureMethodsByIdentifier[uri]
	if !ok {
		return x509.UnknownPublicKeyAlgorithm, 0, veoerr.New(veoerr.VerifyAlgo, "unrecognized signature algorithm: "+uri)
	}
	return info.PublicKeyAlgorithm, info.Hash, nil
}
