package xmlsig

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"github.com/vers-au/veoresign/internal/veo"
	"github.com/vers-au/veoresign/internal/veoerr"
)

var sigFileRE = regexp.MustCompile(`^(VEOContent|VEOHistory) Signature(\d+)\.xml$`)

// ParseFileName classifies a signature filename into its bucket and
// sequence number. It does not touch the filesystem.
func ParseFileName(name string) (veo.Bucket, int, bool) {
	m := sigFileRE.FindStringSubmatch(name)
	if m == nil {
		return 0, 0, false
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return 0, 0, false
	}
	if m[1] == "VEOHistory" {
		return veo.HistoryBucket, n, true
	}
	return veo.ContentBucket, n, true
}

// Parse reads a detached VEO signature document and extracts the fields the
// engine needs: algorithms, signer certificate and signature value. Fails
// with SignatureMalformed on any structural problem.
func Parse(path string) (*veo.Signature, error) {
	bucket, seq, ok := ParseFileName(filepath.Base(path))
	if !ok {
		return nil, veoerr.New(veoerr.SignatureMalformed, "not a VEO signature filename: "+filepath.Base(path))
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromFile(path); err != nil {
		return nil, veoerr.Wrap(veoerr.SignatureMalformed, err, "parsing %s", path)
	}

	root := doc.Root()
	if root == nil || root.Tag != SignatureTag {
		return nil, veoerr.New(veoerr.SignatureMalformed, "missing Signature root in "+path)
	}

	signedInfo := root.SelectElement(SignedInfoTag)
	if signedInfo == nil {
		return nil, veoerr.New(veoerr.SignatureMalformed, "missing SignedInfo in "+path)
	}

	sigMethodEl := signedInfo.SelectElement(SignatureMethodTag)
	if sigMethodEl == nil {
		return nil, veoerr.New(veoerr.SignatureMalformed, "missing SignatureMethod in "+path)
	}
	sigMethodURI := sigMethodEl.SelectAttrValue(AlgorithmAttr, "")

	reference := signedInfo.SelectElement(ReferenceTag)
	if reference == nil {
		return nil, veoerr.New(veoerr.SignatureMalformed, "missing Reference in "+path)
	}
	digestMethodEl := reference.SelectElement(DigestMethodTag)
	if digestMethodEl == nil {
		return nil, veoerr.New(veoerr.SignatureMalformed, "missing DigestMethod in "+path)
	}
	digestURI := digestMethodEl.SelectAttrValue(AlgorithmAttr, "")
	referenceURI := reference.SelectAttrValue(URIAttr, "")

	digestValueEl := reference.SelectElement(DigestValueTag)
	if digestValueEl == nil {
		return nil, veoerr.New(veoerr.SignatureMalformed, "missing DigestValue in "+path)
	}
	digestValueB64 := strings.TrimSpace(digestValueEl.Text())

	sigValueEl := root.SelectElement(SignatureValueTag)
	if sigValueEl == nil {
		return nil, veoerr.New(veoerr.SignatureMalformed, "missing SignatureValue in "+path)
	}
	sigValue, err := base64.StdEncoding.DecodeString(strings.TrimSpace(sigValueEl.Text()))
	if err != nil {
		return nil, veoerr.Wrap(veoerr.SignatureMalformed, err, "decoding SignatureValue in %s", path)
	}

	keyInfo := root.SelectElement(KeyInfoTag)
	if keyInfo == nil {
		return nil, veoerr.New(veoerr.SignatureMalformed, "missing KeyInfo in "+path)
	}
	x509Data := keyInfo.SelectElement(X509DataTag)
	if x509Data == nil {
		return nil, veoerr.New(veoerr.SignatureMalformed, "missing X509Data in "+path)
	}
	certEl := x509Data.SelectElement(X509CertificateTag)
	if certEl == nil {
		return nil, veoerr.New(veoerr.SignatureMalformed, "missing X509Certificate in "+path)
	}
	certDER, err := base64.StdEncoding.DecodeString(strings.TrimSpace(certEl.Text()))
	if err != nil {
		return nil, veoerr.Wrap(veoerr.SignatureMalformed, err, "decoding X509Certificate in %s", path)
	}

	digestName := "unknown"
	if hash, err := hashForDigestURI(digestURI); err == nil {
		digestName = hashName(hash)
	}
	algName := "unknown"
	if alg, _, err := methodForSignatureURI(sigMethodURI); err == nil {
		algName = algoName(alg)
	}

	return &veo.Signature{
		Bucket:          bucket,
		FileName:        filepath.Base(path),
		Sequence:        seq,
		DigestAlgo:      digestName,
		SignatureAlgo:   algName,
		CertificateDER:  certDER,
		SignatureValue:  sigValue,
		CanonicalDigest: digestURI,
		SignatureURI:    sigMethodURI,
		DigestValueB64:  digestValueB64,
		ReferenceURI:    referenceURI,
	}, nil
}

func hashName(h crypto.Hash) string {
	for name, candidate := range DigestNames {
		if candidate == h {
			return name
		}
	}
	return "unknown"
}

func algoName(a x509.PublicKeyAlgorithm) string {
	switch a {
	case x509.RSA:
		return "rsa"
	case x509.ECDSA:
		return "ecdsa"
	default:
		return "unknown"
	}
}

// EmitRequest carries everything Emit needs to produce one detached
// signature document.
type EmitRequest struct {
	PayloadName string // e.g. "VEOContent.xml", the Reference URI target
	Payload     io.Reader
	Signer      crypto.Signer
	Chain       []*x509.Certificate // leaf first
	DigestName  string               // "sha1".."sha512"
}

// Emit produces a signature document over the payload read from req.Payload,
// signed by req.Signer, and returns the serialized XML bytes.
func Emit(req EmitRequest) ([]byte, error) {
	hash, ok := DigestNames[req.DigestName]
	if !ok {
		return nil, veoerr.New(veoerr.VerifyAlgo, "unsupported digest name: "+req.DigestName)
	}
	if len(req.Chain) == 0 {
		return nil, veoerr.New(veoerr.CredentialEmpty, "no certificate chain supplied to Emit")
	}

	payload, err := io.ReadAll(req.Payload)
	if err != nil {
		return nil, veoerr.Wrap(veoerr.VerifyIO, err, "reading payload for %s", req.PayloadName)
	}
	payloadDigest := digestBytes(hash, PayloadBytes(payload))

	digestURI, err := digestURIFor(hash)
	if err != nil {
		return nil, err
	}

	pubAlg := publicKeyAlgorithm(req.Signer.Public())
	sigMethodURI, err := signatureURIFor(pubAlg, hash)
	if err != nil {
		return nil, err
	}

	signedInfo := buildSignedInfo(req.PayloadName, digestURI, sigMethodURI, base64.StdEncoding.EncodeToString(payloadDigest))

	canon := NewExclusiveCanonicalizer("")
	canonSignedInfo, err := canon.Canonicalize(signedInfo)
	if err != nil {
		return nil, veoerr.Wrap(veoerr.SignatureMalformed, err, "canonicalizing SignedInfo")
	}
	signedInfoDigest := digestBytes(hash, canonSignedInfo)

	sigBytes, err := req.Signer.Sign(rand.Reader, signedInfoDigest, hash)
	if err != nil {
		return nil, veoerr.Wrap(veoerr.CredentialLoad, err, "signing SignedInfo")
	}

	signature := buildSignatureElement(signedInfo, sigBytes, req.Chain)

	doc := etree.NewDocument()
	doc.SetRoot(signature)
	out, err := doc.WriteToBytes()
	if err != nil {
		return nil, veoerr.Wrap(veoerr.SignatureMalformed, err, "serializing signature document")
	}
	return out, nil
}

func publicKeyAlgorithm(pub crypto.PublicKey) x509.PublicKeyAlgorithm {
	switch pub.(type) {
	case *rsa.PublicKey:
		return x509.RSA
	case *ecdsa.PublicKey:
		return x509.ECDSA
	default:
		return x509.UnknownPublicKeyAlgorithm
	}
}

func digestBytes(hash crypto.Hash, data []byte) []byte {
	h := hash.New()
	h.Write(data)
	return h.Sum(nil)
}

func buildSignedInfo(referenceURI, digestURI, sigMethodURI, digestValueB64 string) *etree.Element {
	signedInfo := etree.NewElement(SignedInfoTag)
	signedInfo.CreateAttr("xmlns", Namespace)

	canonicalizationMethod := signedInfo.CreateElement(CanonicalizationMethodTag)
	canonicalizationMethod.CreateAttr(AlgorithmAttr, string(CanonicalXML10ExclusiveAlgorithmID))

	signatureMethod := signedInfo.CreateElement(SignatureMethodTag)
	signatureMethod.CreateAttr(AlgorithmAttr, sigMethodURI)

	reference := signedInfo.CreateElement(ReferenceTag)
	reference.CreateAttr(URIAttr, referenceURI)

	transforms := reference.CreateElement(TransformsTag)
	transform := transforms.CreateElement(TransformTag)
	transform.CreateAttr(AlgorithmAttr, string(CanonicalXML10ExclusiveAlgorithmID))

	digestMethod := reference.CreateElement(DigestMethodTag)
	digestMethod.CreateAttr(AlgorithmAttr, digestURI)

	digestValue := reference.CreateElement(DigestValueTag)
	digestValue.SetText(digestValueB64)

	return signedInfo
}

func buildSignatureElement(signedInfo *etree.Element, signatureValue []byte, chain []*x509.Certificate) *etree.Element {
	signature := etree.NewElement(SignatureTag)
	signature.CreateAttr("xmlns", Namespace)
	signature.AddChild(signedInfo)

	sigValueEl := signature.CreateElement(SignatureValueTag)
	sigValueEl.SetText(base64.StdEncoding.EncodeToString(signatureValue))

	keyInfo := signature.CreateElement(KeyInfoTag)
	x509Data := keyInfo.CreateElement(X509DataTag)
	for _, cert := range chain {
		certEl := x509Data.CreateElement(X509CertificateTag)
		certEl.SetText(base64.StdEncoding.EncodeToString(cert.Raw))
	}

	return signature
}

// NextSequence scans dir for existing signature files of bucket and returns
// the smallest positive integer not already in use.
func NextSequence(dir string, bucket veo.Bucket) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, veoerr.Wrap(veoerr.HistoryIO, err, "listing %s", dir)
	}
	used := map[int]bool{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		b, n, ok := ParseFileName(e.Name())
		if ok && b == bucket {
			used[n] = true
		}
	}
	for k := 1; ; k++ {
		if !used[k] {
			return k, nil
		}
	}
}

// FileName builds the canonical filename for a bucket/sequence pair.
func FileName(bucket veo.Bucket, sequence int) string {
	return fmt.Sprintf("%s%d.xml", bucket.FilePrefix(), sequence)
}
