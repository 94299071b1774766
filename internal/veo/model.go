// Package veo defines the plain data records shared by the resign engine:
// signatures, signers, tasks and history events. There is no class
// hierarchy here, only structs and the free functions in sibling packages
// that operate on them.
package veo

import "time"

// Bucket names which payload document a signature belongs to.
type Bucket int

const (
	// ContentBucket signatures are taken over VEOContent.xml.
	ContentBucket Bucket = iota
	// HistoryBucket signatures are taken over VEOHistory.xml.
	HistoryBucket
)

func (b Bucket) String() string {
	if b == HistoryBucket {
		return "history"
	}
	return "content"
}

// PayloadName returns the fixed filename this bucket signs.
func (b Bucket) PayloadName() string {
	if b == HistoryBucket {
		return "VEOHistory.xml"
	}
	return "VEOContent.xml"
}

// FilePrefix returns the signature filename prefix for this bucket, e.g.
// "VEOContent Signature" or "VEOHistory Signature".
func (b Bucket) FilePrefix() string {
	if b == HistoryBucket {
		return "VEOHistory Signature"
	}
	return "VEOContent Signature"
}

// Signature is the on-disk record described by VEO's detached XML-DSig
// signature documents: which file it lives in, the algorithms it declares,
// the embedded leaf certificate, and the signature value itself.
type Signature struct {
	Bucket          Bucket
	FileName        string // e.g. "VEOContent Signature1.xml", basename only
	Sequence        int    // the <n> in the filename
	DigestAlgo      string // canonical identifier, e.g. "sha512"
	SignatureAlgo   string // canonical identifier, e.g. "rsa"
	CertificateDER  []byte // decoded leaf certificate, DER form
	SignatureValue  []byte // decoded signature bytes
	CanonicalDigest string // DigestMethod algorithm URI, as parsed, verbatim
	SignatureURI    string // SignatureMethod algorithm URI, as parsed, verbatim
	DigestValueB64  string // Reference/DigestValue content, as parsed, verbatim
	ReferenceURI    string // Reference/@URI, the payload this signature covers
}

// VerifiedSignature pairs a Signature with the outcome of checking it
// against its payload. It is returned by the verifier rather than mutating
// Signature in place, so that "valid" is a fact about one verification run,
// not a flag living inside the record forever.
type VerifiedSignature struct {
	Signature
	Valid bool
}

// Signer is a credential loaded once at batch configuration time and reused
// read-only across every VEO in the batch.
type Signer struct {
	Label       string // origin label, typically the pfx file path
	PrivateKey  any    // crypto.Signer (rsa.PrivateKey or ecdsa.PrivateKey)
	LeafCert    []byte // DER-encoded leaf certificate
	Chain       [][]byte
	Expired     bool // leaf certificate's NotAfter has already passed
	ExpireSoon  bool // leaf certificate expires within 30 days
	ExpireDays  int  // days until NotAfter, negative if already expired
}

// Task is the engine's top-level operating mode for one VEO.
type Task int

const (
	Verify Task = iota
	Renew
	Create
	AddEvent
)

func (t Task) String() string {
	switch t {
	case Verify:
		return "Verify"
	case Renew:
		return "Renew"
	case Create:
		return "Create"
	case AddEvent:
		return "AddEvent"
	default:
		return "Unknown"
	}
}

// Event is one provenance record appended to VEOHistory.xml.
type Event struct {
	DateTime    time.Time
	EventType   string
	Initiator   string
	Description string
}
