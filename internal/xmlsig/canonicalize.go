package xmlsig

import (
	"github.com/beevik/etree"

	"github.com/vers-au/veoresign/internal/xmlsig/etreeutils"
)

// Canonicalizer produces the canonical byte serialization of an XML
// element, per one of the algorithms named by the Signature schema.
type Canonicalizer interface {
	Canonicalize(el *etree.Element) ([]byte, error)
	Algorithm() AlgorithmID
}

type exclusiveC14N struct {
	prefixList string
}

// NewExclusiveCanonicalizer builds the Exclusive XML Canonicalization
// (http://www.w3.org/2001/10/xml-exc-c14n#) canonicalizer used to hash and
// sign a freshly built SignedInfo element.
func NewExclusiveCanonicalizer(prefixList string) Canonicalizer {
	return &exclusiveC14N{prefixList: prefixList}
}

func (c *exclusiveC14N) Algorithm() AlgorithmID { return CanonicalXML10ExclusiveAlgorithmID }

func (c *exclusiveC14N) Canonicalize(el *etree.Element) ([]byte, error) {
	clone := el.Copy()
	if err := etreeutils.TransformExcC14n(clone, c.prefixList, false); err != nil {
		return nil, err
	}
	return canonicalSerialize(clone)
}

func canonicalSerialize(el *etree.Element) ([]byte, error) {
	doc := etree.NewDocument()
	doc.SetRoot(el)
	doc.WriteSettings = etree.WriteSettings{
		CanonicalAttrVal: true,
		CanonicalEndTags: true,
		CanonicalText:    true,
	}
	return doc.WriteToBytes()
}

// PayloadBytes returns the canonical hashing input for a VEO content or
// history document: the literal bytes as stored on disk. VEO's payload
// canonical form applies no XML normalization, so callers must not strip a
// byte-order mark or rewrite line endings before hashing — the bytes passed
// in are returned unchanged.
func PayloadBytes(raw []byte) []byte {
	return raw
}
