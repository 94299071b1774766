package xmlsig

// Namespace is the XML-DSig namespace every element and attribute below
// lives in.
const Namespace = "http://www.w3.org/2000/09/xmldsig#"

// Element tags, matching the well-known names of the VEO signature schema.
const (
	SignatureTag              = "Signature"
	SignedInfoTag             = "SignedInfo"
	CanonicalizationMethodTag = "CanonicalizationMethod"
	SignatureMethodTag        = "SignatureMethod"
	ReferenceTag              = "Reference"
	TransformsTag             = "Transforms"
	TransformTag              = "Transform"
	DigestMethodTag           = "DigestMethod"
	DigestValueTag            = "DigestValue"
	SignatureValueTag         = "SignatureValue"
	KeyInfoTag                = "KeyInfo"
	X509DataTag               = "X509Data"
	X509CertificateTag        = "X509Certificate"
)

const (
	AlgorithmAttr = "Algorithm"
	URIAttr       = "URI"
)
