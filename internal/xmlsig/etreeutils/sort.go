// Package etreeutils holds the small amount of namespace and attribute
// bookkeeping XML-DSig canonicalization needs on top of beevik/etree.
//
// This file is adapted from the github.com/russellhaering/goxmldsig project.
package etreeutils

import "github.com/beevik/etree"

// SortedAttrs orders an etree.Attr slice into canonical XML attribute order:
// the default xmlns declaration first, then namespace declarations sorted by
// prefix, then unprefixed attributes sorted by local name, then prefixed
// attributes sorted by prefix and then by local name. Prefixed attributes
// are compared by their prefix text, not by the namespace URI it is bound to.
type SortedAttrs []etree.Attr

func (a SortedAttrs) Len() int {
	return len(a)
}

func (a SortedAttrs) Swap(i, j int) {
	a[i], a[j] = a[j], a[i]
}

func (a SortedAttrs) Less(i, j int) bool {
	return less(a[i], a[j])
}

func less(a1, a2 etree.Attr) bool {
	rank1, rank2 := attrRank(a1), attrRank(a2)
	if rank1 != rank2 {
		return rank1 < rank2
	}

	switch rank1 {
	case rankDefaultNS:
		return false
	case rankNSDecl:
		return a1.Key < a2.Key
	default:
		ns1, ns2 := a1.Space, a2.Space
		if ns1 != ns2 {
			return ns1 < ns2
		}
		return a1.Key < a2.Key
	}
}

const (
	rankDefaultNS = iota
	rankNSDecl
	rankUnprefixed
	rankPrefixed
)

func attrRank(a etree.Attr) int {
	if a.Space == "" && a.Key == "xmlns" {
		return rankDefaultNS
	}
	if a.Space == "xmlns" {
		return rankNSDecl
	}
	if a.Space == "" {
		return rankUnprefixed
	}
	return rankPrefixed
}
