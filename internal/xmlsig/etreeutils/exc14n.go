package etreeutils

import (
	"sort"
	"strings"

	"github.com/beevik/etree"
)

// TransformExcC14n rewrites el in place into Exclusive XML Canonicalization
// form (http://www.w3.org/2001/10/xml-exc-c14n#): a namespace declaration
// not actually visibly used where it lives (and not named in prefixList)
// is dropped from that element and, if some descendant visibly uses the
// prefix, pushed down onto the nearest such descendant instead of simply
// vanishing; redeclarations of a namespace already rendered by an ancestor
// within the subtree are dropped; comments are stripped unless withComments
// is set; and each element's attributes are reordered into canonical order.
//
// This file is adapted from the github.com/russellhaering/goxmldsig project.
func TransformExcC14n(el *etree.Element, prefixList string, withComments bool) error {
	inclusive := make(map[string]bool)
	for _, p := range strings.Fields(prefixList) {
		inclusive[p] = true
	}
	transformExcC14nInner(el, make(map[string]string), make(map[string]string), inclusive, withComments)
	return nil
}

// context carries the full prefix->URI namespace scope inherited from
// ancestors regardless of whether the declaring ancestor's attribute
// survived into the canonical output; rendered carries only the prefixes
// already emitted into the output along this path. Keeping the two
// separate is what lets a namespace declared high in the tree, but first
// visibly used several levels down, get pushed down to its actual point of
// use instead of being dropped because it wasn't visible where it was
// declared.
func transformExcC14nInner(el *etree.Element, context, rendered map[string]string, inclusive map[string]bool, withComments bool) {
	childContext := make(map[string]string, len(context))
	for k, v := range context {
		childContext[k] = v
	}
	for _, attr := range el.Attr {
		if isNSDecl(attr) {
			childContext[nsDeclPrefix(attr)] = attr.Value
		}
	}

	visible := visibleNamespacePrefixes(el)
	renderedHere := make(map[string]bool)

	kept := el.Attr[:0]
	for _, attr := range el.Attr {
		if !isNSDecl(attr) {
			kept = append(kept, attr)
			continue
		}

		prefix := nsDeclPrefix(attr)
		if _, isVisible := visible[prefix]; !isVisible && !inclusive[prefix] {
			continue
		}
		if already, seen := rendered[prefix]; seen && already == attr.Value {
			continue
		}
		kept = append(kept, attr)
		rendered[prefix] = attr.Value
		renderedHere[prefix] = true
	}

	// A prefix el visibly uses but whose own declaration was just dropped
	// (or whose declaration lives on an ancestor that never rendered it,
	// because it wasn't visible there) has to be declared here instead, or
	// the prefix vanishes from the output entirely.
	for prefix := range visible {
		if renderedHere[prefix] {
			continue
		}
		if already, seen := rendered[prefix]; seen && already == childContext[prefix] {
			continue
		}
		uri, known := childContext[prefix]
		if !known {
			continue
		}
		attr := etree.Attr{Value: uri}
		if prefix == "" {
			attr.Key = "xmlns"
		} else {
			attr.Space = "xmlns"
			attr.Key = prefix
		}
		kept = append(kept, attr)
		rendered[prefix] = uri
	}

	el.Attr = kept
	sort.Sort(SortedAttrs(el.Attr))

	if !withComments {
		i := 0
		for i < len(el.Child) {
			if _, ok := el.Child[i].(*etree.Comment); ok {
				el.RemoveChildAt(i)
				continue
			}
			i++
		}
	}

	for _, token := range el.Child {
		if child, ok := token.(*etree.Element); ok {
			childRendered := make(map[string]string, len(rendered))
			for k, v := range rendered {
				childRendered[k] = v
			}
			transformExcC14nInner(child, childContext, childRendered, inclusive, withComments)
		}
	}
}

// visibleNamespacePrefixes returns the set of namespace prefixes used by
// el's own tag or by any of its non-namespace-declaration attributes.
func visibleNamespacePrefixes(el *etree.Element) map[string]bool {
	visible := make(map[string]bool)
	visible[el.Space] = true
	for _, attr := range el.Attr {
		if !isNSDecl(attr) {
			visible[attr.Space] = true
		}
	}
	return visible
}

func isNSDecl(a etree.Attr) bool {
	return a.Space == "xmlns" || (a.Space == "" && a.Key == "xmlns")
}

func nsDeclPrefix(a etree.Attr) string {
	if a.Space == "xmlns" {
		return a.Key
	}
	return ""
}
