package etreeutils

import (
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/require"
)

func transform(t *testing.T, xmlstr string, withComments bool) string {
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromString(xmlstr))

	require.NoError(t, TransformExcC14n(doc.Root(), "", withComments))

	out := etree.NewDocument()
	out.SetRoot(doc.Root())
	out.WriteSettings = etree.WriteSettings{
		CanonicalAttrVal: true,
		CanonicalEndTags: true,
		CanonicalText:    true,
	}
	bytes, err := out.WriteToBytes()
	require.NoError(t, err)
	return string(bytes)
}

func TestTransformExcC14nDropsUnusedNamespace(t *testing.T) {
	in := `<Foo xmlns:bar="urn:bar" xmlns="urn:foo" ID="1"><Baz></Baz></Foo>`
	want := `<Foo xmlns="urn:foo" ID="1"><Baz></Baz></Foo>`
	require.Equal(t, want, transform(t, in, false))
}

func TestTransformExcC14nKeepsVisiblyUsedNamespace(t *testing.T) {
	in := `<Foo xmlns:bar="urn:bar" xmlns="urn:foo"><bar:Baz></bar:Baz></Foo>`
	want := `<Foo xmlns="urn:foo"><bar:Baz xmlns:bar="urn:bar"></bar:Baz></Foo>`
	require.Equal(t, want, transform(t, in, false))
}

func TestTransformExcC14nStripsComments(t *testing.T) {
	in := `<Foo><!-- note -->Bar</Foo>`
	want := `<Foo>Bar</Foo>`
	require.Equal(t, want, transform(t, in, false))
}

func TestTransformExcC14nKeepsCommentsWhenRequested(t *testing.T) {
	in := `<Foo><!-- note -->Bar</Foo>`
	want := `<Foo><!-- note -->Bar</Foo>`
	require.Equal(t, want, transform(t, in, true))
}

func TestTransformExcC14nSortsAttributes(t *testing.T) {
	in := `<Foo z="1" a="2" xmlns:b="urn:b" xmlns="urn:foo"><b:Bar/></Foo>`
	want := `<Foo xmlns="urn:foo" a="2" z="1"><b:Bar xmlns:b="urn:b"></b:Bar></Foo>`
	require.Equal(t, want, transform(t, in, false))
}
