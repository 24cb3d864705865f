package entity

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentMerge_OverrideOnPresence(t *testing.T) {
	stored := Document{"name": "Acme", "gst": "27AAA", "city": "Pune"}
	patch := Document{"name": "Acme Logistics", "gst": "", "city": nil, "pin": "411001"}

	merged := stored.Merge(patch)

	assert.Equal(t, Document{
		"name": "Acme Logistics",
		"gst":  "27AAA",
		"city": "Pune",
		"pin":  "411001",
	}, merged)
	// The stored document is not mutated.
	assert.Equal(t, "Acme", stored["name"])
}

func TestDocumentMerge_DisjointPatchesCommute(t *testing.T) {
	a := Document{"name": "Acme"}
	b := Document{"pan": "ABCDE1234F"}

	ab := Document{}.Merge(a).Merge(b)
	ba := Document{}.Merge(b).Merge(a)

	assert.Equal(t, ab, ba)
	assert.Equal(t, Document{"name": "Acme", "pan": "ABCDE1234F"}, ab)
}

func TestDocumentMerge_EmptyObjectsAndArraysAreAbsent(t *testing.T) {
	stored := Document{"tags": []any{"cold-chain"}, "meta": map[string]any{"k": "v"}}
	merged := stored.Merge(Document{"tags": []any{}, "meta": map[string]any{}})

	assert.Equal(t, stored, merged)
}

func TestParseDocument_NormalizesRepresentations(t *testing.T) {
	want := Document{"line1": "12 MG Road", "pin": "560001"}

	tests := []struct {
		name string
		raw  any
	}{
		{name: "object", raw: map[string]any{"line1": "12 MG Road", "pin": "560001"}},
		{name: "json text", raw: `{"line1":"12 MG Road","pin":"560001"}`},
		{name: "double encoded", raw: `"{\"line1\":\"12 MG Road\",\"pin\":\"560001\"}"`},
		{name: "raw message", raw: json.RawMessage(`{"line1":"12 MG Road","pin":"560001"}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDocument(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestParseDocument_BlankAndInvalid(t *testing.T) {
	doc, err := ParseDocument("   ")
	require.NoError(t, err)
	assert.Nil(t, doc)

	doc, err = ParseDocument(nil)
	require.NoError(t, err)
	assert.Nil(t, doc)

	_, err = ParseDocument("{not json")
	assert.Error(t, err)

	_, err = ParseDocument(42)
	assert.Error(t, err)
}

func TestResolveFileRef_Priority(t *testing.T) {
	assert.Equal(t, "uploads/new.pdf", ResolveFileRef("uploads/new.pdf", "given.pdf", "old.pdf"))
	assert.Equal(t, "given.pdf", ResolveFileRef("", "given.pdf", "old.pdf"))
	assert.Equal(t, "old.pdf", ResolveFileRef("", "  ", "old.pdf"))
	assert.Equal(t, "", ResolveFileRef("", "", ""))
}

func TestProfilePatch_IsEmpty(t *testing.T) {
	assert.True(t, ProfilePatch{}.IsEmpty())
	assert.True(t, ProfilePatch{
		Scalars:   map[ScalarField]string{ScalarFirstName: " "},
		Documents: map[DocumentField]Document{DocCompanyInfo: {"a": ""}},
	}.IsEmpty())
	assert.False(t, ProfilePatch{
		FileRefs: map[FileField]string{FileProfileImage: "img.png"},
	}.IsEmpty())
}
