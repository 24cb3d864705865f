package entity

import (
	"encoding/json"
	"maps"
	"reflect"
	"strings"

	"github.com/pkg/errors"
)

// Document is one structured, independently updatable profile sub-document.
type Document map[string]any

// DocumentField names a profile sub-document.
type DocumentField string

const (
	DocCompanyInfo          DocumentField = "company_info"
	DocRegisteredAddress    DocumentField = "registered_address"
	DocCommunicationAddress DocumentField = "communication_address"
	DocDirectorInfo         DocumentField = "director_info"
	DocFillerInfo           DocumentField = "filler_info"
)

// DocumentFields lists every sub-document in a stable order.
var DocumentFields = []DocumentField{
	DocCompanyInfo,
	DocRegisteredAddress,
	DocCommunicationAddress,
	DocDirectorInfo,
	DocFillerInfo,
}

// FileField names a stored file reference on the profile.
type FileField string

const (
	FileVisitingCard     FileField = "visiting_card"
	FileDigitalSignature FileField = "digital_signature"
	FileProfileImage     FileField = "profile_image"
)

// FileFields lists every file reference in a stable order.
var FileFields = []FileField{FileVisitingCard, FileDigitalSignature, FileProfileImage}

// ScalarField names a plain text profile column.
type ScalarField string

const (
	ScalarFirstName     ScalarField = "first_name"
	ScalarMiddleName    ScalarField = "middle_name"
	ScalarLastName      ScalarField = "last_name"
	ScalarDesignation   ScalarField = "designation"
	ScalarContactNumber ScalarField = "contact_number"
)

// Profile groups the optional details completed after verification.
type Profile struct {
	FirstName   string
	MiddleName  string
	LastName    string
	Designation string

	CompanyInfo          Document
	RegisteredAddress    Document
	CommunicationAddress Document
	DirectorInfo         Document
	FillerInfo           Document

	VisitingCard     string
	DigitalSignature string
	ProfileImage     string
}

// Complete reports whether the minimum profile for marketplace use is present.
func (p *Profile) Complete() bool {
	return p.FirstName != "" && p.LastName != "" && len(p.CompanyInfo) > 0
}

// Document returns the stored sub-document for a field.
func (p *Profile) Document(field DocumentField) Document {
	switch field {
	case DocCompanyInfo:
		return p.CompanyInfo
	case DocRegisteredAddress:
		return p.RegisteredAddress
	case DocCommunicationAddress:
		return p.CommunicationAddress
	case DocDirectorInfo:
		return p.DirectorInfo
	case DocFillerInfo:
		return p.FillerInfo
	default:
		return nil
	}
}

// SetDocument replaces the stored sub-document for a field.
func (p *Profile) SetDocument(field DocumentField, doc Document) {
	switch field {
	case DocCompanyInfo:
		p.CompanyInfo = doc
	case DocRegisteredAddress:
		p.RegisteredAddress = doc
	case DocCommunicationAddress:
		p.CommunicationAddress = doc
	case DocDirectorInfo:
		p.DirectorInfo = doc
	case DocFillerInfo:
		p.FillerInfo = doc
	}
}

// FileRef returns the stored reference for a file field.
func (p *Profile) FileRef(field FileField) string {
	switch field {
	case FileVisitingCard:
		return p.VisitingCard
	case FileDigitalSignature:
		return p.DigitalSignature
	case FileProfileImage:
		return p.ProfileImage
	default:
		return ""
	}
}

// SetFileRef replaces the stored reference for a file field.
func (p *Profile) SetFileRef(field FileField, ref string) {
	switch field {
	case FileVisitingCard:
		p.VisitingCard = ref
	case FileDigitalSignature:
		p.DigitalSignature = ref
	case FileProfileImage:
		p.ProfileImage = ref
	}
}

// IsEmptyValue is the presence test used by merge-on-presence: nil, blank
// strings, and empty objects or arrays do not count as present.
func IsEmptyValue(v any) bool {
	if v == nil {
		return true
	}

	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val) == ""
	case map[string]any:
		return len(val) == 0
	case Document:
		return len(val) == 0
	case []any:
		return len(val) == 0
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}

// Present returns only the keys of d whose values are non-empty.
func (d Document) Present() Document {
	out := make(Document, len(d))
	for k, v := range d {
		if IsEmptyValue(v) {
			continue
		}
		out[k] = v
	}

	return out
}

// Merge overlays the present keys of patch onto a copy of d. Keys absent or
// empty in patch keep their stored value.
func (d Document) Merge(patch Document) Document {
	out := make(Document, len(d)+len(patch))
	maps.Copy(out, d)
	maps.Copy(out, patch.Present())

	return out
}

// ParseDocument normalizes the inbound representations of a sub-document
// (a decoded JSON object, or JSON text as sent in multipart forms) into a
// Document. A nil or blank input yields a nil Document.
func ParseDocument(raw any) (Document, error) {
	switch val := raw.(type) {
	case nil:
		return nil, nil
	case Document:
		return val, nil
	case map[string]any:
		return Document(val), nil
	case string:
		return parseDocumentBytes([]byte(val))
	case []byte:
		return parseDocumentBytes(val)
	case json.RawMessage:
		return parseDocumentBytes(val)
	default:
		return nil, errors.Errorf("unsupported document representation %T", raw)
	}
}

func parseDocumentBytes(b []byte) (Document, error) {
	trimmed := strings.TrimSpace(string(b))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}

	// Forms sometimes double-encode: "{\"a\":1}" arrives as a JSON string.
	if strings.HasPrefix(trimmed, `"`) {
		var inner string
		if err := json.Unmarshal([]byte(trimmed), &inner); err != nil {
			return nil, errors.Wrap(err, "decode document string")
		}

		return parseDocumentBytes([]byte(inner))
	}

	var doc Document
	if err := json.Unmarshal([]byte(trimmed), &doc); err != nil {
		return nil, errors.Wrap(err, "decode document object")
	}

	return doc, nil
}

// ProfilePatch is a partial profile update after boundary normalization.
type ProfilePatch struct {
	Scalars   map[ScalarField]string
	Documents map[DocumentField]Document
	FileRefs  map[FileField]string
}

// IsEmpty reports whether the patch would change nothing.
func (p ProfilePatch) IsEmpty() bool {
	for _, v := range p.Scalars {
		if !IsEmptyValue(v) {
			return false
		}
	}
	for _, d := range p.Documents {
		if len(d.Present()) > 0 {
			return false
		}
	}
	for _, v := range p.FileRefs {
		if !IsEmptyValue(v) {
			return false
		}
	}

	return true
}

// ResolveFileRef applies the file priority: uploaded > explicit non-empty
// reference > existing. A populated reference never regresses to empty.
func ResolveFileRef(uploaded, explicit, existing string) string {
	switch {
	case uploaded != "":
		return uploaded
	case strings.TrimSpace(explicit) != "":
		return explicit
	default:
		return existing
	}
}
