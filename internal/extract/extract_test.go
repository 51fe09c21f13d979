package extract

import (
	"errors"
	"testing"
)

func TestGoogleExtract(t *testing.T) {
	attrs := map[string]any{
		"sub":            "goog-123",
		"email":          "a.karimov@example.com",
		"email_verified": true,
		"name":           "Aziz Karimov",
		"given_name":     "Aziz",
		"family_name":    "Karimov",
		"picture":        "https://example.com/a.png",
	}

	id, err := ForProvider("google").Extract(attrs)
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if id.SubjectID != "goog-123" {
		t.Fatalf("expected subject goog-123, got %s", id.SubjectID)
	}
	if id.Username != "a.karimov" {
		t.Fatalf("expected username derived from email, got %s", id.Username)
	}
	if !id.EmailVerified {
		t.Fatalf("expected verified email")
	}
}

func TestGoogleExtractMissingSubject(t *testing.T) {
	_, err := ForProvider("google").Extract(map[string]any{"email": "a@example.com"})
	if !errors.Is(err, ErrMissingSubject) {
		t.Fatalf("expected ErrMissingSubject, got %v", err)
	}
}

func TestHemisEmployeeExtract(t *testing.T) {
	attrs := map[string]any{
		"id":                 float64(501),
		"employee_id_number": "EMP-501",
		"firstname":          "Dilnoza",
		"secondname":         "Rashidova",
		"thirdname":          "Bakhtiyorovna",
		"department":         map[string]any{"name": "Philology"},
		"birth_date":         "1990-04-12",
	}

	id, err := ForProvider("hemis").Extract(attrs)
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if id.SubjectID != "EMP-501" {
		t.Fatalf("expected employee number as subject, got %s", id.SubjectID)
	}
	if id.DirectoryID != "501" {
		t.Fatalf("expected directory id 501, got %s", id.DirectoryID)
	}
	if id.FullName != "Rashidova Dilnoza Bakhtiyorovna" {
		t.Fatalf("unexpected full name %q", id.FullName)
	}
	if id.Department != "Philology" {
		t.Fatalf("expected nested department name, got %s", id.Department)
	}
}

func TestStudentExtractFallsBackToNumericID(t *testing.T) {
	attrs := map[string]any{
		"id":         float64(30077),
		"first_name": "Jasur",
	}

	id, err := ForProvider("student").Extract(attrs)
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if id.SubjectID != "30077" {
		t.Fatalf("expected numeric id rendered without fraction, got %s", id.SubjectID)
	}
}

func TestOneIDExtractMarksGovernmentContactVerified(t *testing.T) {
	attrs := map[string]any{
		"pin":          "31234567890123",
		"user_id":      "akarimov",
		"mob_phone_no": "+998901234567",
		"first_name":   "Aziz",
		"sur_name":     "Karimov",
	}

	id, err := ForProvider("oneid").Extract(attrs)
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if id.SubjectID != "31234567890123" {
		t.Fatalf("expected pin as subject, got %s", id.SubjectID)
	}
	if !id.PhoneVerified {
		t.Fatalf("expected phone to be verified")
	}
	if id.EmailVerified {
		t.Fatalf("expected email unverified when absent")
	}
	if id.FullName != "Karimov Aziz" {
		t.Fatalf("unexpected full name %q", id.FullName)
	}
}

func TestGenericExtractorForUnknownProvider(t *testing.T) {
	attrs := map[string]any{
		"uid":      "x-9",
		"username": "xuser",
	}

	e := ForProvider("corporate-ldap")
	if e.Provider() != "corporate-ldap" {
		t.Fatalf("expected provider name preserved, got %s", e.Provider())
	}

	id, err := e.Extract(attrs)
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if id.SubjectID != "x-9" || id.Username != "xuser" {
		t.Fatalf("unexpected identity %+v", id)
	}
}

func TestLookupDotPath(t *testing.T) {
	attrs := map[string]any{
		"department": map[string]any{
			"parent": map[string]any{"name": "University"},
		},
	}

	v, ok := Lookup(attrs, "department.parent.name")
	if !ok || v != "University" {
		t.Fatalf("expected nested lookup to succeed, got %v (%v)", v, ok)
	}

	if _, ok := Lookup(attrs, "department.missing.name"); ok {
		t.Fatalf("expected lookup miss on absent segment")
	}
}

func TestAsString(t *testing.T) {
	if got := AsString(float64(42)); got != "42" {
		t.Fatalf("expected integral float to render as 42, got %s", got)
	}
	if got := AsString(4.5); got != "4.5" {
		t.Fatalf("expected 4.5, got %s", got)
	}
	if got := AsString(true); got != "true" {
		t.Fatalf("expected true, got %s", got)
	}
	if got := AsString(nil); got != "" {
		t.Fatalf("expected empty string for nil, got %q", got)
	}
}
