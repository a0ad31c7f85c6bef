package entity

import "testing"

func TestNormalizeEmail(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"alice@example.com", "ALICE@EXAMPLE.COM"},
		{"Alice@Example.COM", "ALICE@EXAMPLE.COM"},
		{"  b@x.com  ", "B@X.COM"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := NormalizeEmail(tc.in); got != tc.want {
			t.Errorf("NormalizeEmail(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestApprovalStatus(t *testing.T) {
	for _, s := range []ApprovalStatus{ApprovalStatusSubmitted, ApprovalStatusApproved, ApprovalStatusRejected} {
		if !s.Valid() {
			t.Errorf("Expected %s to be valid", s)
		}
	}
	if ApprovalStatus("pending").Valid() {
		t.Error("Expected pending to be invalid")
	}
	if ApprovalStatusSubmitted.Terminal() {
		t.Error("Expected submitted to be non-terminal")
	}
	if !ApprovalStatusApproved.Terminal() || !ApprovalStatusRejected.Terminal() {
		t.Error("Expected approved and rejected to be terminal")
	}
}
