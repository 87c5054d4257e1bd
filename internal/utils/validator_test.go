package utils

import "testing"

func TestValidateEmail(t *testing.T) {
	valid := []string{"a@x.com", "first.last+tag@sub.example.org"}
	for _, email := range valid {
		if !ValidateEmail(email) {
			t.Errorf("Expected %q to be valid", email)
		}
	}

	invalid := []string{"", "invalid-email", "@x.com", "a@", "a@x"}
	for _, email := range invalid {
		if ValidateEmail(email) {
			t.Errorf("Expected %q to be invalid", email)
		}
	}
}

func TestValidatePassword(t *testing.T) {
	if ValidatePassword("12345") {
		t.Error("Expected 5-character password to be invalid")
	}
	if !ValidatePassword("123456") {
		t.Error("Expected 6-character password to be valid")
	}
}

func TestSanitizeEmail(t *testing.T) {
	if got := SanitizeEmail("  User@Example.COM "); got != "user@example.com" {
		t.Errorf("Expected 'user@example.com', got %q", got)
	}
}
