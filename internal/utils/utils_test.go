package utils

import (
	"bytes"
	"testing"
	"time"
)

func TestGenerateReferralLink(t *testing.T) {
	link, err := GenerateReferralLink("energy_bot", 123456)
	if err != nil {
		t.Fatal(err)
	}
	if link != "https://t.me/energy_bot?start=ref_123456" {
		t.Errorf("link = %s", link)
	}
	if _, err := GenerateReferralLink("", 1); err == nil {
		t.Error("empty bot username accepted")
	}
	if _, err := GenerateReferralLink("energy_bot", 0); err == nil {
		t.Error("zero id accepted")
	}
}

func TestGenerateQRCode(t *testing.T) {
	png, err := GenerateQRCode("energy_bot", 42)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Error("not a PNG")
	}
}

func TestParseReferralPayload(t *testing.T) {
	tests := []struct {
		in   string
		id   int64
		isOK bool
	}{
		{"ref_42", 42, true},
		{" ref_7 ", 7, true},
		{"ref_", 0, false},
		{"ref_-1", 0, false},
		{"ref_abc", 0, false},
		{"instagram", 0, false},
	}
	for _, tt := range tests {
		id, ok := ParseReferralPayload(tt.in)
		if id != tt.id || ok != tt.isOK {
			t.Errorf("ParseReferralPayload(%q) = %d, %v", tt.in, id, ok)
		}
	}
}

func TestValidateEmail(t *testing.T) {
	for _, good := range []string{"anna@example.com", " ivan.petrov@mail.ru "} {
		if _, err := ValidateEmail(good); err != nil {
			t.Errorf("%q rejected: %v", good, err)
		}
	}
	for _, bad := range []string{"", "anna", "anna@localhost", "Anna <anna@example.com>", "@example.com"} {
		if _, err := ValidateEmail(bad); err == nil {
			t.Errorf("%q accepted", bad)
		}
	}
}

func TestValidateBirthday(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	want := time.Date(1996, 7, 12, 0, 0, 0, 0, time.UTC)
	for _, in := range []string{"12.07.1996", "1996-07-12", "12 июля 1996", "12 июл 1996"} {
		got, err := ValidateBirthday(in, now)
		if err != nil || !got.Equal(want) {
			t.Errorf("ValidateBirthday(%q) = %v, %v", in, got, err)
		}
	}
	for _, in := range []string{"", "31.02.1990", "01.01.2030", "01.01.1800", "вчера"} {
		if _, err := ValidateBirthday(in, now); err == nil {
			t.Errorf("%q accepted", in)
		}
	}
}

func TestFormatDateRu(t *testing.T) {
	if got := FormatDateRu(time.Date(1996, 7, 12, 0, 0, 0, 0, time.UTC)); got != "12 июля 1996" {
		t.Errorf("FormatDateRu = %q", got)
	}
}
