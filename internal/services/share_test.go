package services

import (
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/amrheing/mytools-gps-suite/internal/config"
)

func TestSignAndValidate(t *testing.T) {
	expiresAt := time.Now().Add(time.Hour).Unix()
	signed := SignURL("/shared/run_extracted", expiresAt, "secret")

	parsed, err := url.Parse(signed)
	if err != nil {
		t.Fatalf("parse signed url: %v", err)
	}
	sig := parsed.Query().Get("sig")
	if sig == "" {
		t.Fatal("signed url missing signature")
	}

	if !ValidateSignature("/shared/run_extracted", expiresAt, sig, "secret") {
		t.Fatal("valid signature rejected")
	}
	if ValidateSignature("/shared/run_extracted", expiresAt, sig, "other-secret") {
		t.Fatal("signature accepted under wrong secret")
	}
	if ValidateSignature("/shared/other_dir", expiresAt, sig, "secret") {
		t.Fatal("signature accepted for a different path")
	}
	if ValidateSignature("/shared/run_extracted", expiresAt+1, sig, "secret") {
		t.Fatal("signature accepted for a different expiry")
	}
}

func TestShareServiceGenerate(t *testing.T) {
	svc := NewShareService(config.Config{
		BaseURL:     "https://gpx.example.com",
		ShareSecret: "secret",
		ShareTTL:    time.Hour,
	})

	link, expiresAt, err := svc.Generate("run_extracted")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !strings.HasPrefix(link, "https://gpx.example.com/shared/run_extracted?") {
		t.Fatalf("unexpected link %q", link)
	}
	if remaining := time.Until(expiresAt); remaining < 59*time.Minute || remaining > time.Hour {
		t.Fatalf("unexpected expiry window %s", remaining)
	}

	parsed, err := url.Parse(link)
	if err != nil {
		t.Fatalf("parse link: %v", err)
	}
	exp, err := strconv.ParseInt(parsed.Query().Get("exp"), 10, 64)
	if err != nil {
		t.Fatalf("parse exp: %v", err)
	}
	if !svc.Validate(parsed.Path, exp, parsed.Query().Get("sig")) {
		t.Fatal("generated link does not validate")
	}
}
