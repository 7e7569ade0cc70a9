package internal

import (
	"strings"
	"testing"
	"time"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	if err := NewDefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestSeedConfig_WatchNeedsPath(t *testing.T) {
	cfg := SeedConfig{Watch: true}
	if err := cfg.Validate(); err == nil {
		t.Fatal("watch without path should fail")
	}
	cfg.Path = "outline.yaml"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("watch with path should pass: %v", err)
	}
}

func TestClientConfig_BaseURL(t *testing.T) {
	cfg := ClientConfig{BaseURL: "not a url"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("invalid base url should fail")
	}

	cfg = ClientConfig{}
	if err := cfg.Validate(); err != nil || cfg.Remote() {
		t.Fatalf("empty base url should select local mode: %v", err)
	}

	cfg.BaseURL = "http://localhost:8080/api"
	if err := cfg.Validate(); err != nil || !cfg.Remote() {
		t.Fatalf("valid base url rejected: %v", err)
	}
}

func TestClientConfig_NegativeTimeout(t *testing.T) {
	cfg := ClientConfig{Timeout: -time.Second}
	if err := cfg.Validate(); err == nil {
		t.Fatal("negative timeout should fail")
	}
}
