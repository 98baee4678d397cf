package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "akanhealth.toml")
	content := `
base_url = "https://health.example.com"
language = "ak"
persona = "kwame"
speak_replies = true
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.BaseURL != "https://health.example.com" {
		t.Fatalf("BaseURL = %q", cfg.BaseURL)
	}
	if cfg.Language != LanguageAkan {
		t.Fatalf("Language = %q, want ak", cfg.Language)
	}
	if cfg.Persona != PersonaKwame {
		t.Fatalf("Persona = %q, want kwame", cfg.Persona)
	}
	if !cfg.SpeakReplies {
		t.Fatalf("SpeakReplies = false")
	}
	// Unset fields keep their defaults.
	if cfg.CredentialsPath != Default().CredentialsPath {
		t.Fatalf("CredentialsPath = %q, want default", cfg.CredentialsPath)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"akan", func(c *Config) { c.Language = LanguageAkan }, false},
		{"empty base url", func(c *Config) { c.BaseURL = "" }, true},
		{"unknown language", func(c *Config) { c.Language = "fr" }, true},
		{"unknown persona", func(c *Config) { c.Persona = "nobody" }, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr && err == nil {
				t.Fatalf("Validate() = nil, want error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("Validate() = %v, want nil", err)
			}
		})
	}
}
