package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

const (
	LanguageEnglish = "en"
	LanguageAkan    = "ak"
)

// Avatar personas. Each persona maps to its own playback voice.
const (
	PersonaAma   = "ama"
	PersonaKwame = "kwame"
)

// Config holds application configuration
type Config struct {
	BaseURL         string `toml:"base_url"`         // Health assistant API base URL
	Language        string `toml:"language"`         // UI language (en|ak)
	Persona         string `toml:"persona"`          // Avatar persona (ama|kwame)
	SpeakReplies    bool   `toml:"speak_replies"`    // Speak assistant replies aloud
	TranscribeURL   string `toml:"transcribe_url"`   // WebSocket URL of the streaming transcription service (empty disables dictation)
	CredentialsPath string `toml:"credentials_path"` // SQLite file holding the saved access token
	Debug           bool   `toml:"debug"`
}

// Default returns the configuration defaults applied before flags or a config file.
func Default() Config {
	return Config{
		BaseURL:         "http://localhost:8000",
		Language:        LanguageEnglish,
		Persona:         PersonaAma,
		CredentialsPath: "akanhealth.db",
	}
}

// LoadFile reads a TOML config file over the defaults.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to load config file: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for values the client cannot work with.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}
	switch c.Language {
	case LanguageEnglish, LanguageAkan:
	default:
		return fmt.Errorf("unknown language: %s (want %s or %s)", c.Language, LanguageEnglish, LanguageAkan)
	}
	switch c.Persona {
	case PersonaAma, PersonaKwame:
	default:
		return fmt.Errorf("unknown persona: %s", c.Persona)
	}
	return nil
}
