package main

import (
	"flag"
	"fmt"
	"os"

	"AkanHealth/internal/chat"
	"AkanHealth/internal/config"
)

func main() {
	defaults := config.Default()

	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to a TOML config file")

	cfg := defaults
	flag.StringVar(&cfg.BaseURL, "base-url", defaults.BaseURL, "Health assistant API base URL")
	flag.StringVar(&cfg.Language, "language", defaults.Language, "UI language (en|ak)")
	flag.StringVar(&cfg.Persona, "persona", defaults.Persona, "Avatar persona (ama|kwame)")
	flag.BoolVar(&cfg.SpeakReplies, "speak", defaults.SpeakReplies, "Speak assistant replies aloud")
	flag.StringVar(&cfg.TranscribeURL, "transcribe-url", defaults.TranscribeURL, "WebSocket URL of the streaming transcription service")
	flag.StringVar(&cfg.CredentialsPath, "credentials", defaults.CredentialsPath, "Path to the credentials database")
	flag.BoolVar(&cfg.Debug, "debug", defaults.Debug, "Enable debug logging")

	flag.Parse()

	if configPath != "" {
		fileCfg, err := config.LoadFile(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		// Flags set explicitly on the command line win over the file.
		merged := fileCfg
		flag.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "base-url":
				merged.BaseURL = cfg.BaseURL
			case "language":
				merged.Language = cfg.Language
			case "persona":
				merged.Persona = cfg.Persona
			case "speak":
				merged.SpeakReplies = cfg.SpeakReplies
			case "transcribe-url":
				merged.TranscribeURL = cfg.TranscribeURL
			case "credentials":
				merged.CredentialsPath = cfg.CredentialsPath
			case "debug":
				merged.Debug = cfg.Debug
			}
		})
		cfg = merged
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	app, err := chat.NewApp(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}

	if err := app.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
