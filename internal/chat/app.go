package chat

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"AkanHealth/internal/api"
	"AkanHealth/internal/config"
	"AkanHealth/internal/session"
	"AkanHealth/internal/speech"
	"AkanHealth/internal/telemetry"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// App wires the client runtime together and runs the interactive loop.
type App struct {
	config   config.Config
	db       *sql.DB
	logger   *slog.Logger
	tracer   trace.Tracer
	meter    metric.Meter
	cleanup  func()
	sessions *session.Manager
	client   *api.Client
	conv     *Conversation
	capture  *speech.CaptureController
	playback *speech.PlaybackController
}

// NewApp creates the application
func NewApp(cfg config.Config) (*App, error) {
	logger, err := telemetry.InitLogger(cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	ctx := context.Background()
	tracer, meter, cleanup, err := telemetry.InitTelemetry(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	app := &App{
		config:  cfg,
		logger:  logger,
		tracer:  tracer,
		meter:   meter,
		cleanup: cleanup,
	}

	// Token persistence is best-effort; without it the session lives in
	// memory only.
	var store session.TokenStore
	db, err := telemetry.InitCredentialsDB(cfg.CredentialsPath)
	if err != nil {
		logger.Warn("credentials store unavailable, session will not persist", "error", err)
	} else {
		app.db = db
		store = session.NewSQLiteStore(db)
	}

	app.sessions = session.NewManager(store, logger)
	app.client = api.NewClient(cfg.BaseURL, app.sessions, logger)

	var synth speech.Synthesizer
	if s, err := speech.NewCommandSynthesizer(logger); err != nil {
		logger.Info("speech playback unavailable", "error", err)
	} else {
		synth = s
	}
	app.playback = speech.NewPlaybackController(synth, speech.VoiceForPersona(cfg.Persona, cfg.Language), logger)

	app.conv = NewConversation(app.client, app.sessions, app.playback, cfg.Language, logger)
	app.conv.SetSpeakReplies(cfg.SpeakReplies)
	app.conv.SetOnSessionExpired(func() {
		fmt.Println("\nYour session has expired. Use /login to sign in again.")
	})

	var recognizer speech.Recognizer
	if cfg.TranscribeURL != "" {
		if source, err := speech.NewCommandAudioSource(); err != nil {
			logger.Info("speech capture unavailable", "error", err)
		} else {
			recognizer = speech.NewStreamRecognizer(cfg.TranscribeURL, source, logger)
		}
	}
	app.capture = speech.NewCaptureController(recognizer, cfg.Language, func(transcript string) {
		app.conv.SetInput(transcript)
	}, logger)

	return app, nil
}

// Close releases the app's resources.
func (a *App) Close() {
	a.capture.Stop()
	a.playback.CancelActive()
	if a.db != nil {
		a.db.Close()
	}
	if a.cleanup != nil {
		a.cleanup()
	}
}

// restoreSession confirms a persisted token against /auth/me before the
// session is treated as trusted.
func (a *App) restoreSession(ctx context.Context) {
	if !a.sessions.Authenticated() {
		return
	}
	user, apiErr := a.client.Me(ctx)
	if apiErr != nil {
		if apiErr.Unauthorized() {
			a.sessions.SetToken("")
			fmt.Println("Saved session has expired. Use /login to sign in again.")
		} else {
			a.logger.Warn("could not confirm saved session", "error", apiErr)
		}
		return
	}
	a.sessions.SetUser(user)
	fmt.Printf("Welcome back, %s\n", displayName(user))
}

// Run starts the interactive conversation loop.
func (a *App) Run() error {
	defer a.Close()

	ctx := context.Background()

	fmt.Println("=== AkanHealth Assistant ===")
	fmt.Printf("Server: %s  Language: %s  Persona: %s\n", a.config.BaseURL, a.conv.Language(), a.config.Persona)
	fmt.Println("Type your health question, or /help for commands.")
	fmt.Println()

	a.restoreSession(ctx)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("You: ")
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())

		if strings.HasPrefix(input, "/") {
			quit, err := a.handleCommand(ctx, input)
			if err != nil {
				fmt.Printf("Error: %v\n", err)
				a.logger.Error("command error", "command", input, "error", err)
			}
			if quit {
				break
			}
			continue
		}

		if input != "" {
			// Typed input replaces whatever dictation left behind.
			a.conv.SetInput(input)
		}
		a.sendPending(ctx)
	}

	fmt.Println("Goodbye!")
	return nil
}

// sendPending sends the pending input (typed or dictated) and prints the
// assistant's reply.
func (a *App) sendPending(ctx context.Context) {
	if a.conv.Input() == "" {
		return
	}
	ctx, span := a.tracer.Start(ctx, "conversation_turn")
	defer span.End()

	reply, sent := a.conv.Send(ctx)
	if !sent {
		return
	}
	fmt.Printf("Assistant: %s\n", reply.Content)
	if reply.Confidence != nil {
		fmt.Printf("  (confidence %.0f%%", *reply.Confidence*100)
		if reply.ModelUsed != "" {
			fmt.Printf(", %s", reply.ModelUsed)
		}
		fmt.Println(")")
	}
	fmt.Println()
}

// expireOnUnauthorized routes a 401 from an authenticated command through the
// same session teardown as a failed health question.
func (a *App) expireOnUnauthorized(apiErr *api.Error) {
	if apiErr.Unauthorized() {
		a.conv.ExpireSession()
	}
}

// handleCommand handles slash commands. Returns true when the app should quit.
func (a *App) handleCommand(ctx context.Context, cmd string) (bool, error) {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return false, nil
	}

	switch parts[0] {
	case "/quit", "/exit":
		return true, nil

	case "/login":
		if len(parts) < 3 {
			return false, fmt.Errorf("usage: /login <email> <password>")
		}
		resp, apiErr := a.client.Login(ctx, parts[1], parts[2])
		if apiErr != nil {
			return false, fmt.Errorf("login failed: %s", apiErr.Message)
		}
		a.sessions.SetToken(resp.AccessToken)
		a.sessions.SetUser(resp.User)
		fmt.Printf("Signed in as %s\n", displayName(resp.User))
		return false, nil

	case "/signup":
		if len(parts) < 3 {
			return false, fmt.Errorf("usage: /signup <email> <password> [full name...]")
		}
		req := api.SignupRequest{
			Email:             parts[1],
			Password:          parts[2],
			FullName:          strings.Join(parts[3:], " "),
			PreferredLanguage: a.conv.Language(),
		}
		resp, apiErr := a.client.Signup(ctx, req)
		if apiErr != nil {
			return false, fmt.Errorf("signup failed: %s", apiErr.Message)
		}
		a.sessions.SetToken(resp.AccessToken)
		a.sessions.SetUser(resp.User)
		fmt.Printf("Account created. Signed in as %s\n", displayName(resp.User))
		return false, nil

	case "/logout":
		a.sessions.SetToken("")
		fmt.Println("Signed out.")
		return false, nil

	case "/whoami":
		user := a.sessions.User()
		if user == nil {
			fmt.Println("Not signed in.")
			return false, nil
		}
		fmt.Printf("%s <%s>  language: %s\n", displayName(user), user.Email, user.PreferredLanguage)
		return false, nil

	case "/language":
		if len(parts) < 2 {
			return false, fmt.Errorf("usage: /language <en|ak>")
		}
		switch parts[1] {
		case config.LanguageEnglish, config.LanguageAkan:
			a.conv.SetLanguage(parts[1])
			a.playback.SetVoice(speech.VoiceForPersona(a.config.Persona, parts[1]))
			fmt.Printf("Language set to %s\n", parts[1])
		default:
			return false, fmt.Errorf("unknown language: %s", parts[1])
		}
		return false, nil

	case "/speak":
		if len(parts) < 2 {
			return false, fmt.Errorf("usage: /speak <on|off>")
		}
		switch parts[1] {
		case "on":
			if !a.playback.Supported() {
				fmt.Println("Speech playback is not available on this system.")
				return false, nil
			}
			a.conv.SetSpeakReplies(true)
			fmt.Println("Spoken replies on.")
		case "off":
			a.conv.SetSpeakReplies(false)
			a.playback.CancelActive()
			fmt.Println("Spoken replies off.")
		default:
			return false, fmt.Errorf("usage: /speak <on|off>")
		}
		return false, nil

	case "/listen":
		if len(parts) < 2 {
			return false, fmt.Errorf("usage: /listen <start|stop>")
		}
		switch parts[1] {
		case "start":
			if !a.capture.Available() {
				fmt.Println("Speech capture is not available:", a.capture.LastError())
				return false, nil
			}
			a.capture.Start()
			if a.capture.State() == speech.CaptureError {
				fmt.Println("Could not start listening:", a.capture.LastError())
				return false, nil
			}
			fmt.Println("Listening... say your question, then /listen stop.")
		case "stop":
			a.capture.Stop()
			transcript := strings.TrimSpace(a.capture.Transcript())
			if transcript == "" {
				fmt.Println("Heard nothing.")
				return false, nil
			}
			fmt.Printf("Heard: %s\n", transcript)
			a.conv.SetInput(transcript)
			a.sendPending(ctx)
		default:
			return false, fmt.Errorf("usage: /listen <start|stop>")
		}
		return false, nil

	case "/askfile":
		if len(parts) < 2 {
			return false, fmt.Errorf("usage: /askfile <path-to-audio-file>")
		}
		path := parts[1]
		f, err := os.Open(path)
		if err != nil {
			return false, fmt.Errorf("failed to open audio file: %w", err)
		}
		defer f.Close()
		answer, apiErr := a.client.AskAudio(ctx, f, filepath.Base(path), a.conv.Language())
		if apiErr != nil {
			a.expireOnUnauthorized(apiErr)
			return false, fmt.Errorf("audio question failed: %s", apiErr.Message)
		}
		fmt.Printf("Heard: %s\n", answer.Transcription)
		fmt.Printf("Assistant: %s\n\n", answer.Response)
		if a.conv.SpeakReplies() {
			a.playback.Speak(answer.Response)
		}
		return false, nil

	case "/history":
		page := 1
		if len(parts) > 1 {
			if n, err := strconv.Atoi(parts[1]); err == nil && n > 0 {
				page = n
			}
		}
		history, apiErr := a.client.History(ctx, page, 10)
		if apiErr != nil {
			a.expireOnUnauthorized(apiErr)
			return false, fmt.Errorf("failed to fetch history: %s", apiErr.Message)
		}
		if len(history.Queries) == 0 {
			fmt.Println("No past queries.")
			return false, nil
		}
		fmt.Printf("\nPast queries (page %d of %d):\n", history.Page, history.TotalPages)
		for i, item := range history.Queries {
			fmt.Printf("%d. [%s] %s\n   -> %s\n", i+1, item.CreatedAt, item.QueryText, item.ResponseText)
		}
		fmt.Println()
		return false, nil

	case "/profile":
		if len(parts) < 2 {
			return false, fmt.Errorf("usage: /profile name <full name...> | /profile language <en|ak>")
		}
		var update api.ProfileUpdate
		switch parts[1] {
		case "name":
			update.FullName = strings.Join(parts[2:], " ")
		case "language":
			if len(parts) < 3 {
				return false, fmt.Errorf("usage: /profile language <en|ak>")
			}
			update.PreferredLanguage = parts[2]
		default:
			return false, fmt.Errorf("unknown profile field: %s", parts[1])
		}
		user, apiErr := a.client.UpdateProfile(ctx, update)
		if apiErr != nil {
			a.expireOnUnauthorized(apiErr)
			return false, fmt.Errorf("failed to update profile: %s", apiErr.Message)
		}
		a.sessions.SetUser(user)
		fmt.Println("Profile updated.")
		return false, nil

	case "/analytics":
		analytics, apiErr := a.client.Analytics(ctx)
		if apiErr != nil {
			a.expireOnUnauthorized(apiErr)
			return false, fmt.Errorf("failed to fetch analytics: %s", apiErr.Message)
		}
		fmt.Printf("\nAverage processing time: %.3fs\n", analytics.AverageProcessingTime)
		if len(analytics.ModelUsage) > 0 {
			fmt.Println("Queries by model:")
			for model, count := range analytics.ModelUsage {
				fmt.Printf("  %s: %d\n", model, count)
			}
		}
		if len(analytics.DailyActivity) > 0 {
			fmt.Println("Daily activity:")
			for day, count := range analytics.DailyActivity {
				fmt.Printf("  %s: %d\n", day, count)
			}
		}
		fmt.Println()
		return false, nil

	case "/help":
		fmt.Println("Available commands:")
		fmt.Println("  /login <email> <password>    - Sign in")
		fmt.Println("  /signup <email> <password>   - Create an account")
		fmt.Println("  /logout                      - Sign out")
		fmt.Println("  /whoami                      - Show the signed-in user")
		fmt.Println("  /language <en|ak>            - Switch UI language")
		fmt.Println("  /speak <on|off>              - Speak assistant replies aloud")
		fmt.Println("  /listen <start|stop>         - Dictate a question")
		fmt.Println("  /askfile <path>              - Send a recorded audio question")
		fmt.Println("  /history [page]              - List past queries")
		fmt.Println("  /profile name|language ...   - Update your profile")
		fmt.Println("  /analytics                   - Show your usage statistics")
		fmt.Println("  /quit                        - Exit")
		return false, nil

	default:
		fmt.Printf("Unknown command: %s (try /help)\n", parts[0])
		return false, nil
	}
}

func displayName(user *session.UserProfile) string {
	if user == nil {
		return "unknown user"
	}
	if user.FullName != "" {
		return user.FullName
	}
	return user.Email
}
