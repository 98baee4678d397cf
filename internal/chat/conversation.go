package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"AkanHealth/internal/api"
	"AkanHealth/internal/cache"
	"AkanHealth/internal/config"
	"AkanHealth/internal/session"
)

// Message senders.
const (
	SenderUser      = "user"
	SenderAssistant = "assistant"
)

// Message is one entry in the conversation transcript. The sequence is
// append-only and insertion order equals completion order.
type Message struct {
	ID         string
	Sender     string
	Content    string
	Language   string
	Timestamp  time.Time
	Confidence *float64 // nil when the backend did not report one
	ModelUsed  string   // empty when the backend did not report one
}

// Gateway is the slice of the API client the conversation needs.
type Gateway interface {
	Ask(ctx context.Context, question, language string) (*api.HealthAnswer, *api.Error)
}

// Speaker is the slice of the playback controller the conversation needs.
type Speaker interface {
	Speak(text string)
	Supported() bool
}

// Fixed assistant-voice failure messages per UI language. Raw errors never
// reach the transcript.
var apologies = map[string]string{
	config.LanguageEnglish: "Sorry, I couldn't process your question right now. Please try again in a moment.",
	config.LanguageAkan:    "Kafra, mantumi anyɛ w'asɛmmisa no seesei. Yɛsrɛ wo, sɔ hwɛ bio.",
}

// Conversation orchestrates the send/receive cycle: it accepts typed or
// dictated input, submits it through the gateway, appends messages in
// completion order, and speaks assistant replies when enabled. Sends are
// serialized by the inFlight guard, so message order is always send order and
// requests never need cancellation or response matching.
type Conversation struct {
	mu           sync.Mutex
	gateway      Gateway
	sessions     *session.Manager
	speaker      Speaker
	messages     []Message
	answers      sync.Map // cache key -> cache.CachedAnswer
	inFlight     bool
	input        string
	language     string
	speakReplies bool
	seq          int

	onSessionExpired func()
	logger           *slog.Logger
}

// NewConversation creates a conversation over the given collaborators.
func NewConversation(gateway Gateway, sessions *session.Manager, speaker Speaker, language string, logger *slog.Logger) *Conversation {
	if logger == nil {
		logger = slog.Default()
	}
	return &Conversation{
		gateway:  gateway,
		sessions: sessions,
		speaker:  speaker,
		language: language,
		logger:   logger,
	}
}

// SetOnSessionExpired registers the routing hook fired when a 401 tears the
// session down.
func (c *Conversation) SetOnSessionExpired(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onSessionExpired = fn
}

// SetInput replaces the pending input text. Live dictation transcripts land
// here; sending clears it synchronously so a stale transcript can never
// overwrite input that was already sent.
func (c *Conversation) SetInput(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.input = text
}

// Input returns the pending input text.
func (c *Conversation) Input() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.input
}

// Language returns the current UI language.
func (c *Conversation) Language() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.language
}

// SetLanguage switches the UI language (en|ak).
func (c *Conversation) SetLanguage(language string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.language = language
}

// SpeakReplies reports whether assistant replies are spoken aloud.
func (c *Conversation) SpeakReplies() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speakReplies
}

// SetSpeakReplies toggles spoken replies. Turning it on speaks the most
// recent assistant message so the toggle is never silent.
func (c *Conversation) SetSpeakReplies(on bool) {
	c.mu.Lock()
	c.speakReplies = on
	var catchUp string
	if on {
		for i := len(c.messages) - 1; i >= 0; i-- {
			if c.messages[i].Sender == SenderAssistant {
				catchUp = c.messages[i].Content
				break
			}
		}
	}
	speaker := c.speaker
	c.mu.Unlock()

	if catchUp != "" && speaker != nil && speaker.Supported() {
		speaker.Speak(catchUp)
	}
}

// InFlight reports whether a health query is awaiting its response.
func (c *Conversation) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

// Messages returns a copy of the transcript.
func (c *Conversation) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Send submits the pending input as a health question. It is a no-op when the
// trimmed input is empty or another send is in flight. The user message is
// appended optimistically and the input cleared before the network call; the
// assistant message (answer or apology) is appended when the call settles.
// Returns the assistant message and whether a send happened.
func (c *Conversation) Send(ctx context.Context) (*Message, bool) {
	c.mu.Lock()
	text := strings.TrimSpace(c.input)
	if text == "" || c.inFlight {
		c.mu.Unlock()
		return nil, false
	}
	c.input = ""
	c.inFlight = true
	language := c.language
	c.appendLocked(SenderUser, text, language, nil, "")
	c.mu.Unlock()

	reply := c.resolve(ctx, text, language)

	c.mu.Lock()
	c.inFlight = false
	msg := c.appendLocked(SenderAssistant, reply.Response, reply.Language, reply.Confidence, reply.ModelUsed)
	speak := c.speakReplies
	speaker := c.speaker
	c.mu.Unlock()

	if speak && speaker != nil && speaker.Supported() {
		speaker.Speak(msg.Content)
	}
	return &msg, true
}

// resolve produces the assistant's answer: from the cache, from the gateway,
// or as an apology when the gateway fails.
func (c *Conversation) resolve(ctx context.Context, question, language string) api.HealthAnswer {
	key := cache.Key(question, language)
	if val, ok := c.answers.Load(key); ok {
		cached := val.(cache.CachedAnswer)
		c.logger.Info("answer cache hit", "key", key[:16])
		return api.HealthAnswer{
			Response:   cached.Response,
			Language:   language,
			Confidence: cached.Confidence,
			ModelUsed:  cached.ModelUsed,
		}
	}

	answer, apiErr := c.gateway.Ask(ctx, question, language)
	if apiErr != nil {
		c.logger.Warn("health question failed", "kind", apiErr.Kind, "status", apiErr.HTTPStatus)
		if apiErr.Unauthorized() {
			c.ExpireSession()
		}
		return api.HealthAnswer{Response: apologies[language], Language: language}
	}

	c.answers.Store(key, cache.CachedAnswer{
		Response:   answer.Response,
		Confidence: answer.Confidence,
		ModelUsed:  answer.ModelUsed,
		Timestamp:  time.Now(),
	})
	if answer.Language == "" {
		answer.Language = language
	}
	return *answer
}

// ExpireSession tears the session down exactly once per expiry: the token is
// cleared and the routing hook fires only when a token was still present.
// Every collaborator that sees a 401 from an authenticated call routes
// through here.
func (c *Conversation) ExpireSession() {
	if !c.sessions.Authenticated() {
		return
	}
	c.sessions.SetToken("")
	c.sessions.SetUser(nil)
	c.logger.Info("session expired, cleared stored token")

	c.mu.Lock()
	notify := c.onSessionExpired
	c.mu.Unlock()
	if notify != nil {
		notify()
	}
}

func (c *Conversation) appendLocked(sender, content, language string, confidence *float64, modelUsed string) Message {
	c.seq++
	msg := Message{
		ID:         fmt.Sprintf("msg_%d", c.seq),
		Sender:     sender,
		Content:    content,
		Language:   language,
		Timestamp:  time.Now(),
		Confidence: confidence,
		ModelUsed:  modelUsed,
	}
	c.messages = append(c.messages, msg)
	return msg
}
