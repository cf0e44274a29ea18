// Package llm defines the Responder interface for reply-generation backends.
//
// A responder wraps a chat-completion API (OpenAI, Anthropic, a local Ollama
// instance, ...) behind a single one-shot call: recognized user text plus the
// recent exchange history in, the coach's reply text out. All prompt assembly
// happens inside the implementation so the session layer never touches
// SDK-specific message types.
//
// Implementors must be safe for concurrent use and must honour context
// cancellation: a cancelled Respond call returns promptly with ctx.Err() (or
// an error wrapping it).
package llm

import "context"

// DefaultSystemPrompt keeps replies short and speakable; synthesis reads the
// text verbatim. Backends use it when no override is configured.
const DefaultSystemPrompt = "あなたは日本語会話のコーチです。学習者と音声で会話しています。" +
	"返事はそのまま読み上げられるので、短く自然な話し言葉で答えてください。" +
	"記号や箇条書きは使わず、2〜3文にまとめてください。"

// Exchange is one completed user/coach turn pair. History slices are ordered
// oldest first.
type Exchange struct {
	// UserText is what the user said, as recognized.
	UserText string

	// CoachText is the reply that was spoken back.
	CoachText string
}

// Responder produces the coach's reply to a recognized utterance.
type Responder interface {
	// Respond generates a reply to userText given the preceding exchanges.
	// The reply is raw model output; callers that feed it to synthesis
	// should pass it through [TrimForSpeech] first.
	Respond(ctx context.Context, userText string, history []Exchange) (string, error)
}
