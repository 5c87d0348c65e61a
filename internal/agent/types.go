package agent

import "context"

// Role tags an utterance with its speaker.
type Role string

const (
	RoleUser      Role = "User"
	RoleAssistant Role = "Aanya"
)

// Utterance is one committed conversation turn. Immutable once appended.
type Utterance struct {
	Role Role   `json:"role"`
	Text string `json:"content"`
}

// Generator streams a reply for a prompt as an ordered, finite sequence of
// text increments. The text channel closing marks end-of-stream; at most one
// error is delivered on the error channel.
type Generator interface {
	Stream(ctx context.Context, prompt string) (<-chan string, <-chan error)
}

// Synthesizer turns one text fragment into one or more audio fragments.
// Both channels are closed when the fragment is fully synthesized.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (<-chan []byte, <-chan error)
}

// Egress delivers events back to the client in enqueue order.
type Egress interface {
	Status(message string)
	ResponseText(text string)
	Audio(audio []byte)
	Error(message string)
}
