// Package transport defines the provider-neutral contract for a live
// bidirectional media session with a streaming AI endpoint.
//
// A [Session] accepts encoded media chunks on the uplink and delivers a single
// ordered stream of [Event] values on the downlink. The single event channel
// is deliberate: audio, transcription fragments, interruption notices and
// turn boundaries must be observed in arrival order, and separate channels
// would lose that ordering.
//
// Implementations are provided by adapter packages (e.g. transport/gemini).
package transport

import (
	"context"
	"fmt"

	"github.com/voxcall/voxcall/pkg/wire"
)

// Speaker tags which side of the conversation a transcription fragment
// belongs to.
type Speaker string

const (
	// SpeakerUser marks recognized user speech.
	SpeakerUser Speaker = "user"

	// SpeakerBot marks the text rendering of model speech.
	SpeakerBot Speaker = "bot"
)

// Event is one downlink occurrence. Exactly one of the concrete types below
// is delivered per channel receive:
//
//   - [AudioEvent]
//   - [TranscriptEvent]
//   - [TurnCompleteEvent]
//   - [InterruptedEvent]
type Event interface {
	// isEvent restricts the set of event implementations to this package.
	isEvent()
}

// AudioEvent carries one decoded chunk of model speech: s16le mono PCM at
// [wire.OutputSampleRate].
type AudioEvent struct {
	// PCM is the raw audio payload, already base64-decoded.
	PCM []byte
}

// TranscriptEvent carries one transcription fragment. Fragments are partial;
// accumulation into turns happens downstream.
type TranscriptEvent struct {
	// Speaker is the side the fragment belongs to.
	Speaker Speaker

	// Text is the fragment, possibly a single word or less.
	Text string
}

// TurnCompleteEvent signals that the model finished its current response
// turn. Accumulated transcription up to this point forms one complete
// exchange.
type TurnCompleteEvent struct{}

// InterruptedEvent signals that the model detected the user speaking over its
// response and aborted generation. All locally buffered model audio is stale
// from this point on.
type InterruptedEvent struct{}

func (AudioEvent) isEvent()        {}
func (TranscriptEvent) isEvent()   {}
func (TurnCompleteEvent) isEvent() {}
func (InterruptedEvent) isEvent()  {}

// SessionConfig carries the per-session parameters passed to [Dialer.Dial].
type SessionConfig struct {
	// Voice selects the prebuilt voice the endpoint synthesises with. Empty
	// uses the endpoint default.
	Voice string

	// Instructions is the system prompt for the session. Empty omits it.
	Instructions string
}

// Session is one live connection to the streaming endpoint.
//
// Implementations must be safe for concurrent use.
type Session interface {
	// SendMedia transmits one encoded chunk (audio frame or video still) on
	// the uplink. Returns an error once the session is closed.
	SendMedia(chunk wire.MediaChunk) error

	// Events returns the ordered downlink event stream. The channel is
	// closed when the session ends, whether by Close, remote closure or
	// failure; consult Err afterwards to distinguish the cases.
	Events() <-chan Event

	// Err returns the error that terminated the session, or nil after a
	// clean local Close or an orderly remote closure.
	Err() error

	// Close terminates the session and releases the connection. Idempotent.
	Close() error
}

// Dialer establishes sessions. The concrete endpoint, credentials and model
// are carried by the implementation; per-call parameters travel in
// [SessionConfig].
type Dialer interface {
	Dial(ctx context.Context, cfg SessionConfig) (Session, error)
}

// Error is the typed transport failure. It wraps connection-level and
// protocol-level failures from the remote endpoint.
type Error struct {
	// Op names the failing operation (e.g. "dial", "send", "receive").
	Op string

	// Err is the underlying failure.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying failure.
func (e *Error) Unwrap() error { return e.Err }
