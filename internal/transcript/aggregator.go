// Package transcript accumulates streamed transcription fragments into an
// ordered conversation log.
//
// Fragments arrive word-by-word from the transport for both sides of the
// call. The [Aggregator] keeps one in-progress accumulator per speaker and
// converts both into committed entries at each turn boundary, so the log
// only ever contains whole exchanges.
package transcript

import (
	"crypto/rand"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Speaker identifies which side of the call an entry belongs to.
type Speaker string

const (
	// SpeakerUser is the local human participant.
	SpeakerUser Speaker = "user"

	// SpeakerBot is the remote AI participant.
	SpeakerBot Speaker = "bot"
)

// Entry is one committed, immutable transcript entry.
type Entry struct {
	// ID is a ULID, unique and strictly increasing across the aggregator's
	// lifetime. Sorting entries by ID reproduces commit order.
	ID string

	// Speaker is the side that produced the text.
	Speaker Speaker

	// Text is the full accumulated text of the turn.
	Text string

	// Timestamp is when the entry was committed.
	Timestamp time.Time
}

// Live is a snapshot of the in-progress accumulators — the text spoken so far
// in the current turn, per speaker.
type Live struct {
	User string
	Bot  string
}

// Option is a functional option for configuring an Aggregator.
type Option func(*Aggregator)

// WithOnLive registers a callback invoked after every fragment with the
// updated in-progress snapshot. Used to render partial text as it streams in.
func WithOnLive(fn func(Live)) Option {
	return func(a *Aggregator) { a.onLive = fn }
}

// WithOnCommit registers a callback invoked at each turn boundary with the
// entries committed by that turn, in commit order.
func WithOnCommit(fn func([]Entry)) Option {
	return func(a *Aggregator) { a.onCommit = fn }
}

// Aggregator folds transcription fragments into committed conversation turns.
//
// Aggregator is safe for concurrent use. Callbacks are invoked without the
// internal lock held, in the order the triggering calls were processed.
type Aggregator struct {
	mu      sync.Mutex
	user    []byte
	bot     []byte
	entries []Entry
	entropy io.Reader

	onLive   func(Live)
	onCommit func([]Entry)
}

// New creates an empty Aggregator.
func New(opts ...Option) *Aggregator {
	a := &Aggregator{
		// Monotonic entropy keeps IDs strictly increasing even when several
		// commits land in the same millisecond.
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// AddUser appends a recognized user speech fragment to the in-progress turn.
func (a *Aggregator) AddUser(text string) {
	a.add(SpeakerUser, text)
}

// AddBot appends a model speech fragment to the in-progress turn.
func (a *Aggregator) AddBot(text string) {
	a.add(SpeakerBot, text)
}

func (a *Aggregator) add(sp Speaker, text string) {
	if text == "" {
		return
	}

	a.mu.Lock()
	switch sp {
	case SpeakerUser:
		a.user = append(a.user, text...)
	case SpeakerBot:
		a.bot = append(a.bot, text...)
	}
	live := Live{User: string(a.user), Bot: string(a.bot)}
	fn := a.onLive
	a.mu.Unlock()

	if fn != nil {
		fn(live)
	}
}

// CommitTurn converts the in-progress accumulators into committed entries and
// clears them, atomically: no snapshot ever shows one accumulator committed
// and the other still pending. The user entry is committed before the bot
// entry. Entry text is trimmed of surrounding whitespace; speakers whose
// accumulator is empty after trimming produce no entry, and a fully empty
// turn commits nothing.
func (a *Aggregator) CommitTurn() {
	a.mu.Lock()
	hadText := len(a.user) > 0 || len(a.bot) > 0
	var committed []Entry
	if text := strings.TrimSpace(string(a.user)); text != "" {
		committed = append(committed, a.newEntryLocked(SpeakerUser, text))
	}
	if text := strings.TrimSpace(string(a.bot)); text != "" {
		committed = append(committed, a.newEntryLocked(SpeakerBot, text))
	}
	a.user = nil
	a.bot = nil
	a.entries = append(a.entries, committed...)
	onCommit := a.onCommit
	onLive := a.onLive
	a.mu.Unlock()

	if len(committed) > 0 && onCommit != nil {
		onCommit(committed)
	}
	if hadText && onLive != nil {
		onLive(Live{})
	}
}

func (a *Aggregator) newEntryLocked(sp Speaker, text string) Entry {
	now := time.Now()
	return Entry{
		ID:        ulid.MustNew(ulid.Timestamp(now), a.entropy).String(),
		Speaker:   sp,
		Text:      text,
		Timestamp: now,
	}
}

// Live returns the current in-progress snapshot.
func (a *Aggregator) Live() Live {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Live{User: string(a.user), Bot: string(a.bot)}
}

// Entries returns a copy of all committed entries in commit order.
func (a *Aggregator) Entries() []Entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Entry, len(a.entries))
	copy(out, a.entries)
	return out
}
