// Package turn decides when a spoken utterance is complete.
package turn

import (
	"log"
	"strings"

	"github.com/LalitKJ/Aanya-Voice-Bot/internal/transcript"
)

// State of the detector between turns.
type State int

const (
	Idle State = iota
	Accumulating
)

// Detector consumes transcript events on the connection's own goroutine and
// emits each completed utterance exactly once. A final event that still needs
// reformatting triggers one reformat request per turn; the first usable final
// after that wins.
type Detector struct {
	onInterim       func(text string)
	onTurn          func(text string)
	requestReformat func() error

	state             State
	interim           string
	reformatRequested bool
	pendingFinal      string
	// set when a turn was emitted early because the reformat request
	// failed; the provider's formatted re-send must then be swallowed.
	swallowNextFinal bool
}

// New creates a detector. onTurn is required; onInterim and requestReformat
// may be nil (interim updates unobserved, reformatting never requested).
func New(onInterim, onTurn func(string), requestReformat func() error) *Detector {
	return &Detector{onInterim: onInterim, onTurn: onTurn, requestReformat: requestReformat}
}

// State returns the current detector state.
func (d *Detector) State() State { return d.state }

// Interim returns the live in-progress transcript text.
func (d *Detector) Interim() string { return d.interim }

// Handle processes one transcript event.
func (d *Detector) Handle(ev transcript.Event) {
	if ev.Err != nil {
		return
	}

	if !ev.EndOfTurn {
		d.state = Accumulating
		d.interim = ev.Text
		if d.onInterim != nil && ev.Text != "" {
			d.onInterim(ev.Text)
		}
		return
	}

	if d.swallowNextFinal {
		d.swallowNextFinal = false
		return
	}

	text := strings.TrimSpace(ev.Text)

	if ev.NeedsReformat() && !d.reformatRequested && d.requestReformat != nil {
		d.reformatRequested = true
		d.pendingFinal = text
		if err := d.requestReformat(); err != nil {
			log.Printf("turn: reformat request failed, using unformatted text: %v", err)
			d.swallowNextFinal = true
			d.emit(text)
			return
		}
		d.state = Accumulating
		return
	}

	// First usable final: the reformatted text when it arrived, otherwise
	// whatever the provider settled on.
	if text == "" {
		text = d.pendingFinal
	}
	d.emit(text)
}

func (d *Detector) emit(text string) {
	d.state = Idle
	d.interim = ""
	d.reformatRequested = false
	d.pendingFinal = ""
	if text == "" {
		return
	}
	if d.onTurn != nil {
		d.onTurn(text)
	}
}
