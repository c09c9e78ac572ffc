package discord

import (
	"errors"
	"sync"
)

var ErrInteractionCompleted = errors.New("interaction already completed")

type ResponseState int

const (
	ResponseUnanswered ResponseState = iota
	ResponseAcknowledged
	ResponseCompleted
)

func (s ResponseState) String() string {
	switch s {
	case ResponseUnanswered:
		return "unanswered"
	case ResponseAcknowledged:
		return "acknowledged"
	case ResponseCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// ResponderFuncs are the transport primitives behind a Responder.
type ResponderFuncs struct {
	// UpdateSource replaces the message that carried the component.
	UpdateSource func(msg Message) error
	// Defer acknowledges the interaction with a pending reply.
	Defer func() error
	// Reply sends a new reply to the interaction.
	Reply func(msg Message, ephemeral bool) error
	// EditReply edits the deferred reply.
	EditReply func(msg Message) error
	// FollowUp sends an extra message after the interaction was answered.
	FollowUp func(msg Message, ephemeral bool) error
}

// Responder answers one interaction exactly once. Every outward reply checks the
// state first: unanswered -> acknowledged -> completed.
type Responder struct {
	mu    sync.Mutex
	state ResponseState
	fns   ResponderFuncs
}

func NewResponder(fns ResponderFuncs) *Responder {
	return &Responder{fns: fns}
}

func (r *Responder) State() ResponseState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Update answers by editing the source message. After an acknowledgement it edits the
// deferred reply instead.
func (r *Responder) Update(msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.state {
	case ResponseUnanswered:
		r.state = ResponseCompleted
		return r.fns.UpdateSource(msg)
	case ResponseAcknowledged:
		r.state = ResponseCompleted
		return r.fns.EditReply(msg)
	default:
		return ErrInteractionCompleted
	}
}

func (r *Responder) Acknowledge() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != ResponseUnanswered {
		return nil
	}
	if err := r.fns.Defer(); err != nil {
		return err
	}
	r.state = ResponseAcknowledged
	return nil
}

// Progress edits the deferred reply without completing the interaction.
func (r *Responder) Progress(msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != ResponseAcknowledged {
		return nil
	}
	return r.fns.EditReply(msg)
}

func (r *Responder) Complete(msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.state {
	case ResponseUnanswered:
		r.state = ResponseCompleted
		return r.fns.Reply(msg, false)
	case ResponseAcknowledged:
		r.state = ResponseCompleted
		return r.fns.EditReply(msg)
	default:
		return ErrInteractionCompleted
	}
}

// Notice sends an ephemeral message. It follows up when the interaction was already
// acknowledged so a pending reply never blocks the notice.
func (r *Responder) Notice(content string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg := Message{Content: content}
	switch r.state {
	case ResponseUnanswered:
		r.state = ResponseCompleted
		return r.fns.Reply(msg, true)
	case ResponseAcknowledged:
		r.state = ResponseCompleted
		return r.fns.FollowUp(msg, true)
	default:
		return ErrInteractionCompleted
	}
}
