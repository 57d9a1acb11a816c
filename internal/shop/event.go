// Package shop is the conversation core: it consumes normalized inbound
// events, drives the per-user purchase dialog and emits outbound
// messages. It never talks to the Telegram API directly; the transport
// adapter feeds it events and implements Outbox.
package shop

import "context"

// EventKind classifies an inbound event.
type EventKind int

const (
	EventStart  EventKind = iota // start command, optionally with a referral code
	EventMenu                    // menu command
	EventText                    // free text
	EventButton                  // inline button press
)

// Event is one normalized inbound event from the transport.
type Event struct {
	From     int64
	Username string
	Kind     EventKind
	Text     string     // free text, for EventText
	Payload  string     // button payload, for EventButton
	RefCode  string     // deep-link argument, for EventStart
	Message  MessageRef // message that carried the pressed button
}

// MessageRef identifies an already-sent message so it can be edited.
type MessageRef struct {
	Chat int64
	ID   int
}

// Button is one labeled affordance: either a callback payload or an
// external URL, never both.
type Button struct {
	Label string
	Data  string
	URL   string
}

// Message is one outbound message. Buttons render as an inline keyboard,
// Menu as a persistent reply keyboard (one label per row).
type Message struct {
	To      int64
	Text    string
	Buttons [][]Button
	Menu    []string
}

// Outbox delivers outbound messages. Implemented by the transport
// adapter; delivery failures are the caller's to log, never retried here.
type Outbox interface {
	Send(ctx context.Context, msg Message) error
	Edit(ctx context.Context, ref MessageRef, msg Message) error
}
