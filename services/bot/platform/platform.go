// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package platform defines the chat-platform boundary for the bot-side flows.
//
// The platform itself (gateway connection, token lifecycle, wire encoding) is
// an external collaborator; this package specifies only the interface the
// reinterpretation flows consume: message fetch/send/edit, and interaction
// acknowledgment. Interactions arrive as a tagged variant (a closed set of
// kinds) so that routing is one switch in one place instead of structural
// checks at every call site.
package platform

import (
	"context"
	"errors"
	"regexp"
	"time"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrAlreadyAcknowledged indicates the interaction token was consumed by
	// a previous reply. Callers recover by sending a follow-up instead; any
	// other delivery error is a real failure.
	ErrAlreadyAcknowledged = errors.New("interaction already acknowledged")

	// ErrMessageNotFound indicates a message fetch for an unknown ID.
	ErrMessageNotFound = errors.New("message not found")
)

// =============================================================================
// Messages
// =============================================================================

// Message is a channel message as seen by the bot-side flows.
type Message struct {
	ID        string
	ChannelID string
	AuthorID  string
	Content   string
	Timestamp time.Time

	// ReferenceID is the ID of the message this one replies to, or empty.
	ReferenceID string

	// HasEmbeds and HasComponents mark messages carrying rich content or
	// interactive controls; such messages are never reply-body text.
	HasEmbeds     bool
	HasComponents bool
}

// ChannelAPI is the message surface of the chat platform.
type ChannelAPI interface {
	// Message fetches a single message by ID.
	// Returns ErrMessageNotFound for unknown IDs.
	Message(ctx context.Context, channelID, messageID string) (*Message, error)

	// MessagesBefore fetches up to limit messages strictly older than
	// beforeID, ordered newest-first.
	MessagesBefore(ctx context.Context, channelID, beforeID string, limit int) ([]*Message, error)

	// Send posts a new message to a channel.
	Send(ctx context.Context, channelID, content string) (*Message, error)

	// Edit replaces the content of an existing bot message.
	Edit(ctx context.Context, channelID, messageID, content string) (*Message, error)
}

// =============================================================================
// Interactions
// =============================================================================

// InteractionKind tags the closed set of component interaction shapes.
type InteractionKind int

const (
	// KindButton is a button click.
	KindButton InteractionKind = iota
	// KindSelect is a selection-menu choice; Values carries the selection.
	KindSelect
	// KindModal is a modal form submission; Fields carries the inputs.
	KindModal
)

// String returns the kind name for logging.
func (k InteractionKind) String() string {
	switch k {
	case KindButton:
		return "button"
	case KindSelect:
		return "select"
	case KindModal:
		return "modal"
	default:
		return "unknown"
	}
}

// Interaction is one component interaction event, already decoded by the
// platform layer into the tagged variant.
type Interaction struct {
	Kind     InteractionKind
	CustomID string

	UserID    string
	ChannelID string

	// MessageID is the message carrying the clicked component, i.e. the
	// footer message for init buttons and the ephemeral control message for
	// select/submit. Routing for the latter therefore encodes the target
	// message ID in CustomID instead.
	MessageID string

	// Values carries select-menu choices (KindSelect only).
	Values []string

	// Fields carries modal inputs by field custom ID (KindModal only).
	Fields map[string]string
}

// ReplyPayload is the visible response to an interaction.
type ReplyPayload struct {
	Content   string
	Ephemeral bool

	// Components attaches interactive controls to the reply.
	Components []Component
}

// ComponentType tags the supported control shapes.
type ComponentType int

const (
	ComponentButton ComponentType = iota
	ComponentSelect
)

// Component is one interactive control on a reply.
type Component struct {
	Type     ComponentType
	CustomID string
	Label    string

	// Options populates selection menus.
	Options []SelectOption
}

// SelectOption is one entry of a selection menu.
type SelectOption struct {
	Label       string
	Value       string
	Description string
}

// Modal is a form opened in response to an interaction.
type Modal struct {
	CustomID string
	Title    string
	Fields   []ModalField
}

// ModalField is a single text input on a modal.
type ModalField struct {
	CustomID  string
	Label     string
	Prefill   string
	MinLength int
	MaxLength int
	Long      bool
}

// InteractionAPI is the acknowledgment surface of the chat platform.
//
// All methods may return a nil *Message even on success; callers that need
// the posted message object fall back to OriginalResponse.
type InteractionAPI interface {
	// Reply delivers the primary visible response to an interaction.
	// Returns ErrAlreadyAcknowledged if the token was already consumed.
	Reply(ctx context.Context, i *Interaction, p ReplyPayload) (*Message, error)

	// FollowUp delivers an additional message on an acknowledged interaction.
	FollowUp(ctx context.Context, i *Interaction, p ReplyPayload) (*Message, error)

	// OriginalResponse fetches the message posted by Reply.
	OriginalResponse(ctx context.Context, i *Interaction) (*Message, error)

	// OpenModal presents a modal form. Consumes the interaction token.
	OpenModal(ctx context.Context, i *Interaction, m Modal) error
}

// =============================================================================
// Component ID Scheme
// =============================================================================

// Component custom IDs are the routing keys for interaction callbacks.
// IDs tied to a specific target message carry that message's ID after a
// colon, e.g. "lens_select:1234".
const (
	CustomIDLensInit     = "lens_init"
	CustomIDExplain      = "explain"
	PrefixLensSelect     = "lens_select:"
	PrefixLensSubmit     = "lens_submit:"
	PrefixLensModal      = "lens_modal:"
	FieldLensDescription = "lens_custom_description"
)

// TargetMessageID extracts the message ID parameter from a prefixed custom
// ID. Returns "" when the custom ID does not carry the prefix.
func TargetMessageID(customID, prefix string) string {
	if len(customID) <= len(prefix) || customID[:len(prefix)] != prefix {
		return ""
	}
	return customID[len(prefix):]
}

// =============================================================================
// Trace Hint
// =============================================================================

// traceHintPattern matches the short trace-identifier hint the reply pipeline
// embeds in footer messages, e.g. "trace:resp-01HXYZ".
var traceHintPattern = regexp.MustCompile(`trace:([A-Za-z0-9_-]+)`)

// ParseTraceHint extracts the response ID hint from footer text.
// Returns "" when no hint is present; callers treat that as
// "no trace metadata available" rather than an error.
func ParseTraceHint(content string) string {
	m := traceHintPattern.FindStringSubmatch(content)
	if m == nil {
		return ""
	}
	return m[1]
}
