// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package lens

import (
	"context"
	"log/slog"
	"strings"

	"github.com/AleutianAI/AleutianProvenance/pkg/logging"
	"github.com/AleutianAI/AleutianProvenance/services/bot/anchor"
	"github.com/AleutianAI/AleutianProvenance/services/bot/generate"
	"github.com/AleutianAI/AleutianProvenance/services/bot/platform"
	"github.com/AleutianAI/AleutianProvenance/services/bot/reply"
	"github.com/AleutianAI/AleutianProvenance/services/bot/session"
	"github.com/AleutianAI/AleutianProvenance/services/bot/traceclient"
	"github.com/AleutianAI/AleutianProvenance/services/provenance/datatypes"
)

// User-facing notices. Lifecycle problems surface as short ephemeral
// messages, never as unhandled errors.
const (
	noticeNoAnchor         = "I couldn't find the reply this control belongs to."
	noticeSessionExpired   = "This session has expired. Click the lens button on the reply again."
	noticeNoLensSelected   = "Select a lens first."
	noticeAlreadyRunning   = "Already generating for this message, please wait."
	noticeEmptyDescription = "The lens description can't be empty. Please try again."
	noticeGenerationFailed = "Generation failed. Please try again later."
)

// Flow wires the alternative-lens and explain state machines.
//
// All mutable state is injected: the session store, the two in-progress
// guard sets, and the platform surfaces. The flow itself is stateless and
// safe for concurrent interactions.
type Flow struct {
	catalog  *Catalog
	sessions session.Store

	// Independent mutual-exclusion sets; membership means "mid-generation".
	lensGuard    *session.GuardSet
	explainGuard *session.GuardSet

	resolver *anchor.Resolver
	traces   traceclient.Lookup
	gen      *generate.Orchestrator
	replies  *reply.Coordinator
	channel  platform.ChannelAPI
	api      platform.InteractionAPI
	logger   *slog.Logger
}

// Config assembles a Flow.
type Config struct {
	Catalog  *Catalog
	Sessions session.Store
	Resolver *anchor.Resolver

	// Traces is optional; nil disables metadata enrichment entirely.
	Traces traceclient.Lookup

	Generator   *generate.Orchestrator
	Coordinator *reply.Coordinator
	Channel     platform.ChannelAPI
	Interaction platform.InteractionAPI
	Logger      *slog.Logger
}

// NewFlow creates the flow with fresh guard sets.
func NewFlow(cfg Config) *Flow {
	if cfg.Catalog == nil {
		cfg.Catalog = DefaultCatalog()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Flow{
		catalog:      cfg.Catalog,
		sessions:     cfg.Sessions,
		lensGuard:    session.NewGuardSet(),
		explainGuard: session.NewGuardSet(),
		resolver:     cfg.Resolver,
		traces:       cfg.Traces,
		gen:          cfg.Generator,
		replies:      cfg.Coordinator,
		channel:      cfg.Channel,
		api:          cfg.Interaction,
		logger:       cfg.Logger,
	}
}

// Route dispatches one interaction to its handler.
//
// This is the single dispatch point for the closed set of interaction
// kinds; unknown custom IDs are logged and ignored so a stray control can
// never crash the host process.
func (f *Flow) Route(ctx context.Context, i *platform.Interaction) {
	switch {
	case i.Kind == platform.KindButton && i.CustomID == platform.CustomIDLensInit:
		f.handleInit(ctx, i)
	case i.Kind == platform.KindButton && i.CustomID == platform.CustomIDExplain:
		f.handleExplain(ctx, i)
	case i.Kind == platform.KindSelect && strings.HasPrefix(i.CustomID, platform.PrefixLensSelect):
		f.handleSelect(ctx, i, platform.TargetMessageID(i.CustomID, platform.PrefixLensSelect))
	case i.Kind == platform.KindButton && strings.HasPrefix(i.CustomID, platform.PrefixLensSubmit):
		f.handleSubmit(ctx, i, platform.TargetMessageID(i.CustomID, platform.PrefixLensSubmit))
	case i.Kind == platform.KindModal && strings.HasPrefix(i.CustomID, platform.PrefixLensModal):
		f.handleModal(ctx, i, platform.TargetMessageID(i.CustomID, platform.PrefixLensModal))
	default:
		f.logger.Warn("unrouted interaction",
			"kind", i.Kind.String(), "custom_id", i.CustomID, "user_id", i.UserID)
	}
}

// notify sends a short ephemeral notice; delivery failures are logged and
// swallowed per the fail-visible policy.
func (f *Flow) notify(ctx context.Context, i *platform.Interaction, text string) {
	if _, err := f.replies.Deliver(ctx, i, platform.ReplyPayload{Content: text, Ephemeral: true}); err != nil {
		f.logger.Error("failed to deliver notice",
			"custom_id", i.CustomID, "user_id", i.UserID, "error", err)
	}
}

// handleInit opens a fresh lens session for the clicked reply.
//
// State transition: none -> initiated. Any prior session under the same
// (user, message) key is destroyed, which is also how abandoned sessions
// are eventually reclaimed.
func (f *Flow) handleInit(ctx context.Context, i *platform.Interaction) {
	footer, err := f.channel.Message(ctx, i.ChannelID, i.MessageID)
	if err != nil {
		f.logger.Error("footer fetch failed",
			"action", "lens_init", "channel_id", i.ChannelID, "message_id", i.MessageID, "error", err)
		f.notify(ctx, i, noticeNoAnchor)
		return
	}

	_, text := f.resolver.FullText(ctx, footer)
	if text == "" {
		f.notify(ctx, i, noticeNoAnchor)
		return
	}

	responseID := platform.ParseTraceHint(footer.Content)
	sess := &session.LensSession{
		Context: session.Context{
			MessageText: text,
			Metadata:    f.lookupMetadata(ctx, responseID),
			MessageID:   i.MessageID,
			ChannelID:   i.ChannelID,
			ResponseID:  responseID,
		},
	}
	f.sessions.Set(i.UserID, i.MessageID, sess)

	f.logger.Info("lens session opened",
		"action", "lens_init", "user_id", i.UserID,
		"message_id", i.MessageID, "response_id", responseID)

	payload := platform.ReplyPayload{
		Content:   "Pick a lens to reinterpret this reply through, then submit.",
		Ephemeral: true,
		Components: []platform.Component{
			{
				Type:     platform.ComponentSelect,
				CustomID: platform.PrefixLensSelect + i.MessageID,
				Label:    "Lens",
				Options:  f.catalog.Options(),
			},
			{
				Type:     platform.ComponentButton,
				CustomID: platform.PrefixLensSubmit + i.MessageID,
				Label:    "Submit",
			},
		},
	}
	if _, err := f.replies.Deliver(ctx, i, payload); err != nil {
		f.logger.Error("failed to present lens controls",
			"action", "lens_init", "user_id", i.UserID, "message_id", i.MessageID, "error", err)
	}
}

// lookupMetadata fetches the trace record best-effort: every failure path
// degrades to nil enrichment.
func (f *Flow) lookupMetadata(ctx context.Context, responseID string) *datatypes.ResponseMetadata {
	if f.traces == nil || responseID == "" {
		return nil
	}
	md, stale, err := f.traces.Lookup(ctx, responseID)
	if err != nil {
		logging.FailOpen(f.logger, "trace_lookup_failed", "response_id", responseID, "error", err)
		return nil
	}
	if stale {
		f.logger.Debug("using stale trace record", "response_id", responseID)
	}
	return md
}

// handleSelect records a menu choice.
//
// State transition: initiated -> lens-selected, or for the custom lens
// initiated -> custom-description-pending via a modal prefilled with any
// previously entered description.
func (f *Flow) handleSelect(ctx context.Context, i *platform.Interaction, messageID string) {
	sess, ok := f.sessions.Get(i.UserID, messageID)
	if !ok {
		f.notify(ctx, i, noticeSessionExpired)
		return
	}
	if len(i.Values) == 0 {
		f.notify(ctx, i, noticeNoLensSelected)
		return
	}

	def, ok := f.catalog.Get(i.Values[0])
	if !ok {
		f.notify(ctx, i, noticeNoLensSelected)
		return
	}

	if def.RequiresCustomDescription {
		modal := platform.Modal{
			CustomID: platform.PrefixLensModal + messageID,
			Title:    "Describe your lens",
			Fields: []platform.ModalField{{
				CustomID:  platform.FieldLensDescription,
				Label:     "Perspective",
				Prefill:   sess.CustomDescription,
				MinLength: CustomDescriptionMin,
				MaxLength: CustomDescriptionMax,
				Long:      true,
			}},
		}
		if err := f.api.OpenModal(ctx, i, modal); err != nil {
			f.logger.Error("failed to open lens modal",
				"action", "lens_select", "user_id", i.UserID, "message_id", messageID, "error", err)
		}
		return
	}

	sess.SelectedLensKey = def.Key
	f.sessions.Set(i.UserID, messageID, sess)
	f.notify(ctx, i, "Lens set to "+def.Label+". Press Submit when ready.")
}

// handleModal stores the custom description.
//
// State transition: custom-description-pending -> ready-to-submit. An
// empty submission re-prompts without any state change.
func (f *Flow) handleModal(ctx context.Context, i *platform.Interaction, messageID string) {
	sess, ok := f.sessions.Get(i.UserID, messageID)
	if !ok {
		f.notify(ctx, i, noticeSessionExpired)
		return
	}

	desc := strings.TrimSpace(i.Fields[platform.FieldLensDescription])
	if desc == "" {
		f.notify(ctx, i, noticeEmptyDescription)
		return
	}

	sess.SelectedLensKey = KeyCustom
	sess.CustomDescription = desc
	f.sessions.Set(i.UserID, messageID, sess)
	f.notify(ctx, i, "Custom lens saved. Press Submit when ready.")
}

// resolveLensPayload returns the submittable lens for a session, or false
// when no usable selection exists yet.
func (f *Flow) resolveLensPayload(sess *session.LensSession) (Definition, bool) {
	def, ok := f.catalog.Get(sess.SelectedLensKey)
	if !ok {
		return Definition{}, false
	}
	if def.RequiresCustomDescription && strings.TrimSpace(sess.CustomDescription) == "" {
		return Definition{}, false
	}
	return def, true
}

// handleSubmit runs the terminal transition: guard, generate, deliver,
// and tear the session down whatever the outcome.
func (f *Flow) handleSubmit(ctx context.Context, i *platform.Interaction, messageID string) {
	sess, ok := f.sessions.Get(i.UserID, messageID)
	if !ok {
		f.notify(ctx, i, noticeSessionExpired)
		return
	}

	def, ok := f.resolveLensPayload(sess)
	if !ok {
		f.notify(ctx, i, noticeNoLensSelected)
		return
	}

	// Check-and-set before the first await; a concurrent submit for the
	// same message observes the mark and is refused.
	if !f.lensGuard.TryAcquire(messageID) {
		f.notify(ctx, i, noticeAlreadyRunning)
		return
	}
	defer func() {
		f.sessions.Delete(i.UserID, messageID)
		f.lensGuard.Release(messageID)
	}()

	ack, err := f.replies.Deliver(ctx, i, platform.ReplyPayload{
		Content: "Reinterpreting through the " + def.Label + " lens…",
	})
	if err != nil {
		f.logger.Error("failed to acknowledge submit",
			"action", "lens_submit", "user_id", i.UserID, "message_id", messageID, "error", err)
		return
	}

	perspective := def.Description
	if def.RequiresCustomDescription {
		perspective = sess.CustomDescription
	}
	result, err := f.gen.Reinterpret(ctx, sess, def.Label, perspective)
	if err != nil {
		f.logger.Error("lens generation failed",
			"action", "lens_submit", "user_id", i.UserID, "message_id", messageID,
			"response_id", sess.Context.ResponseID, "lens", def.Key, "error", err)
		f.reportFailure(ctx, i, ack, sess.Context.ChannelID)
		return
	}

	if _, err := f.channel.Send(ctx, sess.Context.ChannelID, result); err != nil {
		f.logger.Error("failed to post lens result",
			"action", "lens_submit", "user_id", i.UserID, "message_id", messageID, "error", err)
		f.reportFailure(ctx, i, ack, sess.Context.ChannelID)
	}
}

// reportFailure edits the in-progress acknowledgment to a failure notice,
// falling back to a follow-up when no ack message object is available.
func (f *Flow) reportFailure(ctx context.Context, i *platform.Interaction, ack *platform.Message, channelID string) {
	if ack != nil {
		if _, err := f.channel.Edit(ctx, channelID, ack.ID, noticeGenerationFailed); err == nil {
			return
		}
	}
	f.notify(ctx, i, noticeGenerationFailed)
}

// handleExplain is the one-shot explain flow: no selection step, no
// persistent session, just the guard and a single generation.
func (f *Flow) handleExplain(ctx context.Context, i *platform.Interaction) {
	if !f.explainGuard.TryAcquire(i.MessageID) {
		f.notify(ctx, i, noticeAlreadyRunning)
		return
	}
	defer f.explainGuard.Release(i.MessageID)

	footer, err := f.channel.Message(ctx, i.ChannelID, i.MessageID)
	if err != nil {
		f.logger.Error("footer fetch failed",
			"action", "explain", "channel_id", i.ChannelID, "message_id", i.MessageID, "error", err)
		f.notify(ctx, i, noticeNoAnchor)
		return
	}

	_, text := f.resolver.FullText(ctx, footer)
	if text == "" {
		f.notify(ctx, i, noticeNoAnchor)
		return
	}

	responseID := platform.ParseTraceHint(footer.Content)
	md := f.lookupMetadata(ctx, responseID)

	ack, err := f.replies.Deliver(ctx, i, platform.ReplyPayload{Content: "Explaining this reply…"})
	if err != nil {
		f.logger.Error("failed to acknowledge explain",
			"action", "explain", "user_id", i.UserID, "message_id", i.MessageID, "error", err)
		return
	}

	result, err := f.gen.Explain(ctx, text, md)
	if err != nil {
		f.logger.Error("explain generation failed",
			"action", "explain", "user_id", i.UserID, "message_id", i.MessageID,
			"response_id", responseID, "error", err)
		f.reportFailure(ctx, i, ack, i.ChannelID)
		return
	}

	if _, err := f.channel.Send(ctx, i.ChannelID, result); err != nil {
		f.logger.Error("failed to post explanation",
			"action", "explain", "user_id", i.UserID, "message_id", i.MessageID, "error", err)
		f.reportFailure(ctx, i, ack, i.ChannelID)
	}
}
