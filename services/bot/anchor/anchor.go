// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package anchor recovers the full text of a logical assistant reply.
//
// A logical reply may be physically split into several consecutive channel
// messages (platform length limits), with a separate footer message carrying
// the interactive controls. Given the footer, this package finds the anchor
// message holding the authoritative reply text and stitches split chunks
// back together, bounded by author, shape and time heuristics.
//
// The heuristics are tuned constants, not correctness guarantees; they live
// in Policy so deployments can adjust them, and failures at any point degrade
// to whatever text was already recovered rather than propagating.
package anchor

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianProvenance/pkg/logging"
	"github.com/AleutianAI/AleutianProvenance/services/bot/platform"
)

// Policy bounds the history walk.
type Policy struct {
	// Lookback is the maximum number of preceding messages examined, both
	// when locating the anchor and when stitching split chunks.
	Lookback int

	// StitchWindow is the maximum age gap between the anchor and a chunk
	// candidate. A candidate older than this relative to the anchor marks
	// the end of the logical reply.
	StitchWindow time.Duration
}

// DefaultPolicy returns the production bounds.
func DefaultPolicy() Policy {
	return Policy{
		Lookback:     16,
		StitchWindow: 2 * time.Minute,
	}
}

// Resolver locates anchor messages and recovers split reply text.
type Resolver struct {
	api    platform.ChannelAPI
	botID  string
	policy Policy
	logger *slog.Logger
}

// NewResolver creates a resolver.
//
// botID is the bot's own user ID; messages from any other author terminate
// the history walk.
func NewResolver(api platform.ChannelAPI, botID string, policy Policy, logger *slog.Logger) *Resolver {
	if policy.Lookback <= 0 {
		policy = DefaultPolicy()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{api: api, botID: botID, policy: policy, logger: logger}
}

// Resolve finds the anchor message for a footer.
//
// # Description
//
// Resolution order:
//
//  1. A footer with body text is its own anchor (single-message case).
//  2. A footer that is a threaded reply anchors to the referenced message.
//  3. Otherwise scan preceding messages newest-first, stopping at the first
//     non-bot message or the first message with embeds/components (those
//     mark a different control, not reply content); the first plain-content
//     bot message is the anchor.
//
// Returns nil when no anchor can be found; lookup failures fail open to nil
// and are logged.
func (r *Resolver) Resolve(ctx context.Context, footer *platform.Message) *platform.Message {
	if footer == nil {
		return nil
	}
	if strings.TrimSpace(footer.Content) != "" {
		return footer
	}

	if footer.ReferenceID != "" {
		ref, err := r.api.Message(ctx, footer.ChannelID, footer.ReferenceID)
		if err == nil && ref != nil {
			return ref
		}
		logging.FailOpen(r.logger, "anchor_reference_fetch_failed",
			"channel_id", footer.ChannelID,
			"message_id", footer.ID,
			"reference_id", footer.ReferenceID,
			"error", err)
		// Fall through to the history scan.
	}

	history, err := r.api.MessagesBefore(ctx, footer.ChannelID, footer.ID, r.policy.Lookback)
	if err != nil {
		logging.FailOpen(r.logger, "anchor_history_fetch_failed",
			"channel_id", footer.ChannelID, "message_id", footer.ID, "error", err)
		return nil
	}

	for _, m := range history {
		if m.AuthorID != r.botID {
			return nil
		}
		if m.HasEmbeds || m.HasComponents {
			return nil
		}
		if strings.TrimSpace(m.Content) != "" {
			return m
		}
	}
	return nil
}

// FullText recovers the complete reply text for a footer message.
//
// # Description
//
// Resolves the anchor, then stitches preceding chunks:
//
//   - An anchor that is itself a threaded reply is complete on its own;
//     the reply reference marks the start of the logical reply.
//   - Otherwise preceding bot-authored plain-content messages are prepended,
//     newest-first, until the walk hits a non-bot author, an embed/component
//     message, an empty-content message, the Lookback bound, or a candidate
//     older than StitchWindow relative to the anchor. A candidate that is
//     itself a threaded reply is included and then terminates the walk.
//
// Chunks are joined in chronological order separated by a blank line and
// trimmed. Lookup failures degrade to the text accumulated so far.
//
// Returns the resolved anchor (nil if none) and the recovered text
// ("" if none).
func (r *Resolver) FullText(ctx context.Context, footer *platform.Message) (*platform.Message, string) {
	anchorMsg := r.Resolve(ctx, footer)
	if anchorMsg == nil {
		return nil, ""
	}

	text := strings.TrimSpace(anchorMsg.Content)
	if anchorMsg.ReferenceID != "" {
		return anchorMsg, text
	}

	history, err := r.api.MessagesBefore(ctx, anchorMsg.ChannelID, anchorMsg.ID, r.policy.Lookback)
	if err != nil {
		logging.FailOpen(r.logger, "stitch_history_fetch_failed",
			"channel_id", anchorMsg.ChannelID, "anchor_id", anchorMsg.ID, "error", err)
		return anchorMsg, text
	}

	// Collected newest-first; reversed into chronological order below.
	chunks := []string{text}
	for _, m := range history {
		if m.AuthorID != r.botID || m.HasEmbeds || m.HasComponents {
			break
		}
		content := strings.TrimSpace(m.Content)
		if content == "" {
			break
		}
		if anchorMsg.Timestamp.Sub(m.Timestamp) > r.policy.StitchWindow {
			break
		}

		chunks = append(chunks, content)
		if m.ReferenceID != "" {
			// This chunk starts the logical reply.
			break
		}
	}

	for i, j := 0, len(chunks)-1; i < j; i, j = i+1, j-1 {
		chunks[i], chunks[j] = chunks[j], chunks[i]
	}
	return anchorMsg, strings.TrimSpace(strings.Join(chunks, "\n\n"))
}
