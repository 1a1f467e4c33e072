// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package reply delivers interaction responses exactly once, with graceful
// recovery when another handler has already consumed the interaction token.
package reply

import (
	"context"
	"errors"
	"log/slog"

	"github.com/AleutianAI/AleutianProvenance/services/bot/platform"
)

// Coordinator delivers reply payloads for component interactions.
type Coordinator struct {
	api    platform.InteractionAPI
	logger *slog.Logger
}

// NewCoordinator creates a coordinator.
func NewCoordinator(api platform.InteractionAPI, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{api: api, logger: logger}
}

// Deliver posts the payload as the primary visible response.
//
// # Description
//
// If the interaction was already acknowledged by another handler, the
// payload is retried as a follow-up message; that specific condition is
// recovered transparently, while any other delivery failure propagates to
// the caller. After delivering, the posted message object is resolved for
// callers that need to edit or reference it later: when the delivery call
// did not yield one, it is fetched explicitly, and a fetch failure is logged
// and treated as "no message object available", not as a delivery failure.
//
// # Outputs
//
//	*platform.Message - The posted message, or nil when it could not be
//	resolved (delivery itself still succeeded).
//	error - Non-nil only when delivery failed outright.
func (c *Coordinator) Deliver(ctx context.Context, i *platform.Interaction, p platform.ReplyPayload) (*platform.Message, error) {
	msg, err := c.api.Reply(ctx, i, p)
	if errors.Is(err, platform.ErrAlreadyAcknowledged) {
		c.logger.Debug("interaction already acknowledged, sending follow-up",
			"custom_id", i.CustomID, "user_id", i.UserID)
		msg, err = c.api.FollowUp(ctx, i, p)
	}
	if err != nil {
		return nil, err
	}

	if msg == nil {
		fetched, ferr := c.api.OriginalResponse(ctx, i)
		if ferr != nil {
			c.logger.Warn("could not resolve posted interaction response",
				"custom_id", i.CustomID, "user_id", i.UserID, "error", ferr)
			return nil, nil
		}
		msg = fetched
	}
	return msg, nil
}
