// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package generate assembles reinterpretation prompts and delegates to the
// language-model collaborator. It is deliberately thin: all state lives in
// the session, all delivery in the reply coordinator.
package generate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/AleutianAI/AleutianProvenance/services/bot/session"
	"github.com/AleutianAI/AleutianProvenance/services/llm"
	"github.com/AleutianAI/AleutianProvenance/services/provenance/datatypes"
)

// Orchestrator turns session state plus trace metadata into LLM calls.
type Orchestrator struct {
	client llm.LLMClient
	logger *slog.Logger
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(client llm.LLMClient, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{client: client, logger: logger}
}

// Reinterpret regenerates the session's reply text through the chosen lens.
//
// label names the lens and perspective is its resolved description (the
// catalog text, or the user's own for a custom lens). The original reply is
// presented as a prior assistant turn so the model rewrites its own words
// rather than summarizing someone else's, and any recorded trace metadata is
// folded into the instructions as grounding.
func (o *Orchestrator) Reinterpret(ctx context.Context, sess *session.LensSession, label, perspective string) (string, error) {
	var sb strings.Builder
	sb.WriteString("You previously gave the reply shown in the conversation. ")
	sb.WriteString("Restate its substance through a different interpretive lens.\n")
	fmt.Fprintf(&sb, "Lens: %s. %s\n", label, perspective)
	sb.WriteString("Keep the factual content; change the framing, emphasis, and tradeoff weighting. ")
	sb.WriteString("Do not invent new facts.\n")
	writeMetadataBlock(&sb, sess.Context.Metadata)

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: sb.String()},
		{Role: llm.RoleAssistant, Content: sess.Context.MessageText},
		{Role: llm.RoleUser, Content: fmt.Sprintf("Reframe your reply above through the %s lens.", label)},
	}

	o.logger.Info("generating lens reinterpretation",
		"lens", sess.SelectedLensKey,
		"message_id", sess.Context.MessageID,
		"response_id", sess.Context.ResponseID)
	return o.client.Chat(ctx, messages, llm.GenerationParams{})
}

// Explain produces a plain-language explanation of how a prior reply was
// arrived at, grounded in its trace metadata when available.
func (o *Orchestrator) Explain(ctx context.Context, messageText string, md *datatypes.ResponseMetadata) (string, error) {
	var sb strings.Builder
	sb.WriteString("You previously gave the reply shown in the conversation. ")
	sb.WriteString("Explain how you arrived at it: what it rests on, how confident it is, and what could change it. ")
	sb.WriteString("Be concrete and brief.\n")
	writeMetadataBlock(&sb, md)

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: sb.String()},
		{Role: llm.RoleAssistant, Content: messageText},
		{Role: llm.RoleUser, Content: "Explain the reply above."},
	}

	return o.client.Chat(ctx, messages, llm.GenerationParams{})
}

// writeMetadataBlock appends recorded provenance context to the
// instructions. A nil record writes nothing; enrichment is best-effort.
func writeMetadataBlock(sb *strings.Builder, md *datatypes.ResponseMetadata) {
	if md == nil {
		return
	}

	sb.WriteString("\nRecorded provenance for the reply:\n")
	fmt.Fprintf(sb, "- provenance: %s\n", md.Provenance)
	fmt.Fprintf(sb, "- confidence: %.2f\n", md.Confidence)
	fmt.Fprintf(sb, "- risk tier: %s\n", md.RiskTier)
	if md.TradeoffCount > 0 {
		fmt.Fprintf(sb, "- tradeoffs considered: %d\n", md.TradeoffCount)
	}
	for _, c := range md.Citations {
		fmt.Fprintf(sb, "- citation: %s (%s)\n", c.Title, c.URL)
	}
}
