// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package generate

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianProvenance/services/bot/session"
	"github.com/AleutianAI/AleutianProvenance/services/llm"
	"github.com/AleutianAI/AleutianProvenance/services/provenance/datatypes"
)

type capturingLLM struct {
	messages []llm.Message
	result   string
	err      error
}

func (c *capturingLLM) Chat(_ context.Context, messages []llm.Message, _ llm.GenerationParams) (string, error) {
	c.messages = messages
	return c.result, c.err
}

func testSession(md *datatypes.ResponseMetadata) *session.LensSession {
	return &session.LensSession{
		Context: session.Context{
			MessageText: "The original reply.",
			Metadata:    md,
			MessageID:   "msg-1",
			ChannelID:   "chan-1",
			ResponseID:  "resp-1",
		},
	}
}

func TestReinterpretPromptShape(t *testing.T) {
	client := &capturingLLM{result: "reframed"}
	o := NewOrchestrator(client, slog.New(slog.NewTextHandler(io.Discard, nil)))

	out, err := o.Reinterpret(context.Background(), testSession(nil),
		"Skeptic", "Stress-test claims, assumptions, and evidence.")
	require.NoError(t, err)
	assert.Equal(t, "reframed", out)

	require.Len(t, client.messages, 3)
	assert.Equal(t, llm.RoleSystem, client.messages[0].Role)
	assert.Contains(t, client.messages[0].Content, "Skeptic")
	assert.Contains(t, client.messages[0].Content, "Stress-test claims, assumptions, and evidence.")
	assert.Equal(t, llm.RoleAssistant, client.messages[1].Role)
	assert.Equal(t, "The original reply.", client.messages[1].Content)
	assert.Equal(t, llm.RoleUser, client.messages[2].Role)
}

func TestReinterpretCustomLensUsesUserDescription(t *testing.T) {
	client := &capturingLLM{result: "reframed"}
	o := NewOrchestrator(client, slog.New(slog.NewTextHandler(io.Discard, nil)))

	sess := testSession(nil)
	sess.SelectedLensKey = "custom"
	sess.CustomDescription = "as a medieval cartographer would"

	_, err := o.Reinterpret(context.Background(), sess, "Custom", sess.CustomDescription)
	require.NoError(t, err)
	assert.Contains(t, client.messages[0].Content, "as a medieval cartographer would")
}

func TestReinterpretIncludesMetadataBlock(t *testing.T) {
	client := &capturingLLM{result: "reframed"}
	o := NewOrchestrator(client, slog.New(slog.NewTextHandler(io.Discard, nil)))

	md := &datatypes.ResponseMetadata{
		ResponseID:    "resp-1",
		Provenance:    datatypes.ProvenanceRetrieved,
		Confidence:    0.85,
		RiskTier:      datatypes.RiskLow,
		TradeoffCount: 3,
		Citations: []datatypes.Citation{
			{Title: "Source A", URL: "https://example.com/a"},
		},
	}

	_, err := o.Reinterpret(context.Background(), testSession(md),
		"Optimist", "Emphasize opportunity and the best plausible case.")
	require.NoError(t, err)

	system := client.messages[0].Content
	assert.Contains(t, system, "provenance: Retrieved")
	assert.Contains(t, system, "confidence: 0.85")
	assert.Contains(t, system, "risk tier: Low")
	assert.Contains(t, system, "tradeoffs considered: 3")
	assert.Contains(t, system, "Source A (https://example.com/a)")
}

func TestExplainPromptShape(t *testing.T) {
	client := &capturingLLM{result: "because"}
	o := NewOrchestrator(client, slog.New(slog.NewTextHandler(io.Discard, nil)))

	out, err := o.Explain(context.Background(), "The original reply.", nil)
	require.NoError(t, err)
	assert.Equal(t, "because", out)

	require.Len(t, client.messages, 3)
	assert.Equal(t, llm.RoleSystem, client.messages[0].Role)
	assert.NotContains(t, client.messages[0].Content, "Recorded provenance",
		"nil metadata writes no provenance block")
	assert.Equal(t, "The original reply.", client.messages[1].Content)
}

func TestGenerationErrorPropagates(t *testing.T) {
	client := &capturingLLM{err: fmt.Errorf("model unavailable")}
	o := NewOrchestrator(client, slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := o.Reinterpret(context.Background(), testSession(nil),
		"Skeptic", "Stress-test claims, assumptions, and evidence.")
	assert.Error(t, err)

	_, err = o.Explain(context.Background(), "text", nil)
	assert.Error(t, err)
}
