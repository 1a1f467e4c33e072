// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validMetadata() *ResponseMetadata {
	return &ResponseMetadata{
		ResponseID:    "resp-123",
		Provenance:    ProvenanceRetrieved,
		Confidence:    0.82,
		RiskTier:      RiskMedium,
		TradeoffCount: 2,
		ChainHash:     "abc123",
		ModelVersion:  "m-1",
		StaleAfter:    "2026-09-01T00:00:00Z",
		Citations: []Citation{
			{Title: "Source A", URL: "https://example.com/a"},
		},
	}
}

func TestValidate_AcceptsValidRecord(t *testing.T) {
	require.NoError(t, validMetadata().Validate())
}

func TestValidate_ConfidenceBounds(t *testing.T) {
	tests := []struct {
		name       string
		confidence float64
		wantErr    bool
	}{
		{"zero is valid", 0, false},
		{"one is valid", 1, false},
		{"above one rejected", 1.2, true},
		{"negative rejected", -0.1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := validMetadata()
			m.Confidence = tt.confidence
			err := m.Validate()
			if tt.wantErr {
				var verr *ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, "confidence", verr.Field)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidate_MissingResponseID(t *testing.T) {
	m := validMetadata()
	m.ResponseID = ""

	err := m.Validate()
	assert.True(t, errors.Is(err, ErrMissingResponseID))
}

func TestValidate_CitationURLPath(t *testing.T) {
	m := validMetadata()
	m.Citations = append(m.Citations, Citation{Title: "Bad", URL: "not-a-url"})

	err := m.Validate()
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "citations[1].url", verr.Field)
}

func TestValidate_EnumFields(t *testing.T) {
	m := validMetadata()
	m.Provenance = "Guessed"
	assert.Error(t, m.Validate())

	m = validMetadata()
	m.RiskTier = "Extreme"
	assert.Error(t, m.Validate())

	m = validMetadata()
	m.TradeoffCount = -1
	assert.Error(t, m.Validate())
}

func TestUnmarshal_PreservesUnknownFields(t *testing.T) {
	payload := []byte(`{
		"responseId": "resp-9",
		"provenance": "Inferred",
		"confidence": 0.5,
		"riskTier": "Low",
		"tradeoffCount": 0,
		"chainHash": "", "licenseContext": "", "modelVersion": "",
		"staleAfter": "",
		"citations": [],
		"futureField": {"nested": true},
		"anotherOne": 7
	}`)

	var m ResponseMetadata
	require.NoError(t, json.Unmarshal(payload, &m))
	require.Len(t, m.Extra, 2)
	assert.Contains(t, m.Extra, "futureField")

	out, err := json.Marshal(m)
	require.NoError(t, err)

	var roundTripped map[string]any
	require.NoError(t, json.Unmarshal(out, &roundTripped))
	assert.Equal(t, map[string]any{"nested": true}, roundTripped["futureField"])
	assert.Equal(t, float64(7), roundTripped["anotherOne"])
	assert.Equal(t, "resp-9", roundTripped["responseId"])
}

func TestValidateStrict_RejectsUnknownFields(t *testing.T) {
	m := validMetadata()
	require.NoError(t, m.ValidateStrict())

	m.Extra = map[string]json.RawMessage{"surprise": json.RawMessage(`1`)}
	err := m.ValidateStrict()
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "surprise", verr.Field)
	assert.Equal(t, "unknown field", verr.Message)
}

func TestValidate_CitationOrderPreserved(t *testing.T) {
	payload := []byte(`{
		"responseId": "resp-9", "provenance": "Retrieved", "confidence": 1,
		"riskTier": "High", "tradeoffCount": 1,
		"chainHash": "", "licenseContext": "", "modelVersion": "", "staleAfter": "",
		"citations": [
			{"title": "first", "url": "https://a.example"},
			{"title": "second", "url": "https://b.example"},
			{"title": "third", "url": "https://c.example"}
		]
	}`)

	var m ResponseMetadata
	require.NoError(t, json.Unmarshal(payload, &m))
	require.Len(t, m.Citations, 3)
	assert.Equal(t, "first", m.Citations[0].Title)
	assert.Equal(t, "third", m.Citations[2].Title)
}
