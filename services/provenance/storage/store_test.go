// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package storage

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianProvenance/services/provenance/datatypes"
)

func openTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	store, err := Open(InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleRecord(id string) *datatypes.ResponseMetadata {
	return &datatypes.ResponseMetadata{
		ResponseID:    id,
		Provenance:    datatypes.ProvenanceRetrieved,
		Confidence:    0.9,
		RiskTier:      datatypes.RiskLow,
		TradeoffCount: 1,
		StaleAfter:    "2026-09-01T00:00:00Z",
		Citations: []datatypes.Citation{
			{Title: "Doc", URL: "https://example.com/doc"},
		},
	}
}

func TestUpsertRetrieve_RoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	md := sampleRecord("resp-1")
	md.Extra = map[string]json.RawMessage{
		"futureField": json.RawMessage(`{"nested":true}`),
	}
	require.NoError(t, store.Upsert(ctx, md))

	got, err := store.Retrieve(ctx, "resp-1")
	require.NoError(t, err)
	assert.Equal(t, md.ResponseID, got.ResponseID)
	assert.Equal(t, md.Confidence, got.Confidence)
	assert.Equal(t, md.Citations, got.Citations)
	assert.JSONEq(t, `{"nested":true}`, string(got.Extra["futureField"]))
}

func TestUpsert_IdempotentOverwrite(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, sampleRecord("resp-1")))

	updated := sampleRecord("resp-1")
	updated.Confidence = 0.4
	require.NoError(t, store.Upsert(ctx, updated))

	got, err := store.Retrieve(ctx, "resp-1")
	require.NoError(t, err)
	assert.Equal(t, 0.4, got.Confidence)
}

func TestRetrieve_NotFound(t *testing.T) {
	store := openTestStore(t)

	got, err := store.Retrieve(context.Background(), "missing")
	assert.Nil(t, got)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpsert_RejectsMissingID(t *testing.T) {
	store := openTestStore(t)

	err := store.Upsert(context.Background(), &datatypes.ResponseMetadata{})
	assert.ErrorIs(t, err, datatypes.ErrMissingResponseID)
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}

func TestUpsert_CancelledContext(t *testing.T) {
	store := openTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, store.Upsert(ctx, sampleRecord("resp-1")))
}
