// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes provides data structures for the provenance service.
//
// This file contains the trace record model (ResponseMetadata) and its
// validation. A trace record captures "why did it say this" metadata for a
// single assistant reply: provenance class, confidence, risk tier, citations.
// The record is produced by the upstream reply pipeline; this service stores
// and serves it without recomputing any of the classifications.
package datatypes

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Constants
// =============================================================================

// Provenance classes. Carried opaque from the upstream pipeline; the only
// thing this service enforces is that the value is one of the closed set.
const (
	ProvenanceRetrieved   = "Retrieved"
	ProvenanceInferred    = "Inferred"
	ProvenanceSpeculative = "Speculative"
)

// Risk tiers.
const (
	RiskLow    = "Low"
	RiskMedium = "Medium"
	RiskHigh   = "High"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrMissingResponseID indicates the payload has no usable responseId.
	// The write endpoint reports this case with a distinguished message.
	ErrMissingResponseID = errors.New("missing responseId")
)

// ValidationError describes the first failing field of a payload.
type ValidationError struct {
	// Field is the path of the failing field, e.g. "citations[0].url".
	Field string
	// Message is a short human-readable description of the failure.
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid field %s: %s", e.Field, e.Message)
}

// =============================================================================
// Shared Validator Instance
// =============================================================================

// metadataValidate is the validator instance for trace records.
// Initialized in init() with custom validators.
var metadataValidate *validator.Validate

func init() {
	metadataValidate = validator.New()

	// Citations must carry syntactically valid absolute URLs.
	_ = metadataValidate.RegisterValidation("absurl", validateAbsoluteURL)
}

// validateAbsoluteURL validates that a string field is an absolute URL.
//
// Uses url.Parse plus IsAbs rather than the builtin "url" tag so that
// scheme-relative and path-only strings are rejected uniformly.
func validateAbsoluteURL(fl validator.FieldLevel) bool {
	u, err := url.Parse(fl.Field().String())
	return err == nil && u.IsAbs() && u.Host != ""
}

// =============================================================================
// Trace Record Types
// =============================================================================

// Citation is one source reference attached to a reply.
// Slice order is display order.
type Citation struct {
	Title   string `json:"title" validate:"required"`
	URL     string `json:"url" validate:"required,absurl"`
	Snippet string `json:"snippet,omitempty"`
}

// ResponseMetadata is the trace record for one assistant reply.
//
// # Description
//
// ResponseMetadata is keyed by ResponseID and written idempotently: a second
// upsert for the same ID overwrites the first. Staleness (StaleAfter in the
// past) is a read-time judgment, never a storage-level eviction.
//
// Unknown top-level JSON fields are preserved in Extra on unmarshal and
// re-emitted on marshal, so records written by a newer upstream pipeline
// round-trip through this service unchanged. The strict validation mode used
// by the write endpoint rejects such fields; the lenient mode used everywhere
// else ignores them.
//
// # Validation
//
// Uses go-playground/validator:
//   - ResponseID: required
//   - Provenance: one of Retrieved, Inferred, Speculative
//   - Confidence: 0.0-1.0 inclusive
//   - RiskTier: one of Low, Medium, High
//   - TradeoffCount: >= 0
//   - Citations[].URL: absolute URL (custom "absurl" validator)
//
// StaleAfter is deliberately not format-validated: an unparsable value is a
// read-time fail-open ("not stale"), not a write-time rejection.
type ResponseMetadata struct {
	ResponseID        string     `json:"responseId" validate:"required"`
	Provenance        string     `json:"provenance" validate:"required,oneof=Retrieved Inferred Speculative"`
	Confidence        float64    `json:"confidence" validate:"gte=0,lte=1"`
	RiskTier          string     `json:"riskTier" validate:"required,oneof=Low Medium High"`
	TradeoffCount     int        `json:"tradeoffCount" validate:"gte=0"`
	ChainHash         string     `json:"chainHash"`
	LicenseContext    string     `json:"licenseContext"`
	ModelVersion      string     `json:"modelVersion"`
	StaleAfter        string     `json:"staleAfter"`
	Citations         []Citation `json:"citations" validate:"dive"`
	ImageDescriptions []string   `json:"imageDescriptions,omitempty"`

	// Extra holds unrecognized top-level fields for forward-compatible
	// passthrough. Opaque to this subsystem.
	Extra map[string]json.RawMessage `json:"-"`
}

// knownMetadataFields are the top-level JSON keys owned by this schema.
// Everything else lands in Extra.
var knownMetadataFields = []string{
	"responseId", "provenance", "confidence", "riskTier", "tradeoffCount",
	"chainHash", "licenseContext", "modelVersion", "staleAfter",
	"citations", "imageDescriptions",
}

// metadataAlias avoids recursing into the custom JSON methods.
type metadataAlias ResponseMetadata

// UnmarshalJSON decodes a trace record, diverting unknown top-level fields
// into Extra instead of dropping them.
func (m *ResponseMetadata) UnmarshalJSON(data []byte) error {
	var alias metadataAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, k := range knownMetadataFields {
		delete(raw, k)
	}
	if len(raw) > 0 {
		alias.Extra = raw
	}

	*m = ResponseMetadata(alias)
	return nil
}

// MarshalJSON re-emits the record including any preserved unknown fields.
func (m ResponseMetadata) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(metadataAlias(m))
	if err != nil {
		return nil, err
	}
	if len(m.Extra) == 0 {
		return base, nil
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range m.Extra {
		// Known fields always win over a stale duplicate in Extra.
		if _, ok := merged[k]; !ok {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// Validate performs lenient validation: struct tags only, unknown fields
// in Extra are permitted. Used by readers and the round-trip path.
func (m *ResponseMetadata) Validate() error {
	if m.ResponseID == "" {
		return ErrMissingResponseID
	}
	return firstValidationError(metadataValidate.Struct(m))
}

// ValidateStrict performs strict validation for the write endpoint:
// struct tags plus rejection of unknown top-level fields.
func (m *ResponseMetadata) ValidateStrict() error {
	if err := m.Validate(); err != nil {
		return err
	}
	for k := range m.Extra {
		return &ValidationError{Field: k, Message: "unknown field"}
	}
	return nil
}

// firstValidationError converts a validator error into a single
// *ValidationError for the first failing field, with a JSON-ish path.
func firstValidationError(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &ValidationError{Field: "payload", Message: err.Error()}
	}

	fe := verrs[0]
	return &ValidationError{
		Field:   jsonFieldPath(fe.Namespace()),
		Message: fmt.Sprintf("failed %q constraint", fe.Tag()),
	}
}

// jsonFieldPath rewrites a validator namespace like
// "ResponseMetadata.Citations[0].URL" to "citations[0].url".
func jsonFieldPath(namespace string) string {
	fieldNames := map[string]string{
		"ResponseID":        "responseId",
		"Provenance":        "provenance",
		"Confidence":        "confidence",
		"RiskTier":          "riskTier",
		"TradeoffCount":     "tradeoffCount",
		"ChainHash":         "chainHash",
		"LicenseContext":    "licenseContext",
		"ModelVersion":      "modelVersion",
		"StaleAfter":        "staleAfter",
		"Citations":         "citations",
		"ImageDescriptions": "imageDescriptions",
		"Title":             "title",
		"URL":               "url",
		"Snippet":           "snippet",
	}

	out := ""
	start := 0
	for i := 0; i <= len(namespace); i++ {
		if i == len(namespace) || namespace[i] == '.' || namespace[i] == '[' {
			seg := namespace[start:i]
			if mapped, ok := fieldNames[seg]; ok {
				seg = mapped
			}
			out += seg
			if i < len(namespace) {
				out += string(namespace[i])
			}
			start = i + 1
		}
	}

	// Drop the leading struct name segment.
	const prefix = "ResponseMetadata."
	if len(out) > len(prefix) && out[:len(prefix)] == prefix {
		out = out[len(prefix):]
	}
	return out
}
