package models

import (
	"bytes"
	"encoding/json"

	"github.com/diewo77/garage-records/internal/apperr"
	"github.com/diewo77/garage-records/validation"
)

// Record is implemented by *Client, *Quote and *Invoice.
type Record interface {
	RecordID() int64
	RecordKind() Kind
	// Normalize fills defaults (status, empty slices, computed total).
	Normalize()
	// Validate appends violations under prefix. Strict enables the full schema.
	Validate(prefix string, strict bool, v validation.Violations)
}

// NewRecord returns an empty record of the given kind.
func NewRecord(kind Kind) Record {
	switch kind {
	case KindClient:
		return &Client{}
	case KindQuote:
		return &Quote{}
	case KindInvoice:
		return &Invoice{}
	}
	return nil
}

// DecodeRecord parses a single JSON object of the given kind, applies defaults and validates it.
func DecodeRecord(kind Kind, data []byte, strict bool) (Record, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil, apperr.Invalid("body must be a JSON object", nil)
	}
	rec := NewRecord(kind)
	if rec == nil {
		return nil, apperr.Newf(apperr.KindInvalidInput, "unknown record kind %q", kind)
	}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, apperr.New(apperr.KindInvalidInput, "malformed "+string(kind), err)
	}
	rec.Normalize()
	if err := ValidateRecord(rec, strict); err != nil {
		return nil, err
	}
	return rec, nil
}

// ValidateRecord checks a single record and returns an invalid_input error listing every violation.
func ValidateRecord(rec Record, strict bool) error {
	v := make(validation.Violations)
	rec.Validate("", strict, v)
	if !v.Empty() {
		return apperr.Invalid("invalid "+string(rec.RecordKind()), v)
	}
	return nil
}
