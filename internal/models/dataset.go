package models

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/diewo77/garage-records/internal/apperr"
	"github.com/diewo77/garage-records/validation"
)

// Dataset is the unit of bulk load and replace: every client, quote and invoice.
// The three collections are always present, possibly empty.
type Dataset struct {
	Clients  []Client  `json:"clients"`
	Quotes   []Quote   `json:"quotes"`
	Invoices []Invoice `json:"invoices"`
}

// Counts is the number of records per collection.
type Counts struct {
	Clients  int64 `json:"clients"`
	Quotes   int64 `json:"quotes"`
	Invoices int64 `json:"invoices"`
}

// Set stores n under kind.
func (c *Counts) Set(kind Kind, n int64) {
	switch kind {
	case KindClient:
		c.Clients = n
	case KindQuote:
		c.Quotes = n
	case KindInvoice:
		c.Invoices = n
	}
}

// EmptyDataset returns a dataset with three empty, non-nil collections.
func EmptyDataset() Dataset {
	return Dataset{Clients: []Client{}, Quotes: []Quote{}, Invoices: []Invoice{}}
}

// Counts returns the collection sizes.
func (d Dataset) Counts() Counts {
	return Counts{
		Clients:  int64(len(d.Clients)),
		Quotes:   int64(len(d.Quotes)),
		Invoices: int64(len(d.Invoices)),
	}
}

// RequireCollections reports every nil collection as invalid_input.
func (d *Dataset) RequireCollections() error {
	v := make(validation.Violations)
	if d.Clients == nil {
		v["clients"] = "required"
	}
	if d.Quotes == nil {
		v["quotes"] = "required"
	}
	if d.Invoices == nil {
		v["invoices"] = "required"
	}
	if !v.Empty() {
		return apperr.Invalid("dataset must contain clients, quotes and invoices arrays", v)
	}
	return nil
}

// Normalize replaces nil collections with empty ones and applies record defaults.
func (d *Dataset) Normalize() {
	if d.Clients == nil {
		d.Clients = []Client{}
	}
	if d.Quotes == nil {
		d.Quotes = []Quote{}
	}
	if d.Invoices == nil {
		d.Invoices = []Invoice{}
	}
	for i := range d.Clients {
		d.Clients[i].Normalize()
	}
	for i := range d.Quotes {
		d.Quotes[i].Normalize()
	}
	for i := range d.Invoices {
		d.Invoices[i].Normalize()
	}
}

// Records returns pointers to the records of one collection.
func (d *Dataset) Records(kind Kind) []Record {
	var out []Record
	switch kind {
	case KindClient:
		for i := range d.Clients {
			out = append(out, &d.Clients[i])
		}
	case KindQuote:
		for i := range d.Quotes {
			out = append(out, &d.Quotes[i])
		}
	case KindInvoice:
		for i := range d.Invoices {
			out = append(out, &d.Invoices[i])
		}
	}
	return out
}

// Target returns a pointer to the typed collection of kind, suitable as a decode
// destination for remote.Store.FindAll.
func (d *Dataset) Target(kind Kind) any {
	switch kind {
	case KindClient:
		return &d.Clients
	case KindQuote:
		return &d.Quotes
	case KindInvoice:
		return &d.Invoices
	}
	return nil
}

// Validate checks every record and the uniqueness of ids within each collection.
func (d *Dataset) Validate(strict bool) error {
	v := make(validation.Violations)
	for _, kind := range Kinds {
		seen := make(map[int64]bool)
		for i, rec := range d.Records(kind) {
			prefix := validation.Index(kind.Collection(), i)
			rec.Validate(prefix, strict, v)
			if id := rec.RecordID(); id > 0 {
				if seen[id] {
					v[validation.Field(prefix, "id")] = "duplicate"
				}
				seen[id] = true
			}
		}
	}
	if !v.Empty() {
		return apperr.Invalid("invalid dataset", v)
	}
	return nil
}

// Find returns the record of kind with id, or nil.
func (d *Dataset) Find(kind Kind, id int64) Record {
	for _, rec := range d.Records(kind) {
		if rec.RecordID() == id {
			return rec
		}
	}
	return nil
}

// Contains reports whether a record of kind with id exists.
func (d *Dataset) Contains(kind Kind, id int64) bool {
	return d.Find(kind, id) != nil
}

// Upsert replaces the record with the same kind and id in place, or appends it.
// It returns true when the record was appended.
func (d *Dataset) Upsert(rec Record) bool {
	var created bool
	switch r := rec.(type) {
	case *Client:
		d.Clients, created = upsertByID(d.Clients, *r, func(c Client) int64 { return c.ID })
	case *Quote:
		d.Quotes, created = upsertByID(d.Quotes, *r, func(q Quote) int64 { return q.ID })
	case *Invoice:
		d.Invoices, created = upsertByID(d.Invoices, *r, func(i Invoice) int64 { return i.ID })
	}
	return created
}

// Delete removes the record of kind with id and reports whether one was removed.
func (d *Dataset) Delete(kind Kind, id int64) bool {
	var removed bool
	switch kind {
	case KindClient:
		d.Clients, removed = deleteByID(d.Clients, id, func(c Client) int64 { return c.ID })
	case KindQuote:
		d.Quotes, removed = deleteByID(d.Quotes, id, func(q Quote) int64 { return q.ID })
	case KindInvoice:
		d.Invoices, removed = deleteByID(d.Invoices, id, func(i Invoice) int64 { return i.ID })
	}
	return removed
}

func upsertByID[T any](items []T, item T, id func(T) int64) ([]T, bool) {
	for i := range items {
		if id(items[i]) == id(item) {
			items[i] = item
			return items, false
		}
	}
	return append(items, item), true
}

func deleteByID[T any](items []T, target int64, id func(T) int64) ([]T, bool) {
	out := items[:0]
	removed := false
	for _, it := range items {
		if id(it) == target {
			removed = true
			continue
		}
		out = append(out, it)
	}
	return out, removed
}

// DecodeDataset parses a request body into a Dataset. Each of clients, quotes and
// invoices must be present and be a JSON array; anything else is invalid_input.
func DecodeDataset(data []byte) (Dataset, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil || raw == nil {
		return Dataset{}, apperr.Invalid("body must be a JSON object with clients, quotes and invoices", nil)
	}
	v := make(validation.Violations)
	for _, kind := range Kinds {
		field := kind.Collection()
		r, ok := raw[field]
		switch {
		case !ok:
			v[field] = "required"
		case !isArray(r):
			v[field] = "must_be_array"
		}
	}
	if !v.Empty() {
		return Dataset{}, apperr.Invalid("dataset must contain clients, quotes and invoices arrays", v)
	}

	var ds Dataset
	decode := func(field string, dst any) {
		if err := json.Unmarshal(raw[field], dst); err != nil {
			v[field] = "malformed: " + describe(err)
		}
	}
	decode("clients", &ds.Clients)
	decode("quotes", &ds.Quotes)
	decode("invoices", &ds.Invoices)
	if !v.Empty() {
		return Dataset{}, apperr.Invalid("dataset records do not match the expected shape", v)
	}
	ds.Normalize()
	return ds, nil
}

func isArray(r json.RawMessage) bool {
	r = bytes.TrimSpace(r)
	return len(r) > 0 && r[0] == '['
}

func describe(err error) string {
	if te, ok := err.(*json.UnmarshalTypeError); ok {
		return te.Field + " expects " + te.Type.String() + " at offset " + strconv.FormatInt(te.Offset, 10)
	}
	return err.Error()
}
