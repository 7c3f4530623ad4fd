package models

import "github.com/diewo77/garage-records/validation"

// InvoiceStatus represents the payment status of an invoice.
type InvoiceStatus string

const (
	InvoiceStatusUnpaid InvoiceStatus = "unpaid"
	InvoiceStatusPaid   InvoiceStatus = "paid"
)

// Invoice has the shape of a Quote with a payment status instead of the quote lifecycle.
// It is usually derived from a converted quote, but no link is stored.
type Invoice struct {
	Billable `bson:",inline"`
	Status   InvoiceStatus `json:"status" bson:"status"`
}

func (i *Invoice) RecordID() int64  { return i.ID }
func (i *Invoice) RecordKind() Kind { return KindInvoice }

func (i *Invoice) Normalize() {
	i.normalize()
	if i.Status == "" {
		i.Status = InvoiceStatusUnpaid
	}
}

func (i *Invoice) Validate(prefix string, strict bool, v validation.Violations) {
	i.validate(prefix, strict, v)
	if !strict {
		return
	}
	validation.OneOf(validation.Field(prefix, "status"), string(i.Status), []string{
		string(InvoiceStatusUnpaid), string(InvoiceStatusPaid),
	}, v)
}
