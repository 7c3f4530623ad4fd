package models

import (
	"math"

	"github.com/diewo77/garage-records/validation"
)

// LineItem is one billed service on a quote or an invoice.
type LineItem struct {
	ServiceID int64   `json:"serviceId" bson:"serviceId"`
	Quantity  float64 `json:"quantity" bson:"quantity"`
	UnitPrice float64 `json:"unitPrice" bson:"unitPrice"`
}

// Amount returns quantity times unit price.
func (li LineItem) Amount() float64 {
	return li.Quantity * li.UnitPrice
}

// Billable holds the fields quotes and invoices share.
// ClientID and VehicleID are references that are not enforced.
type Billable struct {
	ID               int64      `json:"id" bson:"id"`
	Number           string     `json:"number" bson:"number"`
	ClientID         int64      `json:"clientId" bson:"clientId"`
	VehicleID        int64      `json:"vehicleId" bson:"vehicleId"`
	Items            []LineItem `json:"items" bson:"items"`
	InterventionDate string     `json:"interventionDate" bson:"interventionDate"`
	Notes            string     `json:"notes" bson:"notes"`
	Total            float64    `json:"total" bson:"total"`
	CreatedAt        string     `json:"createdAt" bson:"createdAt"`
}

// ItemsTotal sums the line amounts, rounded to the cent.
func (b *Billable) ItemsTotal() float64 {
	var total float64
	for _, it := range b.Items {
		total += it.Amount()
	}
	return math.Round(total*100) / 100
}

func (b *Billable) normalize() {
	if b.Items == nil {
		b.Items = []LineItem{}
	}
	if b.Total == 0 && len(b.Items) > 0 {
		b.Total = b.ItemsTotal()
	}
}

func (b *Billable) validate(prefix string, strict bool, v validation.Violations) {
	validation.PositiveInt(validation.Field(prefix, "id"), b.ID, v)
	if !strict {
		return
	}
	validation.Required(validation.Field(prefix, "number"), b.Number, v)
	validation.PositiveInt(validation.Field(prefix, "clientId"), b.ClientID, v)
	validation.PositiveInt(validation.Field(prefix, "vehicleId"), b.VehicleID, v)
	validation.Date(validation.Field(prefix, "interventionDate"), b.InterventionDate, v)
	validation.Date(validation.Field(prefix, "createdAt"), b.CreatedAt, v)
	validation.NonNegativeFloat(validation.Field(prefix, "total"), b.Total, v)
	for i, it := range b.Items {
		p := validation.Index(validation.Field(prefix, "items"), i)
		validation.PositiveInt(validation.Field(p, "serviceId"), it.ServiceID, v)
		validation.PositiveFloat(validation.Field(p, "quantity"), it.Quantity, v)
		validation.NonNegativeFloat(validation.Field(p, "unitPrice"), it.UnitPrice, v)
	}
}

// QuoteStatus is the lifecycle state of a quote.
type QuoteStatus string

const (
	QuoteStatusPending   QuoteStatus = "pending"
	QuoteStatusConverted QuoteStatus = "converted"
	QuoteStatusRejected  QuoteStatus = "rejected"
)

// Quote is an estimate given to a client for work on one of their vehicles.
type Quote struct {
	Billable `bson:",inline"`
	Status   QuoteStatus `json:"status" bson:"status"`
}

func (q *Quote) RecordID() int64  { return q.ID }
func (q *Quote) RecordKind() Kind { return KindQuote }

func (q *Quote) Normalize() {
	q.normalize()
	if q.Status == "" {
		q.Status = QuoteStatusPending
	}
}

func (q *Quote) Validate(prefix string, strict bool, v validation.Violations) {
	q.validate(prefix, strict, v)
	if !strict {
		return
	}
	validation.OneOf(validation.Field(prefix, "status"), string(q.Status), []string{
		string(QuoteStatusPending), string(QuoteStatusConverted), string(QuoteStatusRejected),
	}, v)
}
