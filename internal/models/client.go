package models

import (
	"time"

	"github.com/diewo77/garage-records/validation"
)

// Vehicle belongs to a client; its ID is unique within that client only.
type Vehicle struct {
	ID           int64  `json:"id" bson:"id"`
	Brand        string `json:"brand" bson:"brand"`
	Model        string `json:"model" bson:"model"`
	Year         int    `json:"year" bson:"year"`
	LicensePlate string `json:"licensePlate" bson:"licensePlate"`
	VIN          string `json:"vin" bson:"vin"`
}

// Client is a customer of the garage.
type Client struct {
	ID        int64     `json:"id" bson:"id"`
	FirstName string    `json:"firstName" bson:"firstName"`
	LastName  string    `json:"lastName" bson:"lastName"`
	Email     string    `json:"email" bson:"email"`
	Phone     string    `json:"phone" bson:"phone"`
	Address   string    `json:"address" bson:"address"`
	CreatedAt string    `json:"createdAt" bson:"createdAt"`
	Vehicles  []Vehicle `json:"vehicles" bson:"vehicles"`
}

func (c *Client) RecordID() int64  { return c.ID }
func (c *Client) RecordKind() Kind { return KindClient }

func (c *Client) Normalize() {
	if c.Vehicles == nil {
		c.Vehicles = []Vehicle{}
	}
}

func (c *Client) Validate(prefix string, strict bool, v validation.Violations) {
	validation.PositiveInt(validation.Field(prefix, "id"), c.ID, v)
	if !strict {
		return
	}
	validation.Required(validation.Field(prefix, "firstName"), c.FirstName, v)
	validation.Required(validation.Field(prefix, "lastName"), c.LastName, v)
	validation.Required(validation.Field(prefix, "email"), c.Email, v)
	validation.Required(validation.Field(prefix, "phone"), c.Phone, v)
	validation.Required(validation.Field(prefix, "address"), c.Address, v)
	validation.Date(validation.Field(prefix, "createdAt"), c.CreatedAt, v)

	seen := make(map[int64]bool, len(c.Vehicles))
	for i, veh := range c.Vehicles {
		p := validation.Index(validation.Field(prefix, "vehicles"), i)
		validation.PositiveInt(validation.Field(p, "id"), veh.ID, v)
		if seen[veh.ID] {
			v[validation.Field(p, "id")] = "duplicate"
		}
		seen[veh.ID] = true
		validation.Required(validation.Field(p, "brand"), veh.Brand, v)
		validation.Required(validation.Field(p, "model"), veh.Model, v)
		validation.RangeInt(validation.Field(p, "year"), veh.Year, 1886, time.Now().Year()+1, v)
		validation.Required(validation.Field(p, "licensePlate"), veh.LicensePlate, v)
		validation.Required(validation.Field(p, "vin"), veh.VIN, v)
	}
}
