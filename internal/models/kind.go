package models

import (
	"strings"

	"github.com/diewo77/garage-records/internal/apperr"
)

// Kind names one of the three record collections.
type Kind string

const (
	KindClient  Kind = "client"
	KindQuote   Kind = "quote"
	KindInvoice Kind = "invoice"
)

// Kinds lists every record kind in dataset order.
var Kinds = []Kind{KindClient, KindQuote, KindInvoice}

// Collection returns the collection (or table) name for the kind.
func (k Kind) Collection() string {
	return string(k) + "s"
}

// ParseKind accepts the singular or plural form ("client", "clients"). Anything else
// is a not_found error.
func ParseKind(s string) (Kind, error) {
	s = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "s")
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", apperr.Newf(apperr.KindNotFound, "unknown record kind %q", s)
}
