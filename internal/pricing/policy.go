// Package pricing maps intake attributes to a charge in minor currency units.
package pricing

import (
	"fmt"
	"strings"
)

// Preset names accepted by Named.
const (
	RecipientDiscount = "recipient-discount"
	DeliverySurcharge = "delivery-surcharge"
)

// Rule charges Amount when the attribute Field equals Equals.
type Rule struct {
	Field  string
	Equals string
	Amount int64
}

func (r Rule) matches(attrs map[string]string) bool {
	v, ok := attrs[r.Field]
	return ok && v == r.Equals
}

// Policy evaluates Rules in order; the first match wins, otherwise Default applies.
type Policy struct {
	Name    string
	Rules   []Rule
	Default int64
}

// Price returns the charge in cents for attrs. Missing or unknown fields fall
// through to the default.
func (p Policy) Price(attrs map[string]string) int64 {
	for _, r := range p.Rules {
		if r.matches(attrs) {
			return r.Amount
		}
	}
	return p.Default
}

// Validate reports configuration mistakes: a non-positive amount or a rule
// without a field.
func (p Policy) Validate() error {
	if p.Default <= 0 {
		return fmt.Errorf("pricing policy %q: default amount must be positive", p.Name)
	}
	for i, r := range p.Rules {
		if r.Field == "" {
			return fmt.Errorf("pricing policy %q: rule %d has no field", p.Name, i)
		}
		if r.Amount <= 0 {
			return fmt.Errorf("pricing policy %q: rule %d amount must be positive", p.Name, i)
		}
	}
	return nil
}

// Named returns one of the built-in policies.
func Named(name string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", RecipientDiscount:
		return Policy{
			Name:    RecipientDiscount,
			Rules:   []Rule{{Field: "recipientType", Equals: "Sibling", Amount: 9900}},
			Default: 19900,
		}, nil
	case DeliverySurcharge:
		return Policy{
			Name:    DeliverySurcharge,
			Rules:   []Rule{{Field: "deliverySpeed", Equals: "express", Amount: 24900}},
			Default: 19900,
		}, nil
	default:
		return Policy{}, fmt.Errorf("unknown pricing policy %q", name)
	}
}
