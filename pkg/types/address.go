package types

import (
	"fmt"
	"strings"
)

// Address is the shipping address captured at checkout, stored as jsonb.
type Address struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
}

// Validate checks the required address fields and normalizes the country.
func (a *Address) Validate() error {
	if strings.TrimSpace(a.Street) == "" {
		return fmt.Errorf("address: missing street")
	}
	if strings.TrimSpace(a.City) == "" {
		return fmt.Errorf("address: missing city")
	}
	if strings.TrimSpace(a.State) == "" {
		return fmt.Errorf("address: missing state")
	}
	if strings.TrimSpace(a.Country) == "" {
		a.Country = "NG"
	}
	return nil
}
