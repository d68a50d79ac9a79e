package entities

import "strings"

// NetworkStatus is a provider's contract status, which determines the
// rate table governing payment.
type NetworkStatus string

const (
	NetworkInNetwork    NetworkStatus = "In Network"
	NetworkOutOfNetwork NetworkStatus = "Out of Network"
)

// Provider is the billing entity behind an order. Read-only to the
// adjudication engine.
type Provider struct {
	ID                string  `json:"id" db:"id"`
	BillingName       *string `json:"billing_name" db:"billing_name"`
	DBAName           *string `json:"dba_name" db:"dba_name"`
	BillingAddress1   *string `json:"billing_address1" db:"billing_address1"`
	BillingAddress2   *string `json:"billing_address2" db:"billing_address2"`
	BillingCity       *string `json:"billing_city" db:"billing_city"`
	BillingState      *string `json:"billing_state" db:"billing_state"`
	BillingPostalCode *string `json:"billing_postal_code" db:"billing_postal_code"`
	TIN               *string `json:"tin" db:"tin"`
	NPI               *string `json:"npi" db:"npi"`
	NetworkStatus     *string `json:"network_status" db:"network_status"`
}

// CleanTIN strips dashes and spaces so TINs compare consistently
// against the in-network rate table.
func CleanTIN(tin string) string {
	tin = strings.ReplaceAll(tin, "-", "")
	tin = strings.ReplaceAll(tin, " ", "")
	return strings.TrimSpace(tin)
}
