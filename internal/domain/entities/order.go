package entities

// Order is the authorizing service request a bill is matched against.
// Read-only to the adjudication engine except for the received-bill
// counter and the reviewed flag on matched line items.
type Order struct {
	OrderID          string  `json:"order_id" db:"order_id"`
	BundleType       *string `json:"bundle_type" db:"bundle_type"`
	PatientFirstName string  `json:"patient_first_name" db:"patient_first_name"`
	PatientLastName  string  `json:"patient_last_name" db:"patient_last_name"`
	PatientDOB       *string `json:"patient_dob" db:"patient_dob"`
	ProviderID       *string `json:"provider_id" db:"provider_id"`
	FullyPaid        bool    `json:"fully_paid" db:"fully_paid"`
	BillsReceived    int     `json:"bills_rec" db:"bills_rec"`
}

// OrderLineItem is one ordered procedure on an order. BillReviewed
// holds the id of the bill that matched it, nil until matched.
type OrderLineItem struct {
	ID           int64   `json:"id" db:"id"`
	OrderID      string  `json:"order_id" db:"order_id"`
	CPT          string  `json:"cpt" db:"cpt"`
	Modifier     *string `json:"modifier" db:"modifier"`
	Units        int     `json:"units" db:"units"`
	DOS          string  `json:"dos" db:"dos"`
	BillReviewed *string `json:"bill_reviewed" db:"bill_reviewed"`
}

// OrderCandidate is the slice of an order the mapper scores: patient
// name parts plus the line-item service dates and CPTs.
type OrderCandidate struct {
	OrderID          string
	PatientFirstName string
	PatientLastName  string
	ServiceDates     []string
	CPTCodes         []string
}
