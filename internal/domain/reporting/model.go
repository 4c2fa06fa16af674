package reporting

// Summary is the dashboard aggregate for a caller-scoped window. All fields
// are derived from appointments and the invoice payment ledger; nothing here
// is stored.
type Summary struct {
	Days             int     `json:"days"`
	Appointments     int     `json:"appointments"`
	Completed        int     `json:"completed"`
	Cancelled        int     `json:"cancelled"`
	Earnings         float64 `json:"earnings"`
	PaymentsReceived float64 `json:"payments_received"`
}
