package domain

// UnknownCaller is used when a ticket does not name its caller.
const UnknownCaller = "Unknown"

// Ticket is the input record describing a reported user issue. It is
// built once per run and never modified.
type Ticket struct {
	TicketID         string  `json:"ticket_id"`
	ShortDescription string  `json:"short_description"`
	Description      string  `json:"description"`
	Caller           string  `json:"caller"`
	Impact           *string `json:"impact"`
	Urgency          *string `json:"urgency"`
}

// ParseTicket validates a mapping into a Ticket.
func ParseTicket(m map[string]any) (Ticket, error) {
	r := newFieldReader("ticket", m)
	t := Ticket{
		TicketID:         r.requiredString("ticket_id"),
		ShortDescription: r.requiredString("short_description"),
		Description:      r.requiredString("description"),
		Impact:           r.optionalString("impact"),
		Urgency:          r.optionalString("urgency"),
	}
	if caller := r.optionalString("caller"); caller != nil {
		t.Caller = *caller
	} else {
		t.Caller = UnknownCaller
	}
	if err := r.err(); err != nil {
		return Ticket{}, err
	}
	return t, nil
}
