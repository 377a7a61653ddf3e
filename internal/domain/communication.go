package domain

// Communication holds the user-facing message, the internal work note and
// whether the ticket can likely be closed.
type Communication struct {
	UserMessage         string `json:"user_message"`
	TicketUpdate        string `json:"ticket_update"`
	CloseRecommendation bool   `json:"close_recommendation"`
}

// ParseCommunication validates a mapping into a Communication.
// close_recommendation must be a real boolean; "true" as text is rejected.
func ParseCommunication(m map[string]any) (Communication, error) {
	r := newFieldReader("communication", m)
	c := Communication{
		UserMessage:         r.requiredString("user_message"),
		TicketUpdate:        r.requiredString("ticket_update"),
		CloseRecommendation: r.boolean("close_recommendation"),
	}
	if err := r.err(); err != nil {
		return Communication{}, err
	}
	return c, nil
}
