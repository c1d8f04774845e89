package domain

// Contacts are the delivery addresses resolved for one user from their
// device registrations and user record.
type Contacts struct {
	PushTokens []string
	Phone      string
	Email      string
}
