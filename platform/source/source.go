package source

// Acker confirms the consumption of a change.
type Acker interface {
	Ack(id string) error
}
