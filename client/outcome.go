package client

// Outcome classifies a solution submission response. Every submission maps to
// exactly one of these; the worker's settle step branches on nothing else.
type Outcome int

const (
	// Accepted means the service returned a crypto receipt.
	Accepted Outcome = iota
	// Duplicate means the service already holds a solution for this
	// address/challenge pair. Success-equivalent, never retried.
	Duplicate
	// Rejected is any other definitive application-level rejection.
	Rejected
	// Transient covers network failures and server errors; the same nonce
	// may be retried.
	Transient
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case Duplicate:
		return "duplicate"
	case Rejected:
		return "rejected"
	case Transient:
		return "transient"
	default:
		return "unknown"
	}
}
