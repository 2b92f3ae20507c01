package notify

import "context"

// OtpTransport delivers a one-time code over a single channel. The ledger
// never sends anything itself; the orchestrator picks a transport by contact
// type and calls it before persisting the code.
type OtpTransport interface {
	Send(ctx context.Context, contactInfo, code string) error
}

// Transports maps contact type to its transport.
type Transports map[string]OtpTransport

// For returns the transport registered for the contact type.
func (t Transports) For(contactType string) (OtpTransport, bool) {
	transport, ok := t[contactType]
	return transport, ok
}
