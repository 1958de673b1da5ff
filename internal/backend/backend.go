package backend

import "context"

// SigningRequest carries one CSR through a single signing call. It is
// created by the caller and never retained by a backend.
type SigningRequest struct {
	// CSR is the PEM-encoded certificate signing request.
	CSR []byte
	// SubjectDN is the subject distinguished name (informational).
	SubjectDN string
	// SubjectAltNames is the ordered, non-empty list of names the
	// certificate covers. The first entry keys the output artifact.
	SubjectAltNames []string
	// Email is the contact address (informational pass-through).
	Email string
}

// Backend signs certificate signing requests. Exactly one of the
// returned values is meaningful: a non-nil error means no chain.
//
// Sign may block for the full duration of the backend's execution
// budget; callers needing concurrency run signing calls on their own
// goroutines. Backends provide no ordering between concurrent calls
// sharing the same first subject alternative name (see keylock).
type Backend interface {
	Sign(ctx context.Context, req SigningRequest) (string, error)
}
