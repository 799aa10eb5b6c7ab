package driven

import "context"

// State namespaces. Each concern owns its own key space; records are keyed by
// account email within a namespace.
const (
	NamespaceLedger = "ledger"
	NamespaceStatus = "status"
)

// StateStore is the driven port for durable per-account JSON records. The
// ledger and the circuit breaker are its only writers, each confined to its
// own namespace.
type StateStore interface {
	// ReadJSON unmarshals the stored record into v. Returns (false, nil) when
	// no record exists for the key.
	ReadJSON(ctx context.Context, namespace, account string, v any) (bool, error)
	// WriteJSON marshals v and durably replaces the record for the key.
	WriteJSON(ctx context.Context, namespace, account string, v any) error
	// Delete removes the record for the key. Deleting a missing record is not
	// an error.
	Delete(ctx context.Context, namespace, account string) error
}
