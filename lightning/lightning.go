// Package lightning interacts with the Lightning node backing the wallet.
package lightning

import "context"

// Client interface to interact with a Lightning backend
type Client interface {
	CreateInvoice(ctx context.Context, amount uint64) (Invoice, error)
	InvoiceStatus(ctx context.Context, hash string) (Invoice, error)
}

type Invoice struct {
	PaymentRequest string
	PaymentHash    string
	Preimage       string
	Settled        bool
	Amount         uint64
	Expiry         uint64
}
