package domain

import (
	"zkinvoice/internal/crypto"
)

// AssetKind discriminates the two supported asset paths.
type AssetKind string

const (
	// AssetPrimary is the ledger's native asset. Supports public-to-private
	// conversion when the private balance cannot cover a payment.
	AssetPrimary AssetKind = "PRIMARY"
	// AssetWrappedStable is the wrapped stable token. Payments require a
	// freeze-registry compliance proof and have no conversion path.
	AssetWrappedStable AssetKind = "WRAPPED_STABLE"
)

// InvoiceKind determines settlement behavior.
type InvoiceKind string

const (
	// InvoiceStandard settles exactly once: Open -> Settled.
	InvoiceStandard InvoiceKind = "STANDARD"
	// InvoiceMultiPay may be paid repeatedly and stays Open indefinitely.
	InvoiceMultiPay InvoiceKind = "MULTI_PAY"
	// InvoiceDonation accepts payer-chosen amounts; status is
	// merchant-controlled.
	InvoiceDonation InvoiceKind = "DONATION"
)

// Repeatable reports whether this kind permits repeated payments, in which
// case settlement never marks the invoice settled.
func (k InvoiceKind) Repeatable() bool {
	return k == InvoiceMultiPay || k == InvoiceDonation
}

// InvoiceStatus is the on-chain settlement state.
type InvoiceStatus string

const (
	InvoiceOpen    InvoiceStatus = "OPEN"
	InvoiceSettled InvoiceStatus = "SETTLED"
)

// Invoice is the verified, immutable view of an on-chain invoice. The
// commitment is computed client-side and must equal the value retrievable
// from the ledger via the salt before any payment is attempted.
type Invoice struct {
	Merchant   string
	Amount     uint64 // micro-units; zero for open-ended donation invoices
	Salt       crypto.FieldElement
	Commitment crypto.FieldElement
	Asset      AssetKind
	Kind       InvoiceKind
	Status     InvoiceStatus
	Memo       string
}

// CommitmentAmount is the amount bound into the invoice commitment. Donation
// invoices always commit to zero; the donated amount only appears at
// settlement. Any new invoice kind must decide this explicitly.
func (i *Invoice) CommitmentAmount() uint64 {
	if i.Kind == InvoiceDonation {
		return 0
	}
	return i.Amount
}
