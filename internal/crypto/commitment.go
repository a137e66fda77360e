// Package crypto implements the commitment scheme of the invoicing protocol:
// invoice commitments, receipt commitments, salt generation, and the
// freeze-registry sparse Merkle proofs.
//
// All hashing uses MiMC over the BW6-761 scalar field. Functions here are
// pure; they never perform I/O and callers handle malformed inputs upstream.
package crypto

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"hash"
	"strings"

	fr "github.com/consensys/gnark-crypto/ecc/bw6-761/fr"
	mimc "github.com/consensys/gnark-crypto/ecc/bw6-761/fr/mimc"
)

// FieldElement is the scalar field element type used for every protocol value:
// salts, secrets, commitments and Merkle nodes.
type FieldElement = fr.Element

// Domain-separation tags for the three invoice commitment terms and the
// receipt derivation stages.
const (
	tagMerchant   = "zkinvoice/merchant"
	tagAmount     = "zkinvoice/amount"
	tagSalt       = "zkinvoice/salt"
	tagReceiptKey = "zkinvoice/receipt-key"
	tagReceipt    = "zkinvoice/receipt"
)

// chunkSize keeps every absorbed block strictly below the field modulus once
// the MiMC digest left-pads it to the block width.
const chunkSize = fr.Bytes - 1

// absorb writes arbitrary bytes into the digest in sub-modulus chunks.
func absorb(h hash.Hash, data []byte) {
	for start := 0; start < len(data); start += chunkSize {
		end := start + chunkSize
		if end > len(data) {
			end = len(data)
		}
		h.Write(data[start:end])
	}
}

// absorbElement writes a canonical field element into the digest.
func absorbElement(h hash.Hash, e *FieldElement) {
	b := e.Bytes()
	h.Write(b[:])
}

// hashToField maps a domain tag plus raw input bytes to a field element.
func hashToField(tag string, data []byte) FieldElement {
	h := mimc.NewMiMC()
	absorb(h, []byte(tag))
	absorb(h, data)
	var out FieldElement
	out.SetBytes(h.Sum(nil))
	return out
}

// invoiceTerms computes the three independent domain-separated hashes over
// merchant, amount and salt. Their field sum is the invoice commitment; the
// additive structure lets a payer recompute the hash from public link
// parameters alone.
func invoiceTerms(merchant string, amount uint64, salt FieldElement) [3]FieldElement {
	var amt [8]byte
	binary.BigEndian.PutUint64(amt[:], amount)
	saltBytes := salt.Bytes()
	return [3]FieldElement{
		hashToField(tagMerchant, []byte(merchant)),
		hashToField(tagAmount, amt[:]),
		hashToField(tagSalt, saltBytes[:]),
	}
}

// InvoiceCommitment derives the public commitment identifying an invoice.
//
// Donation invoices always use amount zero in this formula regardless of the
// amount eventually transferred; callers go through
// domain.Invoice.CommitmentAmount rather than passing the donated amount.
func InvoiceCommitment(merchant string, amount uint64, salt FieldElement) FieldElement {
	terms := invoiceTerms(merchant, amount, salt)
	var sum FieldElement
	sum.Add(&terms[0], &terms[1])
	sum.Add(&sum, &terms[2])
	return sum
}

// ReceiptCommitment derives the commitment linking the payer-side and
// merchant-side receipts of one payment. Two-stage: the salt is first hashed
// to a scalar, then the payment secret is committed under that scalar.
// Binding: the secret cannot change without changing the hash. Hiding: the
// commitment reveals nothing about the secret without the salt.
func ReceiptCommitment(secret, salt FieldElement) FieldElement {
	saltBytes := salt.Bytes()
	key := hashToField(tagReceiptKey, saltBytes[:])

	h := mimc.NewMiMC()
	absorb(h, []byte(tagReceipt))
	absorbElement(h, &secret)
	absorbElement(h, &key)
	var out FieldElement
	out.SetBytes(h.Sum(nil))
	return out
}

// GenerateSalt returns a cryptographically random 128-bit value mapped into
// the field. The 2^-128 collision bound is the sole defense against
// invoice-hash guessing, so the random source must never be substituted.
func GenerateSalt() (FieldElement, error) {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return FieldElement{}, fmt.Errorf("reading random salt: %w", err)
	}
	var e FieldElement
	e.SetBytes(buf[:])
	return e, nil
}

// GeneratePaymentSecret returns a fresh random field element scoped to one
// payment attempt. It is never transmitted in the clear.
func GeneratePaymentSecret() (FieldElement, error) {
	var e FieldElement
	if _, err := e.SetRandom(); err != nil {
		return FieldElement{}, fmt.Errorf("generating payment secret: %w", err)
	}
	return e, nil
}

// FieldInput renders a field element the way the ledger expects transition
// inputs and mapping values: decimal with a "field" suffix.
func FieldInput(e FieldElement) string {
	return e.String() + "field"
}

// ParseField parses a decimal field element, tolerating the "field" suffix
// used in transition outputs and mapping values.
func ParseField(s string) (FieldElement, error) {
	s = strings.TrimSuffix(strings.TrimSpace(s), "field")
	if s == "" {
		return FieldElement{}, fmt.Errorf("empty field element")
	}
	var e FieldElement
	if _, err := e.SetString(s); err != nil {
		return FieldElement{}, fmt.Errorf("parsing field element %q: %w", s, err)
	}
	return e, nil
}
