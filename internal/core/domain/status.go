package domain

import (
	"fmt"
	"strings"
)

// StatusEntry is the decoded value of the on-chain invoice-status mapping,
// keyed by invoice commitment.
type StatusEntry struct {
	Status InvoiceStatus
	Kind   InvoiceKind
	Asset  AssetKind
}

// ParseStatusEntry decodes a status mapping value of the form
//
//	{ status: 0u8, kind: 1u8, asset: 0u8 }
//
// Missing or unknown codes are errors; the caller treats them as an invalid
// invoice rather than guessing defaults.
func ParseStatusEntry(s string) (StatusEntry, error) {
	_, fields, err := splitRecord("status " + strings.TrimSpace(s))
	if err != nil {
		return StatusEntry{}, fmt.Errorf("status entry: %w", err)
	}

	statusRaw, err := requireField("status", fields, "status")
	if err != nil {
		return StatusEntry{}, err
	}
	var status InvoiceStatus
	switch strings.TrimSuffix(statusRaw, "u8") {
	case "0":
		status = InvoiceOpen
	case "1":
		status = InvoiceSettled
	default:
		return StatusEntry{}, fmt.Errorf("status entry: unknown status code %q", statusRaw)
	}

	kindRaw, err := requireField("status", fields, "kind")
	if err != nil {
		return StatusEntry{}, err
	}
	var kind InvoiceKind
	switch strings.TrimSuffix(kindRaw, "u8") {
	case "0":
		kind = InvoiceStandard
	case "1":
		kind = InvoiceMultiPay
	case "2":
		kind = InvoiceDonation
	default:
		return StatusEntry{}, fmt.Errorf("status entry: unknown kind code %q", kindRaw)
	}

	assetRaw, err := requireField("status", fields, "asset")
	if err != nil {
		return StatusEntry{}, err
	}
	asset, err := parseAssetCode(assetRaw)
	if err != nil {
		return StatusEntry{}, fmt.Errorf("status entry: %w", err)
	}

	return StatusEntry{Status: status, Kind: kind, Asset: asset}, nil
}

// KindCode renders an invoice kind as its on-chain discriminator.
func KindCode(kind InvoiceKind) string {
	switch kind {
	case InvoiceMultiPay:
		return "1u8"
	case InvoiceDonation:
		return "2u8"
	default:
		return "0u8"
	}
}

// StatusCode renders an invoice status as its on-chain discriminator.
func StatusCode(status InvoiceStatus) string {
	if status == InvoiceSettled {
		return "1u8"
	}
	return "0u8"
}

// FormatStatusEntry renders a status entry as a mapping value.
func FormatStatusEntry(e StatusEntry) string {
	return fmt.Sprintf("{ status: %s, kind: %s, asset: %s }",
		StatusCode(e.Status), KindCode(e.Kind), AssetCode(e.Asset))
}
