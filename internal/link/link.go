// Package link encodes and decodes invoice links. A link's query parameters
// fully determine a payable invoice; the only network round trip a payer
// needs beyond it is the ledger mapping lookup.
package link

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"zkinvoice/internal/core/domain"
)

// Params is the decoded query-parameter set of an invoice link.
type Params struct {
	Merchant string
	Amount   uint64 // zero for open-ended donation links
	Salt     string // decimal field element
	Token    string // token program ID; empty selects the primary asset
	Type     string // standard (default), multi, donation
	Memo     string
}

const (
	typeStandard = "standard"
	typeMulti    = "multi"
	typeDonation = "donation"
)

// Kind maps the type parameter to an invoice kind.
func (p Params) Kind() (domain.InvoiceKind, error) {
	switch p.Type {
	case "", typeStandard:
		return domain.InvoiceStandard, nil
	case typeMulti:
		return domain.InvoiceMultiPay, nil
	case typeDonation:
		return domain.InvoiceDonation, nil
	default:
		return "", fmt.Errorf("unknown invoice type %q", p.Type)
	}
}

// Asset maps the token parameter to an asset kind. tokenProgram is the
// configured wrapped-stable program ID.
func (p Params) Asset(tokenProgram string) (domain.AssetKind, error) {
	switch p.Token {
	case "":
		return domain.AssetPrimary, nil
	case tokenProgram:
		return domain.AssetWrappedStable, nil
	default:
		return "", fmt.Errorf("unknown token program %q", p.Token)
	}
}

// Values renders the parameter set for URL encoding. Zero and empty optional
// fields are omitted.
func (p Params) Values() url.Values {
	v := url.Values{}
	v.Set("merchant", p.Merchant)
	if p.Amount > 0 {
		v.Set("amount", strconv.FormatUint(p.Amount, 10))
	}
	v.Set("salt", p.Salt)
	if p.Token != "" {
		v.Set("token", p.Token)
	}
	if p.Type != "" && p.Type != typeStandard {
		v.Set("type", p.Type)
	}
	if p.Memo != "" {
		v.Set("memo", p.Memo)
	}
	return v
}

// Encode appends the parameters to a base URL.
func (p Params) Encode(base string) string {
	return strings.TrimRight(base, "?") + "?" + p.Values().Encode()
}

// Parse decodes an invoice link or bare query string.
func Parse(raw string) (Params, error) {
	query := raw
	if idx := strings.Index(raw, "?"); idx >= 0 {
		query = raw[idx+1:]
	}
	values, err := url.ParseQuery(query)
	if err != nil {
		return Params{}, fmt.Errorf("parsing invoice link: %w", err)
	}
	return FromValues(values)
}

// FromValues decodes parsed query values, validating required fields.
func FromValues(values url.Values) (Params, error) {
	p := Params{
		Merchant: values.Get("merchant"),
		Salt:     values.Get("salt"),
		Token:    values.Get("token"),
		Type:     values.Get("type"),
		Memo:     values.Get("memo"),
	}
	if p.Merchant == "" {
		return Params{}, fmt.Errorf("invoice link is missing the merchant parameter")
	}
	if p.Salt == "" {
		return Params{}, fmt.Errorf("invoice link is missing the salt parameter")
	}
	if raw := values.Get("amount"); raw != "" {
		amount, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return Params{}, fmt.Errorf("invalid amount %q in invoice link", raw)
		}
		p.Amount = amount
	}
	if _, err := p.Kind(); err != nil {
		return Params{}, err
	}
	return p, nil
}
