package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// RecordCiphertext is an encrypted private record as listed by the wallet
// connector. Only the wallet can decrypt it.
type RecordCiphertext struct {
	ID         string
	Ciphertext string
}

// RecordPlaintext is the tagged result of parsing a decrypted record. The
// parser never silently defaults fields; every variant is produced with
// explicit field extraction and exhaustive error reporting.
type RecordPlaintext interface {
	recordPlaintext()
}

// BalanceRecord is a unit of private value: owned, value-bearing, consumable
// exactly once. The ledger enforces uniqueness via an opaque nullifier the
// engine does not manage.
type BalanceRecord struct {
	ID     string // ciphertext ID used when spending
	Owner  string
	Amount uint64
	Asset  AssetKind
	Spent  bool
}

// PayerReceipt is the payer-side receipt produced by a payment transition.
type PayerReceipt struct {
	Owner      string
	Commitment string
	Amount     uint64
}

// MerchantReceipt is the merchant-side receipt. Its commitment must equal the
// payer-side one; that equality is the protocol's core linkage invariant.
type MerchantReceipt struct {
	Owner      string
	Commitment string
	Amount     uint64
}

// UnknownRecord preserves plaintexts of types this engine does not handle.
type UnknownRecord struct {
	TypeName string
	Raw      string
}

func (BalanceRecord) recordPlaintext()   {}
func (PayerReceipt) recordPlaintext()    {}
func (MerchantReceipt) recordPlaintext() {}
func (UnknownRecord) recordPlaintext()   {}

const (
	recordTypeBalance         = "balance"
	recordTypePayerReceipt    = "payer_receipt"
	recordTypeMerchantReceipt = "merchant_receipt"
)

// ParseRecordPlaintext parses a decrypted record of the form
//
//	balance { owner: pz1..., amount: 1500000u64, asset: 0u8, spent: false }
//
// into its tagged variant. Unrecognized record types are returned as
// UnknownRecord rather than an error so callers can skip them; malformed
// bodies of known types are errors.
func ParseRecordPlaintext(s string) (RecordPlaintext, error) {
	typeName, fields, err := splitRecord(s)
	if err != nil {
		return nil, err
	}

	switch typeName {
	case recordTypeBalance:
		return parseBalance(fields)
	case recordTypePayerReceipt:
		owner, commitment, amount, err := parseReceiptFields(typeName, fields)
		if err != nil {
			return nil, err
		}
		return PayerReceipt{Owner: owner, Commitment: commitment, Amount: amount}, nil
	case recordTypeMerchantReceipt:
		owner, commitment, amount, err := parseReceiptFields(typeName, fields)
		if err != nil {
			return nil, err
		}
		return MerchantReceipt{Owner: owner, Commitment: commitment, Amount: amount}, nil
	default:
		return UnknownRecord{TypeName: typeName, Raw: s}, nil
	}
}

// splitRecord separates "type { k: v, ... }" into the type name and a field map.
func splitRecord(s string) (string, map[string]string, error) {
	trimmed := strings.TrimSpace(s)
	open := strings.Index(trimmed, "{")
	close := strings.LastIndex(trimmed, "}")
	if open < 0 || close < open {
		return "", nil, fmt.Errorf("record plaintext is not of the form \"type { ... }\": %q", s)
	}
	typeName := strings.TrimSpace(trimmed[:open])
	if typeName == "" {
		return "", nil, fmt.Errorf("record plaintext has no type name: %q", s)
	}

	fields := make(map[string]string)
	body := strings.TrimSpace(trimmed[open+1 : close])
	if body == "" {
		return typeName, fields, nil
	}
	for _, pair := range strings.Split(body, ",") {
		key, value, found := strings.Cut(pair, ":")
		if !found {
			return "", nil, fmt.Errorf("record field %q is not of the form \"key: value\"", strings.TrimSpace(pair))
		}
		fields[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return typeName, fields, nil
}

func parseBalance(fields map[string]string) (BalanceRecord, error) {
	owner, err := requireField(recordTypeBalance, fields, "owner")
	if err != nil {
		return BalanceRecord{}, err
	}
	amount, err := parseAmountField(recordTypeBalance, fields)
	if err != nil {
		return BalanceRecord{}, err
	}
	assetRaw, err := requireField(recordTypeBalance, fields, "asset")
	if err != nil {
		return BalanceRecord{}, err
	}
	asset, err := parseAssetCode(assetRaw)
	if err != nil {
		return BalanceRecord{}, err
	}
	spentRaw, err := requireField(recordTypeBalance, fields, "spent")
	if err != nil {
		return BalanceRecord{}, err
	}
	spent, err := strconv.ParseBool(spentRaw)
	if err != nil {
		return BalanceRecord{}, fmt.Errorf("balance record: invalid spent flag %q", spentRaw)
	}
	return BalanceRecord{Owner: owner, Amount: amount, Asset: asset, Spent: spent}, nil
}

func parseReceiptFields(typeName string, fields map[string]string) (owner, commitment string, amount uint64, err error) {
	owner, err = requireField(typeName, fields, "owner")
	if err != nil {
		return "", "", 0, err
	}
	commitment, err = requireField(typeName, fields, "commitment")
	if err != nil {
		return "", "", 0, err
	}
	commitment = strings.TrimSuffix(commitment, "field")
	amount, err = parseAmountField(typeName, fields)
	if err != nil {
		return "", "", 0, err
	}
	return owner, commitment, amount, nil
}

func requireField(typeName string, fields map[string]string, key string) (string, error) {
	v, ok := fields[key]
	if !ok || v == "" {
		return "", fmt.Errorf("%s record: missing field %q", typeName, key)
	}
	return v, nil
}

func parseAmountField(typeName string, fields map[string]string) (uint64, error) {
	raw, err := requireField(typeName, fields, "amount")
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(strings.TrimSuffix(raw, "u64"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s record: invalid amount %q", typeName, raw)
	}
	return n, nil
}

// parseAssetCode maps the on-chain asset discriminator to an AssetKind.
func parseAssetCode(raw string) (AssetKind, error) {
	switch strings.TrimSuffix(raw, "u8") {
	case "0":
		return AssetPrimary, nil
	case "1":
		return AssetWrappedStable, nil
	default:
		return "", fmt.Errorf("unknown asset code %q", raw)
	}
}

// AssetCode is the inverse of parseAssetCode, used when building transition
// inputs.
func AssetCode(kind AssetKind) string {
	if kind == AssetWrappedStable {
		return "1u8"
	}
	return "0u8"
}
