package nem

import (
	"encoding/hex"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// NemesisUnix is the unix time of the NEM nemesis block (2015-03-29 00:06:25 UTC).
// Transaction timestamps are offsets in seconds from this instant.
const NemesisUnix int64 = 1427587585

// MicroUnits is the number of micro-units in one XEM.
const MicroUnits int64 = 1_000_000

// xemDivisibility is the number of decimal places carried by XEM amounts.
const xemDivisibility int32 = 6

// TransactionType is the NIS numeric transaction type.
type TransactionType int

const (
	TypeUnknown              TransactionType = 0
	TypeTransfer             TransactionType = 257
	TypeImportanceTransfer   TransactionType = 2049
	TypeMultisigModification TransactionType = 4097
	TypeMultisigSignature    TransactionType = 4098
	TypeMultisig             TransactionType = 4100
)

// ParseTransactionType maps a raw NIS type to a known TransactionType.
// Unrecognized values map to TypeUnknown.
func ParseTransactionType(raw int) TransactionType {
	switch t := TransactionType(raw); t {
	case TypeTransfer, TypeImportanceTransfer, TypeMultisigModification, TypeMultisigSignature, TypeMultisig:
		return t
	default:
		return TypeUnknown
	}
}

func (t TransactionType) String() string {
	switch t {
	case TypeTransfer:
		return "Transfer"
	case TypeImportanceTransfer:
		return "Importance"
	case TypeMultisigModification:
		return "MultiSig Modification"
	case TypeMultisigSignature:
		return "MultiSig Signature"
	case TypeMultisig:
		return "MultiSig"
	default:
		return "Unknown"
	}
}

// Kind tags the two transaction shapes returned by NIS.
type Kind int

const (
	// KindRegular is a plain transaction whose fields are the payload.
	KindRegular Kind = iota
	// KindMultisig wraps an inner transaction that carries the payload.
	KindMultisig
)

// MessageType is the NIS message type.
type MessageType int

const (
	MessagePlain     MessageType = 1
	MessageEncrypted MessageType = 2
)

// EncryptedPlaceholder is shown in place of an encrypted message body.
const EncryptedPlaceholder = "[encrypted message]"

// Message is an optional transfer message. Payload is hex encoded.
type Message struct {
	Type    MessageType `json:"type"`
	Payload string      `json:"payload"`
}

// MosaicID identifies a mosaic by namespace and name.
type MosaicID struct {
	NamespaceID string `json:"namespaceId"`
	Name        string `json:"name"`
}

// NativeMosaic is the network currency, nem:xem.
var NativeMosaic = MosaicID{NamespaceID: "nem", Name: "xem"}

func (id MosaicID) String() string {
	return id.NamespaceID + ":" + id.Name
}

// Mosaic is a quantity of a mosaic, either attached to a transfer or held by an account.
type Mosaic struct {
	ID       MosaicID `json:"mosaicId"`
	Quantity int64    `json:"quantity"`
}

// Value returns the quantity scaled by 10^-divisibility.
func (m Mosaic) Value(divisibility int32) decimal.Decimal {
	return decimal.New(m.Quantity, -divisibility)
}

// TransferData is the effective payload of a transaction.
// For multisig wrappers this is the inner transaction.
type TransferData struct {
	Type      TransactionType
	TimeStamp int64
	Amount    *int64 // micro-units, nil when absent
	Fee       int64
	Signer    string
	Recipient string
	Mosaics   []Mosaic
	Message   *Message
}

// Transaction is a transaction as returned by the transfers endpoints.
// It is built fresh from each response and never mutated.
type Transaction struct {
	Hash   string
	Height int64
	Kind   Kind

	// Outer holds the fields of the transaction as listed. For a multisig
	// wrapper this is the wrapper itself; Inner holds the wrapped payload.
	Outer TransferData
	Inner *TransferData
}

// Payload returns the transaction's effective payload, unwrapping multisig.
func (t Transaction) Payload() TransferData {
	if t.Kind == KindMultisig && t.Inner != nil {
		return *t.Inner
	}
	return t.Outer
}

// Type returns the payload type.
func (t Transaction) Type() TransactionType {
	return t.Payload().Type
}

// Time returns the transaction time as UTC.
// The wrapper's timestamp is used, as that is when the transaction was announced.
func (t Transaction) Time() time.Time {
	return time.Unix(t.Outer.TimeStamp+NemesisUnix, 0).UTC()
}

// TotalAmount returns the transferred XEM: the payload amount plus any
// attached mosaic matching native, in whole units.
func (t Transaction) TotalAmount(native MosaicID) decimal.Decimal {
	p := t.Payload()
	var micro int64
	if p.Amount != nil {
		micro = *p.Amount
	}
	for _, m := range p.Mosaics {
		if m.ID == native {
			micro += m.Quantity
		}
	}
	return decimal.New(micro, -xemDivisibility)
}

// MessageText returns the plaintext message, a placeholder for encrypted
// messages, or "" when there is none.
func (t Transaction) MessageText() string {
	msg := t.Payload().Message
	if msg == nil || msg.Payload == "" {
		return ""
	}
	if msg.Type == MessageEncrypted {
		return EncryptedPlaceholder
	}
	raw, err := hex.DecodeString(msg.Payload)
	if err != nil || !utf8.Valid(raw) {
		// Not hex, or binary: show what the node gave us.
		return msg.Payload
	}
	return string(raw)
}

// NormalizeAddress strips dashes and surrounding whitespace and upper-cases the address.
func NormalizeAddress(address string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(address), "-", ""))
}
