package nem

import (
	"encoding/json"
	"fmt"
)

// Wire formats of the NIS responses. These stay private; callers only see
// the domain types in types.go.

type listEnvelope struct {
	Data *[]json.RawMessage `json:"data"`
}

type wireHash struct {
	Data string `json:"data"`
}

type wireMeta struct {
	Hash   wireHash `json:"hash"`
	Height int64    `json:"height"`
	ID     int64    `json:"id"`
}

type wireTransaction struct {
	Type       int              `json:"type"`
	TimeStamp  int64            `json:"timeStamp"`
	Amount     *int64           `json:"amount"`
	Fee        int64            `json:"fee"`
	Signer     string           `json:"signer"`
	Recipient  string           `json:"recipient"`
	Mosaics    []Mosaic         `json:"mosaics"`
	Message    *Message         `json:"message"`
	OtherTrans *wireTransaction `json:"otherTrans"`
}

type wireTransactionMetaPair struct {
	Meta        wireMeta        `json:"meta"`
	Transaction wireTransaction `json:"transaction"`
}

type wireAccountStatus struct {
	Status       *string `json:"status"`
	RemoteStatus string  `json:"remoteStatus"`
}

// decodeList decodes a {"data": [...]} envelope. A missing data field is a
// bad response; an empty array is a valid empty list.
func decodeList(body []byte) ([]json.RawMessage, error) {
	var env listEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: decoding envelope: %v", ErrBadResponse, err)
	}
	if env.Data == nil {
		return nil, fmt.Errorf("%w: missing data field", ErrBadResponse)
	}
	return *env.Data, nil
}

// parseTransactions decodes a transfers page into domain transactions, preserving order.
func parseTransactions(body []byte) ([]Transaction, error) {
	items, err := decodeList(body)
	if err != nil {
		return nil, err
	}
	txns := make([]Transaction, 0, len(items))
	for i, raw := range items {
		var pair wireTransactionMetaPair
		if err := json.Unmarshal(raw, &pair); err != nil {
			return nil, fmt.Errorf("%w: decoding transaction %d: %v", ErrBadResponse, i, err)
		}
		if pair.Meta.Hash.Data == "" {
			return nil, fmt.Errorf("%w: transaction %d has no hash", ErrBadResponse, i)
		}
		txns = append(txns, transactionToDomain(pair))
	}
	return txns, nil
}

func transactionToDomain(pair wireTransactionMetaPair) Transaction {
	txn := Transaction{
		Hash:   pair.Meta.Hash.Data,
		Height: pair.Meta.Height,
		Kind:   KindRegular,
		Outer:  transferToDomain(pair.Transaction),
	}
	if inner := pair.Transaction.OtherTrans; inner != nil {
		txn.Kind = KindMultisig
		data := transferToDomain(*inner)
		txn.Inner = &data
	}
	return txn
}

func transferToDomain(w wireTransaction) TransferData {
	return TransferData{
		Type:      ParseTransactionType(w.Type),
		TimeStamp: w.TimeStamp,
		Amount:    w.Amount,
		Fee:       w.Fee,
		Signer:    w.Signer,
		Recipient: w.Recipient,
		Mosaics:   w.Mosaics,
		Message:   w.Message,
	}
}

// parseMosaics decodes a mosaic holdings list.
func parseMosaics(body []byte) ([]Mosaic, error) {
	items, err := decodeList(body)
	if err != nil {
		return nil, err
	}
	mosaics := make([]Mosaic, 0, len(items))
	for i, raw := range items {
		var m Mosaic
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("%w: decoding mosaic %d: %v", ErrBadResponse, i, err)
		}
		mosaics = append(mosaics, m)
	}
	return mosaics, nil
}

// parseAccountStatus extracts the status field from an account status response.
func parseAccountStatus(body []byte) (string, error) {
	var w wireAccountStatus
	if err := json.Unmarshal(body, &w); err != nil {
		return "", fmt.Errorf("%w: decoding account status: %v", ErrBadResponse, err)
	}
	if w.Status == nil {
		return "", fmt.Errorf("%w: missing status field", ErrBadResponse)
	}
	return *w.Status, nil
}
