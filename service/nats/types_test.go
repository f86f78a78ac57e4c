package nats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/nemnotify/service/nem"
	"github.com/brojonat/nemnotify/service/notify"
)

func TestFromPaymentReport(t *testing.T) {
	amount := int64(2500000)
	report := &notify.PaymentReport{
		Address: "TALICE",
		Transactions: []nem.Transaction{
			{
				Hash:  "newer",
				Kind:  nem.KindMultisig,
				Outer: nem.TransferData{Type: nem.TypeMultisig, TimeStamp: 120},
				Inner: &nem.TransferData{Type: nem.TypeTransfer, Amount: &amount, Signer: "cosigned"},
			},
			{
				Hash:  "older",
				Outer: nem.TransferData{Type: nem.TypeTransfer, TimeStamp: 60, Signer: "bob"},
			},
		},
	}

	events := FromPaymentReport(report)
	require.Len(t, events, 2)

	assert.Equal(t, "older", events[0].Hash)
	assert.Equal(t, "0", events[0].Amount)
	assert.False(t, events[0].Multisig)

	assert.Equal(t, "newer", events[1].Hash)
	assert.Equal(t, "2.5", events[1].Amount)
	assert.True(t, events[1].Multisig)
	assert.Equal(t, "cosigned", events[1].Signer)
	assert.Equal(t, "Transfer", events[1].Type)
	assert.Equal(t, int64(nem.NemesisUnix+120), events[1].Timestamp.Unix())
	assert.Equal(t, "TALICE", events[1].Address)
}

func TestFromHarvestingReport(t *testing.T) {
	event := FromHarvestingReport(&notify.HarvestingReport{
		Remote:    "TREMOTE",
		Node:      "alice2.nem.ninja",
		LastError: "status 503",
	})

	assert.Equal(t, "TREMOTE", event.Remote)
	assert.False(t, event.Active)
	assert.Equal(t, "status 503", event.LastError)
	assert.False(t, event.PublishedAt.IsZero())
}

func TestSubjects(t *testing.T) {
	assert.Equal(t, "nem.payments.TALICE", PaymentSubject("TALICE"))
	assert.Equal(t, "nem.harvesting.TREMOTE", HarvestingSubject("TREMOTE"))
}
