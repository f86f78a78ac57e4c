package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadEvents(t *testing.T) {
	stream := strings.Join([]string{
		`event: connected`,
		`data: {"subject":"nem.payments.*"}`,
		``,
		`: keepalive`,
		``,
		`event: payment`,
		`data: {"hash":"abc","amount":"1.000000"}`,
		``,
		`event: harvesting`,
		`data: {"remote":"NREMOTE","active":false}`,
		``,
	}, "\n")

	var events []string
	err := readEvents(strings.NewReader(stream), func(event, data string) {
		events = append(events, event+"|"+data)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		`connected|{"subject":"nem.payments.*"}`,
		`payment|{"hash":"abc","amount":"1.000000"}`,
		`harvesting|{"remote":"NREMOTE","active":false}`,
	}, events)
}

func TestHandleSSEEvent(t *testing.T) {
	tests := []struct {
		name       string
		event      string
		data       string
		jsonOutput bool
		contains   string
		expectErr  bool
	}{
		{
			name:     "payment",
			event:    "payment",
			data:     `{"hash":"abc","address":"NALICE","amount":"2.500000","signer":"key","multisig":true,"message":"thanks","timestamp":"2024-03-01T12:00:00Z"}`,
			contains: "2.500000 XEM to NALICE from key (multisig)",
		},
		{
			name:     "inactive harvesting",
			event:    "harvesting",
			data:     `{"remote":"NREMOTE","node":"alice2.nem.ninja:7890","active":false,"last_error":"timeout","published_at":"2024-03-01T12:00:00Z"}`,
			contains: "NREMOTE is NOT harvesting on alice2.nem.ninja:7890 (timeout)",
		},
		{
			name:       "json passthrough",
			event:      "payment",
			data:       `{"hash":"abc"}`,
			jsonOutput: true,
			contains:   `{"hash":"abc"}`,
		},
		{
			name:      "malformed payment",
			event:     "payment",
			data:      `not-json`,
			expectErr: true,
		},
		{
			name:      "unknown event",
			event:     "mystery",
			data:      `{}`,
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			err := handleSSEEvent(&buf, tt.event, tt.data, tt.jsonOutput)
			if tt.expectErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Contains(t, buf.String(), tt.contains)
		})
	}
}

func TestStreamCommand_RejectsBadKind(t *testing.T) {
	err := testApp(streamCommand()).Run([]string{"nemnotify", "stream", "blocks"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "payments or harvesting")
}
