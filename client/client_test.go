package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAddress = "NALICELGU3IVY4DPJKHYLSSVYFFWYS5QPLYEZDJJ"

func TestGetSettings_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GET", r.Method)
		assert.Equal(t, "/api/v1/settings", r.URL.Path)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"address": testAddress,
			"network": "mainnet",
			"marker":  "h1",
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	s, err := client.GetSettings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testAddress, s.Address)
	assert.Equal(t, "mainnet", s.Network)
	assert.Equal(t, "h1", s.Marker)
}

func TestUpdateSettings_SendsOnlySetFields(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "PUT", r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, testAddress, body["address"])
		_, hasNode := body["harvest_node"]
		assert.False(t, hasNode)

		json.NewEncoder(w).Encode(map[string]interface{}{"address": testAddress})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	address := testAddress
	s, err := client.UpdateSettings(context.Background(), SettingsUpdate{Address: &address})
	require.NoError(t, err)
	assert.Equal(t, testAddress, s.Address)
}

func TestUpdateSettings_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"error": "invalid address format: must be 40 base32 characters",
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	address := "nope"
	_, err := client.UpdateSettings(context.Background(), SettingsUpdate{Address: &address})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid address format")
}

func TestMosaicQuantity(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/mosaics/"+testAddress, r.URL.Path)
		assert.Equal(t, "acme", r.URL.Query().Get("namespace"))
		assert.Equal(t, "coin", r.URL.Query().Get("name"))
		assert.Equal(t, "3", r.URL.Query().Get("divisibility"))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"address":  testAddress,
			"known":    true,
			"quantity": "1.234",
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	m, err := client.MosaicQuantity(context.Background(), testAddress, "acme", "coin", 3)
	require.NoError(t, err)
	assert.True(t, m.Known)
	require.NotNil(t, m.Quantity)
	assert.Equal(t, "1.234", *m.Quantity)
}

func TestMosaicQuantity_Unknown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"known":false,"quantity":null}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	m, err := client.MosaicQuantity(context.Background(), testAddress, "acme", "coin", 0)
	require.NoError(t, err)
	assert.False(t, m.Known)
	assert.Nil(t, m.Quantity)
}

func TestHarvesting(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/harvesting", r.URL.Path)
		assert.Equal(t, "node.example", r.URL.Query().Get("node"))
		assert.Empty(t, r.URL.Query().Get("remote"))

		w.Write([]byte(`{"remote":"NREMOTE","active":false,"status":"","last_error":"no node reachable"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	h, err := client.Harvesting(context.Background(), "", "node.example")
	require.NoError(t, err)
	assert.False(t, h.Active)
	assert.Equal(t, "no node reachable", h.LastError)
}

func TestTransactions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/transactions/"+testAddress, r.URL.Path)
		assert.Equal(t, "h1", r.URL.Query().Get("marker"))
		assert.Equal(t, "outgoing", r.URL.Query().Get("direction"))

		w.Write([]byte(`{
			"address": "` + testAddress + `",
			"direction": "outgoing",
			"transactions": [{"hash":"h3","amount":"2.5"},{"hash":"h2","amount":"1"}],
			"marker": "h3",
			"pages": 1,
			"stop": "marker"
		}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	list, err := client.Transactions(context.Background(), testAddress, "h1", "outgoing")
	require.NoError(t, err)
	require.Len(t, list.Transactions, 2)
	assert.Equal(t, "h3", list.Transactions[0].Hash)
	assert.Equal(t, "2.5", list.Transactions[0].Amount)
	assert.Equal(t, "h3", list.Marker)
	assert.Equal(t, "marker", list.Stop)
}

func TestNotifications(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "harvesting", r.URL.Query().Get("kind"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))

		w.Write([]byte(`{"notifications":[{"id":7,"kind":"harvesting","subject":"NEM Harvesting Stopped for: NREMOTE"}]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	items, err := client.Notifications(context.Background(), "harvesting", 5)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, int64(7), items[0].ID)
}

func TestSchedules(t *testing.T) {
	var calls []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method)
		assert.Equal(t, "/api/v1/schedules", r.URL.Path)
		switch r.Method {
		case "PUT":
			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "1h0m0s", body["interval"])
			assert.Equal(t, false, body["notify_on_first_run"])
			w.Write([]byte(`{}`))
		case "DELETE":
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	require.NoError(t, client.UpsertSchedules(context.Background(), time.Hour, false))
	require.NoError(t, client.DeleteSchedules(context.Background()))
	assert.Equal(t, []string{"PUT", "DELETE"}, calls)
}

func TestNonJSONError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream down"))
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	_, err := client.GetSettings(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
	assert.Contains(t, err.Error(), "upstream down")
}
