package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAddress = "NALICELGU3IVY4DPJKHYLSSVYFFWYS5QPLYEZDJJ"

func TestSettingsSet_OnlySendsGivenFlags(t *testing.T) {
	var got map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/v1/settings", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"address":      testAddress,
			"harvest_node": "",
		})
	}))
	defer server.Close()

	err := testApp(settingsCommands()).Run([]string{
		"nemnotify", "--server-url", server.URL,
		"settings", "set", "--address", testAddress, "--harvest-node", "",
	})
	require.NoError(t, err)

	assert.Equal(t, testAddress, got["address"])
	assert.Contains(t, got, "harvest_node", "an explicit empty value clears the field")
	assert.Equal(t, "", got["harvest_node"])
	assert.NotContains(t, got, "harvest_remote")
}

func TestSettingsSet_RequiresAFlag(t *testing.T) {
	err := testApp(settingsCommands()).Run([]string{"nemnotify", "settings", "set"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nothing to change")
}

func TestSettingsGet_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "store unavailable"})
	}))
	defer server.Close()

	err := testApp(settingsCommands()).Run([]string{"nemnotify", "--server-url", server.URL, "settings", "get"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to get settings")
}

func TestTransactionsCommand(t *testing.T) {
	var query map[string][]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/transactions/"+testAddress, r.URL.Path)
		query = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"address":   testAddress,
			"direction": "outgoing",
			"transactions": []map[string]interface{}{
				{"hash": "h2", "amount": "5.000000", "timestamp": "2024-03-01T12:00:00Z"},
				{"hash": "h1", "amount": "1.000000", "timestamp": "2024-03-01T11:00:00Z"},
			},
			"marker": "h2",
			"pages":  1,
			"stop":   "short_page",
		})
	}))
	defer server.Close()

	err := testApp(transactionsCommand()).Run([]string{
		"nemnotify", "--server-url", server.URL, "--json",
		"transactions", "--outgoing", "--marker", "h0", "--jq", `(.amount | tonumber) > 2`, testAddress,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"outgoing"}, query["direction"])
	assert.Equal(t, []string{"h0"}, query["marker"])
}

func TestTransactionsCommand_Errors(t *testing.T) {
	err := testApp(transactionsCommand()).Run([]string{"nemnotify", "transactions"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "address is required")

	err = testApp(transactionsCommand()).Run([]string{"nemnotify", "transactions", "--jq", ".[", testAddress})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jq filter")
}

func TestMosaicCommand(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/mosaics/"+testAddress, r.URL.Path)
		assert.Equal(t, "nemry", r.URL.Query().Get("namespace"))
		assert.Equal(t, "points", r.URL.Query().Get("name"))
		assert.Equal(t, "2", r.URL.Query().Get("divisibility"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"address":   testAddress,
			"namespace": "nemry",
			"name":      "points",
			"known":     true,
			"quantity":  "12.34",
		})
	}))
	defer server.Close()

	err := testApp(mosaicCommand()).Run([]string{
		"nemnotify", "--server-url", server.URL,
		"mosaic", "--divisibility", "2", testAddress, "nemry:points",
	})
	require.NoError(t, err)
}

func TestMosaicCommand_BadMosaicID(t *testing.T) {
	err := testApp(mosaicCommand()).Run([]string{"nemnotify", "mosaic", testAddress, "points"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "namespace:name")
}

func TestScheduleCommands(t *testing.T) {
	var methods []string
	var body map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/schedules", r.URL.Path)
		methods = append(methods, r.Method)
		switch r.Method {
		case http.MethodPut:
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"scheduled"}`))
		case http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer server.Close()

	app := testApp(scheduleCommands())
	require.NoError(t, app.Run([]string{"nemnotify", "--server-url", server.URL, "schedule", "set", "--interval", "30m", "--notify-on-first-run"}))
	require.NoError(t, app.Run([]string{"nemnotify", "--server-url", server.URL, "schedule", "delete"}))

	assert.Equal(t, []string{http.MethodPut, http.MethodDelete}, methods)
	assert.Equal(t, "30m0s", body["interval"])
	assert.Equal(t, true, body["notify_on_first_run"])
}
