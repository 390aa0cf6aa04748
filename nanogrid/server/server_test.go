package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arthur-debert/nanogrid/nanogrid/chooser"
	"github.com/arthur-debert/nanogrid/nanogrid/filter"
	"github.com/arthur-debert/nanogrid/nanogrid/store"
	"github.com/arthur-debert/nanogrid/testutil"
)

func newTestServer(t *testing.T) (*httptest.Server, *store.Store) {
	t.Helper()
	s, _ := testutil.LoadOrders(t)
	ch, err := chooser.New(chooser.Config{Bind: s})
	require.NoError(t, err)
	t.Cleanup(ch.Destroy)

	srv, err := New(Config{Store: s, Chooser: ch})
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return ts, s
}

func do(t *testing.T, method, url, body string) (int, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, []byte(buf.String())
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), "body: %s", data)
	return v
}

func recordIDs(page RecordsPage) []string {
	ids := make([]string, len(page.Records))
	for i, r := range page.Records {
		ids[i] = r.ID
	}
	return ids
}

func TestNewRequiresStore(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrStoreRequired)
}

func TestHealthz(t *testing.T) {
	ts, _ := newTestServer(t)
	status, body := do(t, http.MethodGet, ts.URL+"/healthz", "")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestFields(t *testing.T) {
	ts, _ := newTestServer(t)
	status, body := do(t, http.MethodGet, ts.URL+"/api/fields", "")
	require.Equal(t, http.StatusOK, status)

	fields := decode[[]map[string]any](t, body)
	require.Len(t, fields, 8)
	byName := map[string]map[string]any{}
	for _, f := range fields {
		byName[f["name"].(string)] = f
	}
	assert.Equal(t, "range", byName["priority"]["filterType"])
	assert.Equal(t, "collection", byName["tags"]["filterType"])
	assert.Equal(t, "Placed On", byName["placed"]["displayName"])
	assert.Equal(t, []any{"includes", "excludes"}, byName["tags"]["ops"])
}

func TestRecords(t *testing.T) {
	ts, _ := newTestServer(t)

	t.Run("all", func(t *testing.T) {
		status, body := do(t, http.MethodGet, ts.URL+"/api/records", "")
		require.Equal(t, http.StatusOK, status)
		page := decode[RecordsPage](t, body)
		assert.Equal(t, 8, page.Total)
		assert.Len(t, page.Records, 8)
		assert.NotZero(t, page.LastUpdated)
	})

	t.Run("paged", func(t *testing.T) {
		status, body := do(t, http.MethodGet, ts.URL+"/api/records?limit=3&offset=2", "")
		require.Equal(t, http.StatusOK, status)
		page := decode[RecordsPage](t, body)
		assert.Equal(t, 8, page.Total)
		assert.Equal(t, 2, page.Offset)
		assert.Equal(t, []string{"o3", "o4", "o5"}, recordIDs(page))
	})

	t.Run("offset past the end", func(t *testing.T) {
		_, body := do(t, http.MethodGet, ts.URL+"/api/records?offset=50", "")
		page := decode[RecordsPage](t, body)
		assert.Empty(t, page.Records)
	})
}

func TestFilterRoutes(t *testing.T) {
	ts, s := newTestServer(t)

	status, body := do(t, http.MethodGet, ts.URL+"/api/filter", "")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `null`, string(body))

	status, body = do(t, http.MethodPut, ts.URL+"/api/filter", `{"field":"status","op":"=","value":"open"}`)
	require.Equal(t, http.StatusOK, status, "body: %s", body)
	assert.JSONEq(t, `{"field":"status","op":"=","value":"open"}`, string(body))
	assert.Equal(t, []string{"o1", "o4", "o7"}, testutil.IDs(s.Records()))

	_, body = do(t, http.MethodGet, ts.URL+"/api/records", "")
	assert.Equal(t, []string{"o1", "o4", "o7"}, recordIDs(decode[RecordsPage](t, body)))

	t.Run("invalid filters are rejected", func(t *testing.T) {
		for _, payload := range []string{
			`{"field":"status","op":"~","value":"open"}`,
			`{"field":"nope","op":"=","value":1}`,
			`{not json`,
		} {
			status, body := do(t, http.MethodPut, ts.URL+"/api/filter", payload)
			assert.Equal(t, http.StatusBadRequest, status, "payload %s", payload)
			assert.Equal(t, "INVALID_FILTER", decode[map[string]string](t, body)["code"])
		}
		assert.Equal(t, []string{"o1", "o4", "o7"}, testutil.IDs(s.Records()))
	})

	t.Run("null clears", func(t *testing.T) {
		status, _ := do(t, http.MethodPut, ts.URL+"/api/filter", `null`)
		require.Equal(t, http.StatusOK, status)
		assert.Nil(t, s.Filter())
	})
}

func TestColumnRoutes(t *testing.T) {
	ts, s := newTestServer(t)
	require.NoError(t, s.SetFilter(filter.MustFieldFilter("region", filter.OpEq, "east")))

	t.Run("values ignore the column's own filter", func(t *testing.T) {
		status, body := do(t, http.MethodPut, ts.URL+"/api/columns/status/filter",
			`{"field":"status","op":"=","value":"open"}`)
		require.Equal(t, http.StatusOK, status, "body: %s", body)
		assert.Equal(t, []string{"o1"}, testutil.IDs(s.Records()))

		status, body = do(t, http.MethodGet, ts.URL+"/api/columns/status/values", "")
		require.Equal(t, http.StatusOK, status)
		values := decode[ColumnValues](t, body)
		assert.Equal(t, "status", values.Field)
		assert.Equal(t, []any{"closed", "open", "pending"}, values.Values)
		assert.Equal(t, 4, values.ValueCount)
		assert.JSONEq(t, `{"field":"status","op":"=","value":"open"}`, string(values.Filter))
	})

	t.Run("filters on other fields are rejected", func(t *testing.T) {
		status, body := do(t, http.MethodPut, ts.URL+"/api/columns/status/filter",
			`{"field":"region","op":"=","value":"west"}`)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "INVALID_FILTER", decode[map[string]string](t, body)["code"])
	})

	t.Run("delete keeps other columns", func(t *testing.T) {
		status, body := do(t, http.MethodDelete, ts.URL+"/api/columns/status/filter", "")
		require.Equal(t, http.StatusOK, status)
		assert.JSONEq(t, `{"field":"region","op":"=","value":"east"}`, string(body))
		assert.Equal(t, []string{"o1", "o3", "o5"}, testutil.IDs(s.Records()))
	})

	t.Run("unknown column", func(t *testing.T) {
		status, body := do(t, http.MethodGet, ts.URL+"/api/columns/nope/values", "")
		assert.Equal(t, http.StatusNotFound, status)
		assert.Equal(t, "UNKNOWN_FIELD", decode[map[string]string](t, body)["code"])
	})
}

func TestSuggest(t *testing.T) {
	ts, _ := newTestServer(t)

	status, body := do(t, http.MethodGet, ts.URL+"/api/suggest?q=acm", "")
	require.Equal(t, http.StatusOK, status)
	opts := decode[[]map[string]any](t, body)
	require.Len(t, opts, 1)
	assert.Equal(t, "Customer = Acme", opts[0]["label"])
	assert.Equal(t, "filter", opts[0]["type"])

	_, body = do(t, http.MethodGet, ts.URL+"/api/suggest?q=zzz", "")
	assert.JSONEq(t, `[]`, string(body))

	t.Run("disabled without a chooser", func(t *testing.T) {
		s, _ := testutil.LoadOrders(t)
		srv, err := New(Config{Store: s})
		require.NoError(t, err)
		defer srv.Close()

		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/suggest?q=a", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

// readUntil reads events until one of type typ arrives, returning it and
// the types seen on the way
func readUntil(t *testing.T, ctx context.Context, conn *websocket.Conn, typ string) (map[string]any, []string) {
	t.Helper()
	var seen []string
	for {
		var ev map[string]any
		require.NoError(t, wsjson.Read(ctx, conn, &ev))
		seen = append(seen, ev["type"].(string))
		if ev["type"] == typ {
			return ev, seen
		}
	}
}

func TestStream(t *testing.T) {
	ts, s := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/api/ws", nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	snap, _ := readUntil(t, ctx, conn, EventSnapshot)
	data := snap["data"].(map[string]any)
	assert.Len(t, data["fields"], 8)
	assert.Nil(t, data["filter"])
	assert.EqualValues(t, 8, data["records"].(map[string]any)["total"])

	t.Run("client sets the filter", func(t *testing.T) {
		require.NoError(t, wsjson.Write(ctx, conn, ClientMessage{
			Type: "setFilter",
			ID:   "1",
			Data: json.RawMessage(`{"field":"rush","op":"=","value":true}`),
		}))
		ev, seen := readUntil(t, ctx, conn, EventRecords)
		assert.Contains(t, seen, EventFilter)
		assert.EqualValues(t, 2, ev["data"].(map[string]any)["total"])
		assert.Equal(t, []string{"o1", "o4"}, testutil.IDs(s.Records()))
	})

	t.Run("store changes are pushed", func(t *testing.T) {
		require.NoError(t, s.SetFilter(nil))
		ev, _ := readUntil(t, ctx, conn, EventRecords)
		assert.EqualValues(t, 8, ev["data"].(map[string]any)["total"])
	})

	t.Run("column filter", func(t *testing.T) {
		require.NoError(t, wsjson.Write(ctx, conn, ClientMessage{
			Type: "setColumnFilter",
			ID:   "2",
			Data: json.RawMessage(`{"field":"region","filter":{"field":"region","op":"=","value":"north"}}`),
		}))
		ev, _ := readUntil(t, ctx, conn, EventFilter)
		assert.Equal(t, map[string]any{"field": "region", "op": "=", "value": "north"}, ev["data"])
	})

	t.Run("errors echo the request id", func(t *testing.T) {
		require.NoError(t, wsjson.Write(ctx, conn, ClientMessage{
			Type: "setFilter",
			ID:   "3",
			Data: json.RawMessage(`{"field":"status","op":"~"}`),
		}))
		ev, _ := readUntil(t, ctx, conn, EventError)
		assert.Equal(t, "3", ev["requestId"])
		assert.Equal(t, "INVALID_FILTER", ev["data"].(map[string]any)["code"])

		require.NoError(t, wsjson.Write(ctx, conn, ClientMessage{Type: "bogus", ID: "4"}))
		ev, _ = readUntil(t, ctx, conn, EventError)
		assert.Equal(t, "4", ev["requestId"])
		assert.Equal(t, "UNKNOWN_TYPE", ev["data"].(map[string]any)["code"])
	})

	t.Run("ping", func(t *testing.T) {
		require.NoError(t, wsjson.Write(ctx, conn, ClientMessage{Type: "ping", ID: "5"}))
		ev, _ := readUntil(t, ctx, conn, EventPong)
		assert.Equal(t, "5", ev["requestId"])
	})

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, ""))
}
