package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postbot/internal/storage"
	kit "postbot/internal/transport"
	"postbot/internal/trigger"
	logx "postbot/pkg/logx"
)

const validTrigger = `{"kind":"datetime","repeat":true,"startDate":"2024-01-10","timeOfDay":"09:00","repeatIntervalDays":3,"completed":false}`

func newTestRouter(t *testing.T, cfg Config) (http.Handler, storage.Store) {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	st := storage.NewMemory()
	t.Cleanup(func() { _ = st.Close() })
	deps := Deps{
		Store:    st,
		Registry: trigger.Default(loc),
		Health:   func() any { return map[string]bool{"scheduler": true} },
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("metrics"))
		}),
	}
	return NewRouter(cfg, deps, logx.Nop()), st
}

func do(t *testing.T, h http.Handler, method, path, body string, hdr ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func postBody(token, room, trig string) string {
	b, _ := json.Marshal(map[string]any{
		"api_token":   token,
		"room_id":     room,
		"body":        "hello",
		"self_unread": true,
		"trigger":     json.RawMessage(trig),
	})
	return string(b)
}

func TestCreateGetListDelete(t *testing.T) {
	h, st := newTestRouter(t, Config{})

	rec := do(t, h, http.MethodPost, "/api/posts", postBody("tok-a", "room1", validTrigger))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created postView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotZero(t, created.ID)
	assert.Equal(t, "datetime", created.Kind)
	assert.Equal(t, "Post at a given date and time", created.Label)
	assert.Equal(t, "/api/posts/1", rec.Header().Get("Location"))

	stored, err := st.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.JSONEq(t, validTrigger, stored.Trigger)
	assert.Equal(t, kit.Post{APIToken: "tok-a", RoomID: "room1", Body: "hello", SelfUnread: true}, stored.Post)

	rec = do(t, h, http.MethodPost, "/api/posts", postBody("tok-b", "room2", validTrigger))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/posts?api_token=tok-a", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []postView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "room1", list[0].Post.RoomID)

	rec = do(t, h, http.MethodGet, "/api/posts", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 2)

	rec = do(t, h, http.MethodGet, "/api/posts/1", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodDelete, "/api/posts/1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, h, http.MethodGet, "/api/posts/1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, h, http.MethodDelete, "/api/posts/1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReplacePost(t *testing.T) {
	h, st := newTestRouter(t, Config{})
	rec := do(t, h, http.MethodPost, "/api/posts", postBody("tok", "room", validTrigger))
	require.Equal(t, http.StatusCreated, rec.Code)

	cron := `{"kind":"cron","expr":"0 9 * * 1","anchor":"2024-01-10T09:00:00+09:00","completed":false}`
	rec = do(t, h, http.MethodPut, "/api/posts/1", postBody("tok", "room9", cron))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got, err := st.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "room9", got.Post.RoomID)
	assert.Contains(t, got.Trigger, `"kind":"cron"`)

	rec = do(t, h, http.MethodPut, "/api/posts/42", postBody("tok", "room", validTrigger))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateRejectsBadInput(t *testing.T) {
	h, _ := newTestRouter(t, Config{})

	cases := map[string]struct {
		body string
		code int
	}{
		"not json":        {`{`, http.StatusBadRequest},
		"empty":           {``, http.StatusBadRequest},
		"unknown field":   {`{"room_id":"r","body":"b","trigger":{},"extra":1}`, http.StatusBadRequest},
		"missing room":    {postBody("t", "", validTrigger), http.StatusBadRequest},
		"missing trigger": {`{"room_id":"r","body":"b"}`, http.StatusBadRequest},
		"unknown kind":    {postBody("t", "r", `{"kind":"weather"}`), http.StatusUnprocessableEntity},
		"malformed blob":  {postBody("t", "r", `{"kind":"datetime"}`), http.StatusUnprocessableEntity},
		"bad time":        {postBody("t", "r", strings.Replace(validTrigger, "09:00", "9am", 1)), http.StatusUnprocessableEntity},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/posts", tc.body)
			assert.Equal(t, tc.code, rec.Code, rec.Body.String())
			var eb errorBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &eb))
			assert.NotEmpty(t, eb.Error)
		})
	}

	rec := do(t, h, http.MethodGet, "/api/posts/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTriggerKindsAndHealth(t *testing.T) {
	h, _ := newTestRouter(t, Config{})

	rec := do(t, h, http.MethodGet, "/api/trigger-kinds", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var kinds []kindView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &kinds))
	assert.Equal(t, []kindView{
		{Kind: "cron", Label: "Post on a cron schedule"},
		{Kind: "datetime", Label: "Post at a given date and time"},
		{Kind: "dayslater", Label: "Post N days later at a given time"},
	}, kinds)

	rec = do(t, h, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"scheduler":true`)

	rec = do(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, "metrics", rec.Body.String())
}

func TestTriggerTemplateCanBeRegistered(t *testing.T) {
	h, st := newTestRouter(t, Config{})

	for _, kind := range []string{"datetime", "dayslater", "cron"} {
		rec := do(t, h, http.MethodGet, "/api/trigger-kinds/"+kind, "")
		require.Equal(t, http.StatusOK, rec.Code, kind)
		var tmpl kindTemplate
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tmpl))
		assert.Equal(t, kind, tmpl.Kind)
		assert.NotEmpty(t, tmpl.Label)
		assert.Contains(t, string(tmpl.Trigger), `"kind":"`+kind+`"`)

		body := `{"api_token":"tok","room_id":"1","body":"hi","trigger":` + string(tmpl.Trigger) + `}`
		assert.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/api/posts", body).Code, kind)
	}
	recs, err := st.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, recs, 3)

	rec := do(t, h, http.MethodGet, "/api/trigger-kinds/weekly", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown trigger kind")
}

func TestBearerAuth(t *testing.T) {
	h, _ := newTestRouter(t, Config{Token: "s3cret"})

	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/api/posts", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/api/posts", "", "Authorization", "Bearer nope").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/posts", "", "Authorization", "Bearer s3cret").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/posts?token=s3cret", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/metrics", "").Code)
	// Health stays open.
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/healthz", "").Code)
}

func TestCORSPreflight(t *testing.T) {
	h, _ := newTestRouter(t, Config{AllowedOrigins: []string{"https://ui.example"}})
	rec := do(t, h, http.MethodOptions, "/api/posts", "",
		"Origin", "https://ui.example",
		"Access-Control-Request-Method", "POST",
	)
	assert.Equal(t, "https://ui.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServerLifecycle(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	st := storage.NewMemory()
	defer st.Close()
	srv := NewServer(Config{}, Deps{Store: st, Registry: trigger.Default(loc)}, logx.Nop())

	ctx := context.Background()
	require.NoError(t, srv.Reconfigure(ctx, Config{Enabled: true, Addr: "127.0.0.1:0"}))
	addr := srv.Addr()
	require.NotEmpty(t, addr)

	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Unchanged config keeps the listener.
	require.NoError(t, srv.Reconfigure(ctx, Config{Enabled: true, Addr: "127.0.0.1:0"}))
	assert.Equal(t, addr, srv.Addr())

	require.NoError(t, srv.Reconfigure(ctx, Config{Enabled: false}))
	assert.Empty(t, srv.Addr())

	err = srv.Reconfigure(ctx, Config{Enabled: true, Addr: "0.0.0.0:0"})
	assert.Error(t, err)
	assert.Empty(t, srv.Addr())
}
