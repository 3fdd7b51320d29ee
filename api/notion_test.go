package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikolang/niko/internal/config"
	"github.com/nikolang/niko/internal/log"
	"github.com/nikolang/niko/internal/notion"
)

// newNotionTestServer returns a fake Notion backend plus the handler
// mux wired to it. failFrom, when positive, makes the Nth and later
// page-create calls fail.
func newNotionTestServer(t *testing.T, failFrom int64) (*http.ServeMux, *atomic.Int64) {
	t.Helper()

	var calls atomic.Int64
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/query") {
			_ = json.NewEncoder(w).Encode(notion.QueryDatabaseResponse{
				Object: "list",
				Results: []notion.Page{{
					Object: "page",
					ID:     "p1",
					Properties: map[string]notion.Property{
						"word":    {Title: []notion.RichText{{PlainText: "사과"}}},
						"meaning": {RichTextValues: []notion.RichText{{PlainText: "apple"}}},
					},
				}},
			})
			return
		}
		if n := calls.Add(1); failFrom > 0 && n >= failFrom {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(backend.Close)

	sink := notion.NewSink(log.NewNop(), notion.WithBaseURL(backend.URL))
	mux := http.NewServeMux()
	NewNotionHandler(sink, nil, log.NewNop()).RegisterRoutes(mux)
	return mux, &calls
}

func postNotion(t *testing.T, mux *http.ServeMux, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/notion", strings.NewReader(body))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decodeSaveResponse(t *testing.T, w *httptest.ResponseRecorder) SaveResponse {
	t.Helper()
	var resp SaveResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), "body: %s", w.Body.String())
	return resp
}

func TestNotionHandlerSave(t *testing.T) {
	t.Parallel()

	t.Run("single word", func(t *testing.T) {
		t.Parallel()
		mux, calls := newNotionTestServer(t, 0)

		w := postNotion(t, mux, `{
			"token": "tok", "databaseId": "db", "type": "word",
			"data": {"word": "사과", "meaning": "apple", "example": "사과를 먹어요."}
		}`)

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		resp := decodeSaveResponse(t, w)
		assert.True(t, resp.OK)
		assert.Equal(t, 1, resp.Saved)
		assert.Equal(t, int64(1), calls.Load())
	})

	t.Run("word batch", func(t *testing.T) {
		t.Parallel()
		mux, calls := newNotionTestServer(t, 0)

		w := postNotion(t, mux, `{
			"token": "tok", "databaseId": "db", "type": "word",
			"data": {"words": [{"word": "사과"}, {"word": "바다"}]}
		}`)

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		resp := decodeSaveResponse(t, w)
		assert.True(t, resp.OK)
		assert.Equal(t, 2, resp.Saved)
		assert.Equal(t, int64(2), calls.Load())
	})

	t.Run("partial batch failure reports saved count", func(t *testing.T) {
		t.Parallel()
		mux, _ := newNotionTestServer(t, 2)

		w := postNotion(t, mux, `{
			"token": "tok", "databaseId": "db", "type": "word",
			"data": {"words": [{"word": "사과"}, {"word": "바다"}]}
		}`)

		require.Equal(t, http.StatusBadGateway, w.Code)
		resp := decodeSaveResponse(t, w)
		assert.False(t, resp.OK)
		assert.Equal(t, 1, resp.Saved, "first entry succeeded before the failure")
	})

	t.Run("sentence", func(t *testing.T) {
		t.Parallel()
		mux, _ := newNotionTestServer(t, 0)

		w := postNotion(t, mux, `{
			"token": "tok", "databaseId": "db", "type": "sentence",
			"data": {"sentence": "시간이 약이다", "meaning": "time heals", "key_phrases": "시간"}
		}`)

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		resp := decodeSaveResponse(t, w)
		assert.True(t, resp.OK)
		assert.Equal(t, 1, resp.Saved)
	})

	t.Run("missing token is 400 with no backend call", func(t *testing.T) {
		t.Parallel()
		mux, calls := newNotionTestServer(t, 0)

		w := postNotion(t, mux, `{
			"databaseId": "db", "type": "word",
			"data": {"word": "사과"}
		}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, int64(0), calls.Load())
	})

	t.Run("unknown type is 400", func(t *testing.T) {
		t.Parallel()
		mux, _ := newNotionTestServer(t, 0)

		w := postNotion(t, mux, `{"token": "tok", "databaseId": "db", "type": "poem", "data": {}}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestNotionHandlerListWords(t *testing.T) {
	t.Parallel()

	t.Run("returns words", func(t *testing.T) {
		t.Parallel()
		mux, _ := newNotionTestServer(t, 0)

		req := httptest.NewRequest(http.MethodGet, "/api/notion/words?token=tok&databaseId=db", nil)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var resp struct {
			Words []notion.WordEntry `json:"words"`
			Total int                `json:"total"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Equal(t, 1, resp.Total)
		assert.Equal(t, "사과", resp.Words[0].Word)
		assert.Equal(t, "apple", resp.Words[0].Meaning)
	})

	t.Run("missing credentials is 400", func(t *testing.T) {
		t.Parallel()
		mux, _ := newNotionTestServer(t, 0)

		req := httptest.NewRequest(http.MethodGet, "/api/notion/words", nil)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("falls back to stored credentials", func(t *testing.T) {
		t.Parallel()

		var gotAuth atomic.Value
		backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth.Store(r.Header.Get("Authorization"))
			_ = json.NewEncoder(w).Encode(notion.QueryDatabaseResponse{Object: "list"})
		}))
		t.Cleanup(backend.Close)

		prefs := config.NewPrefsStore(t.TempDir())
		require.NoError(t, prefs.Save(config.Prefs{
			Theme: config.ThemeLight,
			Notion: config.NotionConfig{
				Enabled:        true,
				Token:          "stored-tok",
				WordDatabaseID: "stored-db",
			},
		}))

		sink := notion.NewSink(log.NewNop(), notion.WithBaseURL(backend.URL))
		mux := http.NewServeMux()
		NewNotionHandler(sink, prefs, log.NewNop()).RegisterRoutes(mux)

		req := httptest.NewRequest(http.MethodGet, "/api/notion/words", nil)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, "Bearer stored-tok", gotAuth.Load())
	})
}
