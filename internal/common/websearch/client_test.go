package websearch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpclient "github.com/sneurgaonkar/sales-ai-agents/internal/common/http"
)

func TestClient_Search(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "/customsearch/v1", r.URL.Path)
		assert.Equal(t, "k", q.Get("key"))
		assert.Equal(t, "cx1", q.Get("cx"))
		assert.Equal(t, "Acme news funding", q.Get("q"))
		assert.Equal(t, "3", q.Get("num"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items":[
			{"link":"https://news.test/acme","title":"Acme raises Series B","snippet":"Acme raised $40M"},
			{"link":"https://news.test/acme","title":"dup","snippet":"dup"},
			{"link":"https://files.test/acme.pdf","title":"Deck","snippet":"pdf","mime":"application/pdf"},
			{"link":"https://blog.test/acme","title":"Acme hiring","htmlSnippet":"<b>Acme</b> is hiring"},
			{"link":"https://extra.test","title":"Extra","snippet":"x"}
		]}`))
	}))
	defer server.Close()

	c := NewClient(Config{BaseURL: server.URL, APIKey: "k", EngineID: "cx1"})
	got, err := c.Search(context.Background(), "  Acme   news\tfunding ", 3)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "https://news.test/acme", got[0].URL)
	assert.Equal(t, "<b>Acme</b> is hiring", got[1].Snippet)
	assert.Equal(t, "https://extra.test", got[2].URL)
}

func TestClient_Search_EmptyQuery(t *testing.T) {
	c := NewClient(Config{BaseURL: "http://127.0.0.1:1"})
	got, err := c.Search(context.Background(), "   ", 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestClient_Search_Forbidden(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"API key not valid"}}`, http.StatusForbidden)
	}))
	defer server.Close()

	c := NewClient(Config{BaseURL: server.URL, APIKey: "bad", EngineID: "cx"})
	_, err := c.Search(context.Background(), "Acme", 5)

	var statusErr *httpclient.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusForbidden, statusErr.StatusCode)
	assert.False(t, statusErr.Temporary())
}
