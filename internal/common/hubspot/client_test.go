package hubspot

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpclient "github.com/sneurgaonkar/sales-ai-agents/internal/common/http"
	"github.com/sneurgaonkar/sales-ai-agents/internal/models"
)

func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return NewClient(Config{AccessToken: "test-token", BaseURL: server.URL, Timeout: 5 * time.Second})
}

func writeJSON(t *testing.T, w http.ResponseWriter, v interface{}) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

// ====== ListDeals ======

func TestClient_ListDeals_FollowsCursor(t *testing.T) {
	var calls int
	mux := http.NewServeMux()
	mux.HandleFunc("/crm/v3/objects/deals/search", func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		var req searchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"appointmentscheduled", "qualifiedtobuy"}, req.FilterGroups[0].Filters[0].Values)
		assert.Equal(t, "IN", req.FilterGroups[0].Filters[0].Operator)
		assert.Equal(t, 100, req.Limit)

		if req.After == "" {
			writeJSON(t, w, map[string]interface{}{
				"results": []map[string]interface{}{
					{"id": "1", "properties": map[string]string{"dealname": "Acme expansion", "dealstage": "qualifiedtobuy", "amount": "5000"}},
				},
				"paging": map[string]interface{}{"next": map[string]string{"after": "1"}},
			})
			return
		}
		assert.Equal(t, "1", req.After)
		writeJSON(t, w, map[string]interface{}{
			"results": []map[string]interface{}{
				{"id": "2", "properties": map[string]string{"dealstage": "appointmentscheduled"}},
			},
		})
	})

	deals, err := newTestClient(t, mux).ListDeals(context.Background(), []string{"appointmentscheduled", "qualifiedtobuy"})
	require.NoError(t, err)
	require.Len(t, deals, 2)
	assert.Equal(t, 2, calls)
	assert.Equal(t, models.Deal{ID: "1", Name: "Acme expansion", Stage: "qualifiedtobuy", Amount: "5000"}, deals[0])
	assert.Equal(t, "Unknown Deal", deals[1].Name)
}

func TestClient_ListDeals_StatusError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/crm/v3/objects/deals/search", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "2")
		http.Error(w, `{"message":"rate limited"}`, http.StatusTooManyRequests)
	})

	_, err := newTestClient(t, mux).ListDeals(context.Background(), []string{"qualifiedtobuy"})
	require.Error(t, err)

	var statusErr *httpclient.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
	assert.Equal(t, 2*time.Second, statusErr.RetryAfter)
	assert.True(t, statusErr.Temporary())
}

// ====== Emails and activities ======

func emailMux(t *testing.T) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/crm/v4/objects/deals/42/associations/companies", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]interface{}{"results": []map[string]interface{}{{"toObjectId": 7}}})
	})
	mux.HandleFunc("/crm/v3/objects/deals/42/associations/emails", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]interface{}{"results": []map[string]string{{"id": "e1"}, {"id": "e2"}}})
	})
	mux.HandleFunc("/crm/v3/objects/companies/7/associations/emails", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]interface{}{"results": []map[string]string{{"id": "e2"}, {"id": "e3"}}})
	})
	mux.HandleFunc("/crm/v3/objects/deals/42/associations/notes", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]interface{}{"results": []map[string]string{{"id": "n1"}}})
	})
	mux.HandleFunc("/crm/v3/objects/emails/batch/read", func(w http.ResponseWriter, r *http.Request) {
		var req batchReadRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		all := map[string]map[string]string{
			"e1": {"hs_email_subject": "Intro", "hs_email_status": "SENT", "hs_timestamp": "2024-01-10T09:00:00Z"},
			"e2": {"hs_email_subject": "Reply", "hs_email_direction": "INCOMING_EMAIL", "hs_timestamp": "2024-02-01T09:00:00Z"},
			"e3": {"hs_email_subject": "Pricing", "hs_email_direction": "EMAIL", "hs_createdate": "1706000000000"},
		}
		var results []map[string]interface{}
		for _, in := range req.Inputs {
			results = append(results, map[string]interface{}{"id": in.ID, "properties": all[in.ID]})
		}
		writeJSON(t, w, map[string]interface{}{"results": results})
	})
	mux.HandleFunc("/crm/v3/objects/notes/batch/read", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]interface{}{"results": []map[string]interface{}{
			{"id": "n1", "properties": map[string]string{"hs_note_body": "<p>Budget approved</p>", "hs_timestamp": "2024-02-15T00:00:00Z"}},
		}})
	})
	return mux
}

func TestClient_LastEmailSentAt_MaxAcrossDealAndCompany(t *testing.T) {
	c := newTestClient(t, emailMux(t))

	last, err := c.LastEmailSentAt(context.Background(), models.Deal{ID: "42"})
	require.NoError(t, err)
	require.NotNil(t, last)
	// e3 (company, direction EMAIL, epoch ms) is newer than e1; e2 is inbound.
	assert.Equal(t, time.UnixMilli(1706000000000).UTC(), *last)
}

func TestClient_Activities_NewestFirst(t *testing.T) {
	c := newTestClient(t, emailMux(t))

	acts, err := c.Activities(context.Background(), models.Deal{ID: "42"})
	require.NoError(t, err)
	require.Len(t, acts, 4)

	assert.Equal(t, "n1", acts[0].ID)
	assert.Equal(t, models.ActivityNote, acts[0].Kind)
	assert.Equal(t, "e2", acts[1].ID)
	assert.Equal(t, "e3", acts[2].ID)
	assert.Equal(t, "e1", acts[3].ID)
}

func TestClient_LastEmailSentAt_NoEmails(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/crm/v4/objects/deals/9/associations/companies", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]interface{}{"results": []interface{}{}})
	})
	mux.HandleFunc("/crm/v3/objects/deals/9/associations/emails", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]interface{}{"results": []interface{}{}})
	})

	last, err := newTestClient(t, mux).LastEmailSentAt(context.Background(), models.Deal{ID: "9"})
	require.NoError(t, err)
	assert.Nil(t, last)
}

// ====== Parties ======

func TestClient_ContactAndCompany(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/crm/v4/objects/deals/42/associations/contacts", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]interface{}{"results": []map[string]interface{}{{"toObjectId": 501}, {"toObjectId": 502}}})
	})
	mux.HandleFunc("/crm/v3/objects/contacts/batch/read", func(w http.ResponseWriter, r *http.Request) {
		var req batchReadRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Inputs, 1)
		assert.Equal(t, "501", req.Inputs[0].ID)
		writeJSON(t, w, map[string]interface{}{"results": []map[string]interface{}{
			{"id": "501", "properties": map[string]string{"firstname": "Dana", "lastname": "Reyes", "email": "dana@acme.test", "jobtitle": "VP Ops"}},
		}})
	})
	mux.HandleFunc("/crm/v4/objects/deals/42/associations/companies", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]interface{}{"results": []map[string]interface{}{{"toObjectId": 7}}})
	})
	mux.HandleFunc("/crm/v3/objects/companies/7", func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Query().Get("properties"), "industry")
		writeJSON(t, w, map[string]interface{}{"id": "7", "properties": map[string]string{"name": "Acme", "industry": "Logistics"}})
	})
	c := newTestClient(t, mux)

	contact, err := c.Contact(context.Background(), models.Deal{ID: "42"})
	require.NoError(t, err)
	require.NotNil(t, contact)
	assert.Equal(t, "Dana Reyes", contact.Name())
	assert.Equal(t, "VP Ops", contact.JobTitle)

	company, err := c.Company(context.Background(), models.Deal{ID: "42"})
	require.NoError(t, err)
	require.NotNil(t, company)
	assert.Equal(t, "Acme", company.Name)
	assert.Equal(t, "Logistics", company.Industry)
}

func TestClient_CompanyMissing(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/crm/v4/objects/deals/42/associations/companies", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]interface{}{"results": []interface{}{}})
	})

	company, err := newTestClient(t, mux).Company(context.Background(), models.Deal{ID: "42"})
	require.NoError(t, err)
	assert.Nil(t, company)
}

// ====== Helpers ======

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want time.Time
		ok   bool
	}{
		{"rfc3339", "2024-01-10T09:00:00Z", time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC), true},
		{"rfc3339 millis", "2024-01-10T09:00:00.123Z", time.Date(2024, 1, 10, 9, 0, 0, 123000000, time.UTC), true},
		{"epoch millis", "1704877200000", time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC), true},
		{"empty", "", time.Time{}, false},
		{"garbage", "yesterday", time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseTimestamp(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}
}
