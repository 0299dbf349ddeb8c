// Package hubspot reads deals, parties and activity history from the HubSpot CRM API.
package hubspot

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	httpclient "github.com/sneurgaonkar/sales-ai-agents/internal/common/http"
	"github.com/sneurgaonkar/sales-ai-agents/internal/models"
)

const (
	DefaultBaseURL = "https://api.hubapi.com"
	RateLimitKey   = "hubspot"

	searchPageSize = 100
	batchReadLimit = 100
)

var (
	dealProperties    = []string{"dealname", "dealstage", "amount", "closedate", "hs_lastmodifieddate"}
	contactProperties = []string{"email", "firstname", "lastname", "jobtitle", "company"}
	companyProperties = "name,domain,industry,numberofemployees,description,website"
	emailProperties   = []string{"hs_email_subject", "hs_email_status", "hs_email_direction", "hs_timestamp", "hs_email_text", "hs_createdate"}
	noteProperties    = []string{"hs_note_body", "hs_timestamp", "hs_createdate"}
)

type Config struct {
	AccessToken string
	BaseURL     string
	Timeout     time.Duration
	// Transport is normally a ratelimit.Transport keyed on RateLimitKey.
	Transport http.RoundTripper
	// NoteLimit and EmailLimit bound how many associated objects are read per deal.
	NoteLimit  int
	EmailLimit int
}

type Client struct {
	http       *httpclient.Client
	noteLimit  int
	emailLimit int
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.NoteLimit <= 0 {
		cfg.NoteLimit = 5
	}
	if cfg.EmailLimit <= 0 {
		cfg.EmailLimit = 10
	}

	opts := []httpclient.Option{
		httpclient.WithBaseURL(cfg.BaseURL),
		httpclient.WithBearerToken(cfg.AccessToken),
	}
	if cfg.Transport != nil {
		opts = append(opts, httpclient.WithTransport(cfg.Transport))
	}
	return &Client{
		http:       httpclient.NewClient(cfg.Timeout, opts...),
		noteLimit:  cfg.NoteLimit,
		emailLimit: cfg.EmailLimit,
	}
}

type object struct {
	ID         string            `json:"id"`
	Properties map[string]string `json:"properties"`
}

type searchRequest struct {
	FilterGroups []filterGroup `json:"filterGroups"`
	Properties   []string      `json:"properties"`
	Limit        int           `json:"limit"`
	After        string        `json:"after,omitempty"`
}

type filterGroup struct {
	Filters []filter `json:"filters"`
}

type filter struct {
	PropertyName string   `json:"propertyName"`
	Operator     string   `json:"operator"`
	Values       []string `json:"values"`
}

type searchResponse struct {
	Results []object `json:"results"`
	Paging  *struct {
		Next *struct {
			After string `json:"after"`
		} `json:"next"`
	} `json:"paging"`
}

type batchReadRequest struct {
	Inputs     []batchInput `json:"inputs"`
	Properties []string     `json:"properties"`
}

type batchInput struct {
	ID string `json:"id"`
}

type batchReadResponse struct {
	Results []object `json:"results"`
}

// association covers both the v3 ({"id"}) and v4 ({"toObjectId"}) shapes.
type association struct {
	ToObjectID json.Number `json:"toObjectId"`
	ID         string      `json:"id"`
}

func (a association) objectID() string {
	if a.ToObjectID != "" {
		return a.ToObjectID.String()
	}
	return a.ID
}

type associationResponse struct {
	Results []association `json:"results"`
}

// ListDeals returns every deal in the given pipeline stages, following the search cursor.
func (c *Client) ListDeals(ctx context.Context, stages []string) ([]models.Deal, error) {
	req := searchRequest{
		FilterGroups: []filterGroup{{Filters: []filter{{
			PropertyName: "dealstage",
			Operator:     "IN",
			Values:       stages,
		}}}},
		Properties: dealProperties,
		Limit:      searchPageSize,
	}

	var deals []models.Deal
	for {
		var resp searchResponse
		if err := c.http.PostJSON(ctx, "/crm/v3/objects/deals/search", req, &resp); err != nil {
			return nil, fmt.Errorf("search deals: %w", err)
		}
		for _, o := range resp.Results {
			deals = append(deals, models.Deal{
				ID:     o.ID,
				Name:   propOr(o.Properties, "dealname", "Unknown Deal"),
				Stage:  o.Properties["dealstage"],
				Amount: o.Properties["amount"],
			})
		}
		if resp.Paging == nil || resp.Paging.Next == nil || resp.Paging.Next.After == "" {
			break
		}
		req.After = resp.Paging.Next.After
	}
	return deals, nil
}

// LastEmailSentAt returns the newest sent email across the deal and its company, or nil if none.
func (c *Client) LastEmailSentAt(ctx context.Context, deal models.Deal) (*time.Time, error) {
	emails, err := c.emailsForDeal(ctx, deal)
	if err != nil {
		return nil, err
	}
	return LastSent(emails), nil
}

// Activities returns the deal's notes plus the emails logged on the deal and its company, newest first.
func (c *Client) Activities(ctx context.Context, deal models.Deal) ([]models.Activity, error) {
	notes, err := c.notes(ctx, deal.ID)
	if err != nil {
		return nil, err
	}
	emails, err := c.emailsForDeal(ctx, deal)
	if err != nil {
		return nil, err
	}

	out := append(notes, emails...)
	sortNewestFirst(out)
	return out, nil
}

func (c *Client) Contact(ctx context.Context, deal models.Deal) (*models.Contact, error) {
	contactID := deal.ContactID
	if contactID == "" {
		ids, err := c.associationIDs(ctx, "v4", "deals", deal.ID, "contacts", 0)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			return nil, nil
		}
		contactID = ids[0]
	}

	objs, err := c.batchRead(ctx, "contacts", []string{contactID}, contactProperties)
	if err != nil {
		return nil, err
	}
	if len(objs) == 0 {
		return nil, nil
	}
	p := objs[0].Properties
	return &models.Contact{
		ID:        objs[0].ID,
		FirstName: p["firstname"],
		LastName:  p["lastname"],
		Email:     p["email"],
		JobTitle:  p["jobtitle"],
	}, nil
}

func (c *Client) Company(ctx context.Context, deal models.Deal) (*models.Company, error) {
	companyID, err := c.companyID(ctx, deal)
	if err != nil || companyID == "" {
		return nil, err
	}

	var o object
	q := url.Values{"properties": {companyProperties}}
	if err := c.http.GetJSON(ctx, "/crm/v3/objects/companies/"+url.PathEscape(companyID), q, &o); err != nil {
		return nil, fmt.Errorf("get company %s: %w", companyID, err)
	}
	return &models.Company{
		ID:        o.ID,
		Name:      o.Properties["name"],
		Domain:    o.Properties["domain"],
		Industry:  o.Properties["industry"],
		Employees: o.Properties["numberofemployees"],
	}, nil
}

func (c *Client) companyID(ctx context.Context, deal models.Deal) (string, error) {
	if deal.CompanyID != "" {
		return deal.CompanyID, nil
	}
	ids, err := c.associationIDs(ctx, "v4", "deals", deal.ID, "companies", 0)
	if err != nil || len(ids) == 0 {
		return "", err
	}
	return ids[0], nil
}

func (c *Client) emailsForDeal(ctx context.Context, deal models.Deal) ([]models.Activity, error) {
	emails, err := c.emails(ctx, "deals", deal.ID)
	if err != nil {
		return nil, err
	}

	companyID, err := c.companyID(ctx, deal)
	if err != nil {
		return nil, err
	}
	if companyID != "" {
		companyEmails, err := c.emails(ctx, "companies", companyID)
		if err != nil {
			return nil, err
		}
		emails = mergeByID(emails, companyEmails)
	}
	return emails, nil
}

func (c *Client) emails(ctx context.Context, objectType, objectID string) ([]models.Activity, error) {
	ids, err := c.associationIDs(ctx, "v3", objectType, objectID, "emails", c.emailLimit)
	if err != nil || len(ids) == 0 {
		return nil, err
	}
	objs, err := c.batchRead(ctx, "emails", ids, emailProperties)
	if err != nil {
		return nil, err
	}

	out := make([]models.Activity, 0, len(objs))
	for _, o := range objs {
		p := o.Properties
		out = append(out, models.Activity{
			ID:        o.ID,
			Kind:      models.ActivityEmail,
			Subject:   p["hs_email_subject"],
			Body:      p["hs_email_text"],
			Direction: p["hs_email_direction"],
			Status:    p["hs_email_status"],
			Timestamp: activityTime(p),
		})
	}
	return out, nil
}

func (c *Client) notes(ctx context.Context, dealID string) ([]models.Activity, error) {
	ids, err := c.associationIDs(ctx, "v3", "deals", dealID, "notes", c.noteLimit)
	if err != nil || len(ids) == 0 {
		return nil, err
	}
	objs, err := c.batchRead(ctx, "notes", ids, noteProperties)
	if err != nil {
		return nil, err
	}

	out := make([]models.Activity, 0, len(objs))
	for _, o := range objs {
		out = append(out, models.Activity{
			ID:        o.ID,
			Kind:      models.ActivityNote,
			Body:      o.Properties["hs_note_body"],
			Timestamp: activityTime(o.Properties),
		})
	}
	return out, nil
}

func (c *Client) associationIDs(ctx context.Context, version, fromType, fromID, toType string, limit int) ([]string, error) {
	path := fmt.Sprintf("/crm/%s/objects/%s/%s/associations/%s", version, fromType, url.PathEscape(fromID), toType)

	var resp associationResponse
	if err := c.http.GetJSON(ctx, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("list %s associations of %s %s: %w", toType, fromType, fromID, err)
	}

	ids := make([]string, 0, len(resp.Results))
	for _, a := range resp.Results {
		if id := a.objectID(); id != "" {
			ids = append(ids, id)
		}
		if limit > 0 && len(ids) == limit {
			break
		}
	}
	return ids, nil
}

func (c *Client) batchRead(ctx context.Context, objectType string, ids []string, properties []string) ([]object, error) {
	var out []object
	for start := 0; start < len(ids); start += batchReadLimit {
		end := start + batchReadLimit
		if end > len(ids) {
			end = len(ids)
		}
		req := batchReadRequest{Properties: properties}
		for _, id := range ids[start:end] {
			req.Inputs = append(req.Inputs, batchInput{ID: id})
		}

		var resp batchReadResponse
		if err := c.http.PostJSON(ctx, "/crm/v3/objects/"+objectType+"/batch/read", req, &resp); err != nil {
			return nil, fmt.Errorf("batch read %s: %w", objectType, err)
		}
		out = append(out, resp.Results...)
	}
	return out, nil
}

// LastSent returns the newest timestamp among sent emails, or nil.
func LastSent(activities []models.Activity) *time.Time {
	var last *time.Time
	for _, a := range activities {
		if !a.IsSentEmail() || a.Timestamp == nil {
			continue
		}
		if last == nil || a.Timestamp.After(*last) {
			ts := *a.Timestamp
			last = &ts
		}
	}
	return last
}

// ParseTimestamp accepts RFC 3339 strings and epoch milliseconds, the two forms HubSpot returns.
func ParseTimestamp(v string) (time.Time, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, false
	}
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), true
	}
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}

func activityTime(p map[string]string) *time.Time {
	for _, key := range []string{"hs_timestamp", "hs_createdate"} {
		if t, ok := ParseTimestamp(p[key]); ok {
			return &t
		}
	}
	return nil
}

func propOr(p map[string]string, key, fallback string) string {
	if v := strings.TrimSpace(p[key]); v != "" {
		return v
	}
	return fallback
}

func mergeByID(a, b []models.Activity) []models.Activity {
	seen := make(map[string]bool, len(a))
	for _, x := range a {
		seen[x.ID] = true
	}
	for _, x := range b {
		if !seen[x.ID] {
			seen[x.ID] = true
			a = append(a, x)
		}
	}
	return a
}

func sortNewestFirst(activities []models.Activity) {
	sort.SliceStable(activities, func(i, j int) bool {
		ti, tj := activities[i].Timestamp, activities[j].Timestamp
		switch {
		case ti == nil:
			return false
		case tj == nil:
			return true
		default:
			return ti.After(*tj)
		}
	})
}
