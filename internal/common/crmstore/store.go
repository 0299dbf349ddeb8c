// Package crmstore reads deals from a Postgres mirror of the CRM.
//
// The mirror is read-only from this module's point of view; a separate sync job owns it.
package crmstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/sneurgaonkar/sales-ai-agents/internal/common/ratelimit"
	"github.com/sneurgaonkar/sales-ai-agents/internal/models"
)

const (
	RateLimitKey = "crmstore"

	dealsTable      = "crm_deals"
	contactsTable   = "crm_contacts"
	companiesTable  = "crm_companies"
	activitiesTable = "crm_activities"

	defaultActivityLimit = 20
)

type Store struct {
	db            *sql.DB
	limiter       ratelimit.Acquirer
	activityLimit uint64
	psql          sq.StatementBuilderType
}

func New(db *sql.DB, limiter ratelimit.Acquirer, activityLimit int) *Store {
	if activityLimit <= 0 {
		activityLimit = defaultActivityLimit
	}
	return &Store{
		db:            db,
		limiter:       limiter,
		activityLimit: uint64(activityLimit),
		psql:          sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (s *Store) acquire(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	return s.limiter.Acquire(ctx, RateLimitKey)
}

func (s *Store) query(ctx context.Context, b sq.Sqlizer) (*sql.Rows, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	return s.db.QueryContext(ctx, query, args...)
}

func (s *Store) queryRow(ctx context.Context, b sq.Sqlizer) (*sql.Row, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	return s.db.QueryRowContext(ctx, query, args...), nil
}

func (s *Store) ListDeals(ctx context.Context, stages []string) ([]models.Deal, error) {
	q := s.psql.
		Select("id", "name", "stage", "amount", "contact_id", "company_id").
		From(dealsTable).
		Where(sq.Eq{"stage": stages}).
		OrderBy("id")

	rows, err := s.query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list deals: %w", err)
	}
	defer rows.Close()

	var deals []models.Deal
	for rows.Next() {
		var (
			d                                models.Deal
			name, amount, contactID, company sql.NullString
		)
		if err := rows.Scan(&d.ID, &name, &d.Stage, &amount, &contactID, &company); err != nil {
			return nil, fmt.Errorf("scan deal: %w", err)
		}
		d.Name = name.String
		if d.Name == "" {
			d.Name = "Unknown Deal"
		}
		d.Amount = amount.String
		d.ContactID = contactID.String
		d.CompanyID = company.String
		deals = append(deals, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list deals: %w", err)
	}
	return deals, nil
}

// sentEmailFilter matches the CRM rule for outbound email: status SENT or direction EMAIL.
func sentEmailFilter() sq.Sqlizer {
	return sq.And{
		sq.Eq{"kind": string(models.ActivityEmail)},
		sq.Or{sq.Eq{"status": "SENT"}, sq.Eq{"direction": "EMAIL"}},
	}
}

func dealScope(deal models.Deal, companyKinds ...models.ActivityKind) sq.Sqlizer {
	if deal.CompanyID == "" {
		return sq.Eq{"deal_id": deal.ID}
	}
	company := sq.And{sq.Eq{"company_id": deal.CompanyID}}
	if len(companyKinds) > 0 {
		kinds := make([]string, len(companyKinds))
		for i, k := range companyKinds {
			kinds[i] = string(k)
		}
		company = append(company, sq.Eq{"kind": kinds})
	}
	return sq.Or{sq.Eq{"deal_id": deal.ID}, company}
}

func (s *Store) LastEmailSentAt(ctx context.Context, deal models.Deal) (*time.Time, error) {
	q := s.psql.
		Select("MAX(occurred_at)").
		From(activitiesTable).
		Where(sentEmailFilter()).
		Where(dealScope(deal))

	row, err := s.queryRow(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("last sent email for deal %s: %w", deal.ID, err)
	}
	var last sql.NullTime
	if err := row.Scan(&last); err != nil {
		return nil, fmt.Errorf("last sent email for deal %s: %w", deal.ID, err)
	}
	if !last.Valid {
		return nil, nil
	}
	t := last.Time.UTC()
	return &t, nil
}

// Activities returns the deal's notes and emails plus the emails logged on its company, newest first.
func (s *Store) Activities(ctx context.Context, deal models.Deal) ([]models.Activity, error) {
	q := s.psql.
		Select("id", "kind", "subject", "body", "direction", "status", "occurred_at").
		From(activitiesTable).
		Where(dealScope(deal, models.ActivityEmail)).
		OrderBy("occurred_at DESC NULLS LAST", "id").
		Limit(s.activityLimit)

	rows, err := s.query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("activities for deal %s: %w", deal.ID, err)
	}
	defer rows.Close()

	var out []models.Activity
	for rows.Next() {
		var (
			a                                models.Activity
			kind                             string
			subject, body, direction, status sql.NullString
			occurredAt                       sql.NullTime
		)
		if err := rows.Scan(&a.ID, &kind, &subject, &body, &direction, &status, &occurredAt); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		a.Kind = models.ActivityKind(kind)
		a.Subject = subject.String
		a.Body = body.String
		a.Direction = direction.String
		a.Status = status.String
		if occurredAt.Valid {
			t := occurredAt.Time.UTC()
			a.Timestamp = &t
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("activities for deal %s: %w", deal.ID, err)
	}
	return out, nil
}

func (s *Store) Contact(ctx context.Context, deal models.Deal) (*models.Contact, error) {
	if deal.ContactID == "" {
		return nil, nil
	}
	q := s.psql.
		Select("id", "first_name", "last_name", "email", "job_title").
		From(contactsTable).
		Where(sq.Eq{"id": deal.ContactID})

	row, err := s.queryRow(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("contact %s: %w", deal.ContactID, err)
	}
	var (
		c                            models.Contact
		first, last, email, jobTitle sql.NullString
	)
	if err := row.Scan(&c.ID, &first, &last, &email, &jobTitle); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("contact %s: %w", deal.ContactID, err)
	}
	c.FirstName, c.LastName, c.Email, c.JobTitle = first.String, last.String, email.String, jobTitle.String
	return &c, nil
}

func (s *Store) Company(ctx context.Context, deal models.Deal) (*models.Company, error) {
	if deal.CompanyID == "" {
		return nil, nil
	}
	q := s.psql.
		Select("id", "name", "domain", "industry", "employees").
		From(companiesTable).
		Where(sq.Eq{"id": deal.CompanyID})

	row, err := s.queryRow(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("company %s: %w", deal.CompanyID, err)
	}
	var (
		c                                 models.Company
		name, domain, industry, employees sql.NullString
	)
	if err := row.Scan(&c.ID, &name, &domain, &industry, &employees); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("company %s: %w", deal.CompanyID, err)
	}
	c.Name, c.Domain, c.Industry, c.Employees = name.String, domain.String, industry.String, employees.String
	return &c, nil
}
