package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"scouted/discovery-service/internal/logger"
	"scouted/discovery-service/internal/model"
)

// DefaultBatchSize is the number of rows sent per upsert transaction.
const DefaultBatchSize = 50

// Store reads and writes the opportunities, csr_spending and subscribers tables.
type Store struct {
	pool *pgxpool.Pool
	log  *logger.Logger
}

func NewStore(pool *pgxpool.Pool, log *logger.Logger) *Store {
	if log == nil {
		log = logger.Nop()
	}
	return &Store{pool: pool, log: log.With("component", "store")}
}

// ─── Upserts ─────────────────────────────────────────────────────────────────

const upsertOpportunitySQL = `
	INSERT INTO opportunities
	  (title, source_url, description, deadline, poc_email, tags,
	   organisation, amount, location, relevance_score)
	VALUES ($1, $2, $3, NULLIF($4::text, '')::date, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (source_url) DO UPDATE SET
	  title           = EXCLUDED.title,
	  description     = EXCLUDED.description,
	  deadline        = EXCLUDED.deadline,
	  poc_email       = EXCLUDED.poc_email,
	  tags            = EXCLUDED.tags,
	  organisation    = EXCLUDED.organisation,
	  amount          = EXCLUDED.amount,
	  location        = EXCLUDED.location,
	  relevance_score = EXCLUDED.relevance_score,
	  updated_at      = NOW()`

// UpsertOpportunities merges opps on source_url in transactions of batchSize
// rows. created_at keeps its first-insert value. A rejected batch is logged
// and skipped; the returned count covers accepted batches only and the error
// joins every rejection.
func (s *Store) UpsertOpportunities(ctx context.Context, opps []model.DbOpportunity, batchSize int) (int, error) {
	return upsertChunks(ctx, s, "opportunities", opps, batchSize, func(b *pgx.Batch, o model.DbOpportunity) {
		tags := o.Tags
		if tags == nil {
			tags = []string{}
		}
		b.Queue(upsertOpportunitySQL,
			o.Title, o.SourceURL, o.Description, o.Deadline, o.PocEmail, tags,
			o.Organisation, o.Amount, o.Location, o.RelevanceScore,
		)
	})
}

const upsertCSRSQL = `
	INSERT INTO csr_spending (company, cin, field, spend_inr, fiscal_year)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (cin, field, fiscal_year) DO UPDATE SET
	  company    = EXCLUDED.company,
	  spend_inr  = EXCLUDED.spend_inr,
	  updated_at = NOW()`

// UpsertCSR merges records on (cin, field, fiscal_year) with the same batch
// semantics as UpsertOpportunities.
func (s *Store) UpsertCSR(ctx context.Context, recs []model.CsrRecord, batchSize int) (int, error) {
	return upsertChunks(ctx, s, "csr_spending", recs, batchSize, func(b *pgx.Batch, r model.CsrRecord) {
		b.Queue(upsertCSRSQL, r.Company, r.CIN, r.Field, r.SpendINR, r.FiscalYear)
	})
}

func upsertChunks[T any](ctx context.Context, s *Store, table string, rows []T, size int, queue func(*pgx.Batch, T)) (int, error) {
	if size < 1 {
		size = DefaultBatchSize
	}
	var (
		written int
		errs    []error
	)
	for start := 0; start < len(rows); start += size {
		end := min(start+size, len(rows))
		n, err := sendChunk(ctx, s.pool, rows[start:end], queue)
		if err != nil {
			s.log.Error("upsert batch rejected", "table", table, "offset", start, "rows", end-start, "error", err)
			errs = append(errs, fmt.Errorf("%s batch at %d: %w", table, start, err))
			continue
		}
		written += n
	}
	return written, errors.Join(errs...)
}

func sendChunk[T any](ctx context.Context, pool *pgxpool.Pool, rows []T, queue func(*pgx.Batch, T)) (int, error) {
	var n int
	err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		b := &pgx.Batch{}
		for _, r := range rows {
			queue(b, r)
		}
		br := tx.SendBatch(ctx, b)
		for range rows {
			tag, err := br.Exec()
			if err != nil {
				_ = br.Close()
				return err
			}
			n += int(tag.RowsAffected())
		}
		return br.Close()
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// ─── Queries ─────────────────────────────────────────────────────────────────

const opportunityColumns = `
	id::text, title, source_url, description, to_char(deadline, 'YYYY-MM-DD'),
	poc_email, tags, organisation, amount, location, relevance_score,
	created_at, updated_at`

// likeEscaper makes user text match literally inside an ILIKE pattern.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Query narrows ListOpportunities. Zero values mean no constraint.
type Query struct {
	Since          time.Time
	Tag            string
	State          string
	DeadlineBefore string // YYYY-MM-DD; rolling deadlines never match
	Search         string
	Limit          int
	Offset         int
}

// listQuery renders q as SQL with positional args. User text in ILIKE
// patterns is escaped so % and _ match literally.
func listQuery(q Query) (string, []interface{}) {
	var (
		where []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if !q.Since.IsZero() {
		where = append(where, "created_at >= "+arg(q.Since))
	}
	if q.Tag != "" {
		where = append(where, arg(q.Tag)+" = ANY(tags)")
	}
	if q.State != "" {
		where = append(where, "location ILIKE "+arg(likeEscaper.Replace(q.State))+` ESCAPE '\'`)
	}
	if q.DeadlineBefore != "" {
		where = append(where, "deadline <= ("+arg(q.DeadlineBefore)+"::text)::date")
	}
	if q.Search != "" {
		p := arg("%" + likeEscaper.Replace(q.Search) + "%")
		where = append(where, "(title ILIKE "+p+` ESCAPE '\' OR description ILIKE `+p+` ESCAPE '\' OR organisation ILIKE `+p+` ESCAPE '\')`)
	}

	sql := "SELECT " + opportunityColumns + " FROM opportunities"
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	sql += " ORDER BY relevance_score DESC, created_at DESC"
	if q.Limit > 0 {
		sql += " LIMIT " + arg(q.Limit)
	}
	if q.Offset > 0 {
		sql += " OFFSET " + arg(q.Offset)
	}
	return sql, args
}

// ListOpportunities returns stored rows ordered by base score, newest first
// on ties.
func (s *Store) ListOpportunities(ctx context.Context, q Query) ([]model.StoredOpportunity, error) {
	sql, args := listQuery(q)

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("listOpportunities query: %w", err)
	}
	defer rows.Close()

	out := make([]model.StoredOpportunity, 0)
	for rows.Next() {
		var o model.StoredOpportunity
		if err := rows.Scan(
			&o.ID, &o.Title, &o.SourceURL, &o.Description, &o.Deadline,
			&o.PocEmail, &o.Tags, &o.Organisation, &o.Amount, &o.Location, &o.RelevanceScore,
			&o.CreatedAt, &o.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("listOpportunities scan: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// RecentOpportunities returns rows first seen at or after since, best base
// score first.
func (s *Store) RecentOpportunities(ctx context.Context, since time.Time, limit int) ([]model.StoredOpportunity, error) {
	return s.ListOpportunities(ctx, Query{Since: since, Limit: limit})
}

// ─── Subscribers ─────────────────────────────────────────────────────────────

// ErrNotFound is returned when an unsubscribe token matches no subscriber.
var ErrNotFound = fmt.Errorf("subscriber not found")

// Subscribers lists every digest recipient.
func (s *Store) Subscribers(ctx context.Context) ([]model.Subscriber, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id::text, email, unsubscribe_token::text, created_at FROM subscribers ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("subscribers query: %w", err)
	}
	defer rows.Close()

	var out []model.Subscriber
	for rows.Next() {
		var sub model.Subscriber
		if err := rows.Scan(&sub.ID, &sub.Email, &sub.UnsubscribeToken, &sub.CreatedAt); err != nil {
			return nil, fmt.Errorf("subscribers scan: %w", err)
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

// Subscribe adds email, or returns the existing row. created reports whether
// the row is new.
func (s *Store) Subscribe(ctx context.Context, email string) (sub model.Subscriber, created bool, err error) {
	err = s.pool.QueryRow(ctx,
		`INSERT INTO subscribers (email) VALUES ($1)
		 ON CONFLICT (email) DO UPDATE SET email = EXCLUDED.email
		 RETURNING id::text, email, unsubscribe_token::text, created_at, (xmax = 0)`,
		email,
	).Scan(&sub.ID, &sub.Email, &sub.UnsubscribeToken, &sub.CreatedAt, &created)
	if err != nil {
		return model.Subscriber{}, false, fmt.Errorf("subscribe: %w", err)
	}
	return sub, created, nil
}

// Unsubscribe deletes the subscriber holding token.
func (s *Store) Unsubscribe(ctx context.Context, token string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM subscribers WHERE unsubscribe_token::text = $1`, token)
	if err != nil {
		return fmt.Errorf("unsubscribe: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
