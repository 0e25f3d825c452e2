package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/pulseboard/internal/progress"
	"github.com/kiranshivaraju/pulseboard/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Users ---

// UpsertUser creates the user for phone, or returns the existing one. A
// non-empty interests list replaces the stored interests.
func (s *PostgresStore) UpsertUser(ctx context.Context, phone string, interests []string) (*models.User, error) {
	if interests == nil {
		interests = []string{}
	}
	now := time.Now().UTC()

	var u models.User
	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (id, phone, interests, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $4)
		 ON CONFLICT (phone) DO UPDATE SET
		   interests = CASE WHEN cardinality(EXCLUDED.interests) > 0 THEN EXCLUDED.interests ELSE users.interests END,
		   updated_at = EXCLUDED.updated_at
		 RETURNING id, phone, interests, created_at, updated_at`,
		uuid.New(), phone, interests, now,
	).Scan(&u.ID, &u.Phone, &u.Interests, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return &u, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	err := s.pool.QueryRow(ctx,
		`SELECT id, phone, interests, created_at, updated_at FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Phone, &u.Interests, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// --- API Tokens ---

func (s *PostgresStore) CreateAPIToken(ctx context.Context, token *models.APIToken) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_tokens (id, user_id, token_hash, token_prefix, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		token.ID, token.UserID, token.TokenHash, token.TokenPrefix, token.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api token: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAPITokensByPrefix(ctx context.Context, prefix string) ([]*models.APIToken, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, token_hash, token_prefix, last_used_at, revoked_at, created_at
		 FROM api_tokens WHERE token_prefix = $1 AND revoked_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api tokens by prefix: %w", err)
	}
	defer rows.Close()

	var tokens []*models.APIToken
	for rows.Next() {
		var t models.APIToken
		if err := rows.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.TokenPrefix,
			&t.LastUsedAt, &t.RevokedAt, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan api token: %w", err)
		}
		tokens = append(tokens, &t)
	}
	return tokens, rows.Err()
}

func (s *PostgresStore) UpdateAPITokenLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `UPDATE api_tokens SET last_used_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api token last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAPIToken(ctx context.Context, id uuid.UUID, userID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_tokens SET revoked_at = NOW()
		 WHERE id = $1 AND user_id = $2 AND revoked_at IS NULL`, id, userID)
	if err != nil {
		return fmt.Errorf("revoke api token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Search Runs ---

const searchRunColumns = `id, user_id, query, job_id, max_items, stage, error_detail, completed_at, created_at, updated_at`

func scanSearchRun(row pgx.Row) (*models.SearchRun, error) {
	var r models.SearchRun
	err := row.Scan(&r.ID, &r.UserID, &r.Query, &r.JobID, &r.MaxItems, &r.Stage,
		&r.ErrorDetail, &r.CompletedAt, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *PostgresStore) CreateSearchRun(ctx context.Context, run *models.SearchRun) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO search_runs (id, user_id, query, job_id, max_items, stage, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		run.ID, run.UserID, run.Query, run.JobID, run.MaxItems, run.Stage, run.CreatedAt, run.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create search run: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSearchRun(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*models.SearchRun, error) {
	run, err := scanSearchRun(s.pool.QueryRow(ctx,
		`SELECT `+searchRunColumns+` FROM search_runs WHERE id = $1 AND user_id = $2`, id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get search run: %w", err)
	}
	return run, nil
}

func (s *PostgresStore) ListSearchRuns(ctx context.Context, filter RunFilter) ([]*models.SearchRun, int, error) {
	conditions := []string{"user_id = $1"}
	args := []any{filter.UserID}
	argIdx := 2

	if filter.Stage != "" {
		conditions = append(conditions, fmt.Sprintf("stage = $%d", argIdx))
		args = append(args, filter.Stage)
		argIdx++
	}

	where := strings.Join(conditions, " AND ")

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM search_runs WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count search runs: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * limit

	dataQuery := fmt.Sprintf(
		`SELECT %s FROM search_runs WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		searchRunColumns, where, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list search runs: %w", err)
	}
	defer rows.Close()

	runs := []*models.SearchRun{}
	for rows.Next() {
		run, err := scanSearchRun(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan search run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, total, rows.Err()
}

// UpdateSearchRun moves a run to stage. The move must be allowed by
// progress.CanTransition; reaching a terminal stage stamps completed_at.
func (s *PostgresStore) UpdateSearchRun(ctx context.Context, id uuid.UUID, stage progress.Stage, opts ...RunUpdateOption) error {
	params := &runUpdateParams{}
	for _, opt := range opts {
		opt(params)
	}

	var current progress.Stage
	err := s.pool.QueryRow(ctx, `SELECT stage FROM search_runs WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get search run stage: %w", err)
	}

	if !progress.CanTransition(current, stage) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, stage)
	}

	now := time.Now().UTC()
	query := `UPDATE search_runs SET stage = $2, updated_at = $3`
	args := []any{id, stage, now}
	argIdx := 4

	if stage.Terminal() {
		query += fmt.Sprintf(", completed_at = $%d", argIdx)
		args = append(args, now)
		argIdx++
	}
	if params.JobID != nil {
		query += fmt.Sprintf(", job_id = $%d", argIdx)
		args = append(args, *params.JobID)
		argIdx++
	}
	if params.ErrorDetail != nil {
		query += fmt.Sprintf(", error_detail = $%d", argIdx)
		args = append(args, *params.ErrorDetail)
		argIdx++
	}

	query += " WHERE id = $1"

	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("update search run: %w", err)
	}
	return nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
