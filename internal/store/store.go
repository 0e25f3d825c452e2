package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/pulseboard/internal/progress"
	"github.com/kiranshivaraju/pulseboard/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")
var ErrInvalidTransition = errors.New("invalid stage transition")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	UpsertUser(ctx context.Context, phone string, interests []string) (*models.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)

	CreateAPIToken(ctx context.Context, token *models.APIToken) error
	GetAPITokensByPrefix(ctx context.Context, prefix string) ([]*models.APIToken, error)
	UpdateAPITokenLastUsed(ctx context.Context, id uuid.UUID) error
	RevokeAPIToken(ctx context.Context, id uuid.UUID, userID uuid.UUID) error

	CreateSearchRun(ctx context.Context, run *models.SearchRun) error
	GetSearchRun(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*models.SearchRun, error)
	ListSearchRuns(ctx context.Context, filter RunFilter) ([]*models.SearchRun, int, error)
	UpdateSearchRun(ctx context.Context, id uuid.UUID, stage progress.Stage, opts ...RunUpdateOption) error
}

type RunFilter struct {
	UserID uuid.UUID
	Stage  progress.Stage
	Page   int
	Limit  int
}

type runUpdateParams struct {
	JobID       *string
	ErrorDetail *string
}

type RunUpdateOption func(*runUpdateParams)

func WithJobID(id string) RunUpdateOption {
	return func(p *runUpdateParams) {
		p.JobID = &id
	}
}

func WithErrorDetail(detail string) RunUpdateOption {
	return func(p *runUpdateParams) {
		p.ErrorDetail = &detail
	}
}
