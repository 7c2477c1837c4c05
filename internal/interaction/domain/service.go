package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/replyflow/pkg/db/pagination"
)

type Repository interface {
	// Insert stores records in one transaction, skipping rows whose
	// idempotency key already exists, and returns the rows written.
	Insert(ctx context.Context, records []Record) ([]Record, error)
	ExistsByKey(ctx context.Context, userID snowflake.ID, key string) (bool, error)
	ListByUser(ctx context.Context, userID snowflake.ID, since *time.Time) ([]Record, error)
	ListPage(ctx context.Context, userID snowflake.ID, after *pagination.Cursor, limit int) ([]Record, error)
}

type ListRequest struct {
	pagination.Pagination
}

type ListResponse struct {
	Records  []Record            `json:"records"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

type Service interface {
	Append(ctx context.Context, records []Record) ([]Record, error)
	Exists(ctx context.Context, userID snowflake.ID, key string) (bool, error)
	// History returns the user's records in occurrence order, optionally
	// only those at or after since.
	History(ctx context.Context, userID snowflake.ID, since *time.Time) ([]Record, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
}

var (
	ErrInvalidRecord = errors.New("invalid_interaction_record")
	ErrInvalidUser   = errors.New("invalid_user")
)
