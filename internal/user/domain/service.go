package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	Get(ctx context.Context, id snowflake.ID) (User, error)
	// ResolvePlan returns the user's current plan, served from a short-lived cache.
	ResolvePlan(ctx context.Context, id snowflake.ID) (string, error)
	SetPlan(ctx context.Context, id snowflake.ID, plan string) (User, error)
}

var (
	ErrInvalidID   = errors.New("invalid_id")
	ErrInvalidPlan = errors.New("invalid_plan")
	ErrNotFound    = errors.New("user_not_found")
)
