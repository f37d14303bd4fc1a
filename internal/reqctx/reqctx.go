// Package reqctx carries per-check identity through a context.
package reqctx

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type key int

const checkKey key = 0

// CheckContext identifies one check of one site.
type CheckContext struct {
	CheckID   string
	SiteID    string
	StartTime time.Time
}

// WithCheckContext attaches a fresh CheckContext for siteID to ctx.
func WithCheckContext(ctx context.Context, siteID string) context.Context {
	return context.WithValue(ctx, checkKey, &CheckContext{
		CheckID:   uuid.NewString(),
		SiteID:    siteID,
		StartTime: time.Now(),
	})
}

// GetCheckContext returns the CheckContext stored in ctx, or a placeholder.
func GetCheckContext(ctx context.Context) *CheckContext {
	if cc, ok := ctx.Value(checkKey).(*CheckContext); ok {
		return cc
	}
	return &CheckContext{
		CheckID:   "unknown",
		StartTime: time.Now(),
	}
}

// Elapsed returns the time since the check started.
func (c *CheckContext) Elapsed() time.Duration {
	return time.Since(c.StartTime)
}

// CheckError wraps an error with the check it happened in
type CheckError struct {
	CheckID string
	SiteID  string
	Err     error
}

// Error implements the error interface
func (e *CheckError) Error() string {
	return fmt.Sprintf("[%s %s] %v", e.SiteID, e.CheckID, e.Err)
}

// Unwrap returns the underlying error
func (e *CheckError) Unwrap() error {
	return e.Err
}

// NewCheckError creates a CheckError from the check stored in ctx.
func NewCheckError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	cc := GetCheckContext(ctx)
	return &CheckError{
		CheckID: cc.CheckID,
		SiteID:  cc.SiteID,
		Err:     err,
	}
}
