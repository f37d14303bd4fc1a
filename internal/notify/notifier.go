// Package notify delivers change notifications.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/law-makers/sitewatch/pkg/models"
)

// Notifier delivers one ChangeRecord.
type Notifier interface {
	Notify(ctx context.Context, change models.ChangeRecord) error
	Name() string
}

// Multi calls each notifier in order. Every notifier runs even when an
// earlier one fails; the failures are joined.
type Multi []Notifier

func (m Multi) Name() string { return "multi" }

func (m Multi) Notify(ctx context.Context, change models.ChangeRecord) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, change); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}
	return errors.Join(errs...)
}
