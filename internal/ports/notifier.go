package ports

import (
	"context"

	"github.com/alejandrodnm/fortuna/internal/domain"
)

// Notifier recibe los eventos del ledger después de cada commit.
type Notifier interface {
	Notify(ctx context.Context, events []domain.Event) error
}
