package store

import (
	"context"
	"fmt"
	"log/slog"
)

// Reconcile appends to the ledger every id present in the sink but missing
// from the ledger, closing the window left by a crash between the two
// writes. It returns the ids it added.
func Reconcile(ctx context.Context, sink Sink, ledger Ledger, logger *slog.Logger) ([]string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	done, err := ledger.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconcile: %w", err)
	}
	stored, err := sink.IDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconcile: %w", err)
	}

	var added []string
	for _, id := range stored {
		if _, ok := done[id]; ok {
			continue
		}
		if err := ledger.Append(ctx, id); err != nil {
			return added, fmt.Errorf("reconcile %s: %w", id, err)
		}
		done[id] = struct{}{}
		added = append(added, id)
	}

	if len(added) > 0 {
		logger.Warn("ledger reconciled with result sink",
			"component", "store", "added", len(added))
	}
	return added, nil
}
