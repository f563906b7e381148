package chain

import (
	"context"
	"fmt"

	"editserver/internal/domain"
)

// Store is the slice of the edit repository the resolver needs.
type Store interface {
	GetByUUID(ctx context.Context, uuid string) (*domain.Edit, error)
	ChainPosition(ctx context.Context, uuid string) (int, error)
	InsertChainLink(ctx context.Context, link domain.ChainLink) error
	ChainHistory(ctx context.Context, uuid string) ([]domain.ChainEntry, error)
}

// Resolver enforces and reconstructs follow-up edit lineage.
type Resolver struct {
	store     Store
	maxLength int
}

func NewResolver(store Store, maxLength int) *Resolver {
	if maxLength < 1 {
		maxLength = domain.DefaultMaxChainLength
	}
	return &Resolver{store: store, maxLength: maxLength}
}

// ValidateFollowUp checks whether a new follow-up edit may be attached to
// the given parent and returns the parent's current chain position. The
// parent must exist, must be completed, and must sit below the configured
// maximum chain length.
func (r *Resolver) ValidateFollowUp(ctx context.Context, parentUUID string) (int, error) {
	parent, err := r.store.GetByUUID(ctx, parentUUID)
	if err != nil {
		return 0, err
	}
	if parent.Status != domain.EditStatusCompleted {
		return 0, domain.ErrParentNotReady
	}
	position, err := r.store.ChainPosition(ctx, parentUUID)
	if err != nil {
		return 0, err
	}
	if position >= r.maxLength {
		return 0, domain.ErrChainTooLong
	}
	return position, nil
}

// AttachChild writes the chain link placing child directly after parent.
// The child edit row must already exist; if this write fails the child
// remains a valid root-position edit rather than a dangling link.
func (r *Resolver) AttachChild(ctx context.Context, childUUID, parentUUID string) error {
	position, err := r.store.ChainPosition(ctx, parentUUID)
	if err != nil {
		return fmt.Errorf("chain: resolve parent position: %w", err)
	}
	link := domain.ChainLink{
		EditUUID:       childUUID,
		ParentEditUUID: parentUUID,
		Position:       position + 1,
	}
	if err := r.store.InsertChainLink(ctx, link); err != nil {
		return fmt.Errorf("chain: attach child: %w", err)
	}
	return nil
}

// History returns the ordered root-to-edit lineage. An edit with no chain
// link resolves to a singleton history at position 1. The recursive walk is
// depth-capped in the query itself as a guard against malformed links.
func (r *Resolver) History(ctx context.Context, uuid string) ([]domain.ChainEntry, error) {
	return r.store.ChainHistory(ctx, uuid)
}

// MaxLength reports the configured chain bound.
func (r *Resolver) MaxLength() int {
	return r.maxLength
}
