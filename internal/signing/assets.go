package signing

import (
	"fmt"
	"sort"

	"github.com/calimero-network/MeroSign/internal/model"
)

// Signature assets are reusable signature blobs kept in a private context
// (a drawn signature image, a scanned initial). Only their metadata lives
// here; bytes are resolved through the blob store collaborator.

// CreateAsset stores a signature asset and returns its id.
func (e *Engine) CreateAsset(name, contentRef string, size uint64, now int64) (uint64, error) {
	if err := e.store.RequirePrivate(); err != nil {
		return 0, err
	}
	if name == "" || contentRef == "" {
		return 0, fmt.Errorf("%w: asset name and content ref are required", model.ErrInvalidInput)
	}

	id := e.store.AssetSeq
	e.store.AssetSeq++
	e.store.Assets[id] = &model.SignatureAsset{
		ID:         id,
		Name:       model.NormalizeName(name),
		ContentRef: contentRef,
		Size:       size,
		Owner:      e.store.Context.Owner,
		CreatedAt:  now,
	}
	return id, nil
}

// DeleteAsset removes a signature asset by id.
func (e *Engine) DeleteAsset(id uint64) error {
	if err := e.store.RequirePrivate(); err != nil {
		return err
	}
	if _, ok := e.store.Assets[id]; !ok {
		return fmt.Errorf("signature asset %d: %w", id, model.ErrNotFound)
	}
	delete(e.store.Assets, id)
	return nil
}

// ListAssets returns copies of all signature assets ordered by id.
func (e *Engine) ListAssets() ([]*model.SignatureAsset, error) {
	if err := e.store.RequirePrivate(); err != nil {
		return nil, err
	}
	out := make([]*model.SignatureAsset, 0, len(e.store.Assets))
	for _, a := range e.store.Assets {
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
