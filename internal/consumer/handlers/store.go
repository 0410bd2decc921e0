package handlers

import (
	"context"
	"fmt"
	"strconv"

	"github.com/RnD-Experts-Team/PNE-EO/internal/domain/event"
	"github.com/RnD-Experts-Team/PNE-EO/internal/domain/store"
)

// StoreRepository is the slice of the store read-model the handlers write.
type StoreRepository interface {
	Upsert(ctx context.Context, s *store.Store) error
	Exists(ctx context.Context, id int64) (bool, error)
	UpdateName(ctx context.Context, id int64, name string) error
	UpdateMetadata(ctx context.Context, id int64, manualID string, m store.Metadata) error
	Delete(ctx context.Context, id int64) error
}

// StoreCreated mirrors an upstream store, flattening the nested metadata
// object into the local address columns.
type StoreCreated struct {
	stores StoreRepository
}

func NewStoreCreated(stores StoreRepository) *StoreCreated {
	return &StoreCreated{stores: stores}
}

func (h *StoreCreated) Handle(ctx context.Context, env *event.Envelope) error {
	payload := env.FirstMap("data.store", "store", "payload.store")
	if payload == nil {
		return fmt.Errorf("store created: store payload not found in event")
	}

	id := event.AsInt(payload["id"])
	if id <= 0 {
		return fmt.Errorf("store created: missing or invalid store.id")
	}

	name := event.StringAt(payload, "name", "")
	if name == "" {
		return fmt.Errorf("store created: missing store.name")
	}

	meta, _ := payload["metadata"].(map[string]any)

	s := &store.Store{
		ID:       id,
		Name:     name,
		ManualID: event.StringAt(meta, "manual_id", ""),
	}
	fillAddress(s, meta)

	return h.stores.Upsert(ctx, s)
}

// StoreUpdated applies a changed_fields delta to an existing local store.
// A missing local row is a hard failure, same policy as user updates.
type StoreUpdated struct {
	stores StoreRepository
}

func NewStoreUpdated(stores StoreRepository) *StoreUpdated {
	return &StoreUpdated{stores: stores}
}

func (h *StoreUpdated) Handle(ctx context.Context, env *event.Envelope) error {
	id := event.AsInt(env.Dig("store_id"))
	if id <= 0 {
		return fmt.Errorf("store updated: missing or invalid store_id")
	}

	changed := env.DigMap("changed_fields")

	exists, err := h.stores.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("store updated: store %d not found", id)
	}

	if name := event.DeltaString(changed, "name"); name != nil {
		if err := h.stores.UpdateName(ctx, id, *name); err != nil {
			return err
		}
	}

	if meta, ok := event.DeltaMap(changed, "metadata"); ok {
		// The upstream keys stores by the same id we do; the manual id
		// column mirrors it on metadata updates.
		m := metadataFromMap(meta)
		if err := h.stores.UpdateMetadata(ctx, id, strconv.FormatInt(id, 10), m); err != nil {
			return err
		}
	}

	return nil
}

// StoreDeleted removes the local store row. Store absence is tolerated:
// deleting an unknown id is a silent no-op.
type StoreDeleted struct {
	stores StoreRepository
}

func NewStoreDeleted(stores StoreRepository) *StoreDeleted {
	return &StoreDeleted{stores: stores}
}

func (h *StoreDeleted) Handle(ctx context.Context, env *event.Envelope) error {
	id := event.AsInt(env.Dig("store_id"))
	if id <= 0 {
		return fmt.Errorf("store deleted: missing or invalid store_id")
	}

	return h.stores.Delete(ctx, id)
}

func fillAddress(s *store.Store, meta map[string]any) {
	s.AddressLine1 = event.StringAt(meta, "address_line1", "")
	s.AddressLine2 = event.StringAt(meta, "address_line2", "")
	s.City = event.StringAt(meta, "city", "")
	s.State = event.StringAt(meta, "state", "")
	s.Country = event.StringAt(meta, "country", "")
	s.PostalCode = event.StringAt(meta, "postal_code", "")
}

func metadataFromMap(meta map[string]any) store.Metadata {
	return store.Metadata{
		ManualID:     event.StringAt(meta, "manual_id", ""),
		AddressLine1: event.StringAt(meta, "address_line1", ""),
		AddressLine2: event.StringAt(meta, "address_line2", ""),
		City:         event.StringAt(meta, "city", ""),
		State:        event.StringAt(meta, "state", ""),
		Country:      event.StringAt(meta, "country", ""),
		PostalCode:   event.StringAt(meta, "postal_code", ""),
	}
}
