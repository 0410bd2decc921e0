package handlers

import (
	"context"
	"fmt"

	"github.com/RnD-Experts-Team/PNE-EO/internal/domain/event"
	"github.com/RnD-Experts-Team/PNE-EO/internal/domain/user"
)

// UserRepository is the slice of the user read-model the handlers write.
type UserRepository interface {
	Upsert(ctx context.Context, u *user.User) error
	Exists(ctx context.Context, id int64) (bool, error)
	UpdateProfile(ctx context.Context, id int64, name, email *string) error
	Delete(ctx context.Context, id int64) error
}

// UserCreated mirrors an upstream user into the local users table.
// Upsert by upstream id, so redelivered creates are harmless.
type UserCreated struct {
	users UserRepository
}

func NewUserCreated(users UserRepository) *UserCreated {
	return &UserCreated{users: users}
}

func (h *UserCreated) Handle(ctx context.Context, env *event.Envelope) error {
	payload := env.FirstMap("data.user", "user", "payload.user")
	if payload == nil {
		return fmt.Errorf("user created: user payload not found in event")
	}

	id := event.AsInt(payload["id"])
	if id <= 0 {
		return fmt.Errorf("user created: missing or invalid user.id")
	}

	email := event.StringAt(payload, "email", "")
	if email == "" {
		return fmt.Errorf("user created: missing user.email")
	}

	// Only replicate what the event gives us; do not invent password/role/etc
	return h.users.Upsert(ctx, &user.User{
		ID:    id,
		Name:  event.StringAt(payload, "name", "Unknown"),
		Email: email,
	})
}

// UserUpdated applies a changed_fields delta to an existing local user.
// The bus is the system of record: a local row must already exist, since
// creation is exclusively the job of the created event.
type UserUpdated struct {
	users UserRepository
}

func NewUserUpdated(users UserRepository) *UserUpdated {
	return &UserUpdated{users: users}
}

func (h *UserUpdated) Handle(ctx context.Context, env *event.Envelope) error {
	id := event.AsInt(env.First("data.user_id", "user_id"))
	if id <= 0 {
		// fallback if some producers send data.user.id
		id = event.AsInt(env.First("data.user.id", "user.id"))
	}
	if id <= 0 {
		return fmt.Errorf("user updated: missing or invalid user id")
	}

	changed := env.DigMap("data.changed_fields")
	name := event.DeltaString(changed, "name")
	email := event.DeltaString(changed, "email")

	exists, err := h.users.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("user updated: user %d not synced yet", id)
	}

	if name == nil && email == nil {
		return nil
	}

	return h.users.UpdateProfile(ctx, id, name, email)
}

// UserDeleted removes the local mirror row and everything depending on it.
type UserDeleted struct {
	users UserRepository
}

func NewUserDeleted(users UserRepository) *UserDeleted {
	return &UserDeleted{users: users}
}

func (h *UserDeleted) Handle(ctx context.Context, env *event.Envelope) error {
	id := event.AsInt(env.First("data.user_id", "user_id", "data.user.id", "user.id"))
	if id <= 0 {
		return fmt.Errorf("user deleted: missing or invalid user_id")
	}

	return h.users.Delete(ctx, id)
}
