package handlers

import (
	"context"
	"testing"

	"github.com/RnD-Experts-Team/PNE-EO/internal/domain/event"
	"github.com/RnD-Experts-Team/PNE-EO/internal/domain/user"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUserRepo struct {
	users         map[int64]*user.User
	deletedGroups []int64
}

func newFakeUserRepo(seed ...*user.User) *fakeUserRepo {
	f := &fakeUserRepo{users: make(map[int64]*user.User)}
	for _, u := range seed {
		cp := *u
		f.users[u.ID] = &cp
	}
	return f
}

func (f *fakeUserRepo) Upsert(_ context.Context, u *user.User) error {
	cp := *u
	f.users[u.ID] = &cp
	return nil
}

func (f *fakeUserRepo) Exists(_ context.Context, id int64) (bool, error) {
	_, ok := f.users[id]
	return ok, nil
}

func (f *fakeUserRepo) UpdateProfile(_ context.Context, id int64, name, email *string) error {
	u := f.users[id]
	if u == nil {
		return nil
	}
	if name != nil {
		u.Name = *name
	}
	if email != nil {
		u.Email = *email
	}
	return nil
}

func (f *fakeUserRepo) Delete(_ context.Context, id int64) error {
	f.deletedGroups = append(f.deletedGroups, id)
	delete(f.users, id)
	return nil
}

func envelope(t *testing.T, raw string) *event.Envelope {
	t.Helper()
	env, err := event.Decode([]byte(raw))
	require.NoError(t, err)
	return env
}

func TestUserCreated(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want user.User
	}{
		{
			name: "payload under data.user",
			raw:  `{"id":"evt-1","subject":"auth.v1.user.created","data":{"user":{"id":42,"name":"Bob","email":"b@x.com"}}}`,
			want: user.User{ID: 42, Name: "Bob", Email: "b@x.com"},
		},
		{
			name: "payload at top level",
			raw:  `{"id":"evt-2","subject":"auth.v1.user.created","user":{"id":7,"name":"Eve","email":"e@x.com"}}`,
			want: user.User{ID: 7, Name: "Eve", Email: "e@x.com"},
		},
		{
			name: "payload under payload.user",
			raw:  `{"id":"evt-3","subject":"auth.v1.user.created","payload":{"user":{"id":8,"name":"Kim","email":"k@x.com"}}}`,
			want: user.User{ID: 8, Name: "Kim", Email: "k@x.com"},
		},
		{
			name: "id arrives as a digit string",
			raw:  `{"id":"evt-4","subject":"auth.v1.user.created","data":{"user":{"id":"42","name":"Bob","email":"b@x.com"}}}`,
			want: user.User{ID: 42, Name: "Bob", Email: "b@x.com"},
		},
		{
			name: "name defaults to Unknown",
			raw:  `{"id":"evt-5","subject":"auth.v1.user.created","data":{"user":{"id":9,"email":"x@x.com"}}}`,
			want: user.User{ID: 9, Name: "Unknown", Email: "x@x.com"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeUserRepo()
			h := NewUserCreated(repo)

			require.NoError(t, h.Handle(context.Background(), envelope(t, tt.raw)))

			got := repo.users[tt.want.ID]
			require.NotNil(t, got)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestUserCreated_Validation(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "no user payload", raw: `{"id":"evt-1","subject":"auth.v1.user.created","data":{}}`},
		{name: "missing id", raw: `{"id":"evt-2","subject":"auth.v1.user.created","data":{"user":{"name":"Bob","email":"b@x.com"}}}`},
		{name: "non-numeric id", raw: `{"id":"evt-3","subject":"auth.v1.user.created","data":{"user":{"id":"abc","email":"b@x.com"}}}`},
		{name: "missing email", raw: `{"id":"evt-4","subject":"auth.v1.user.created","data":{"user":{"id":42,"name":"Bob"}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeUserRepo()
			h := NewUserCreated(repo)

			assert.Error(t, h.Handle(context.Background(), envelope(t, tt.raw)))
			assert.Empty(t, repo.users, "validation failures must not write")
		})
	}
}

func TestUserCreated_RedeliveryIsUpsert(t *testing.T) {
	repo := newFakeUserRepo(&user.User{ID: 42, Name: "Stale", Email: "old@x.com"})
	h := NewUserCreated(repo)

	raw := `{"id":"evt-1","subject":"auth.v1.user.created","data":{"user":{"id":42,"name":"Bob","email":"b@x.com"}}}`
	require.NoError(t, h.Handle(context.Background(), envelope(t, raw)))

	require.Len(t, repo.users, 1, "no duplicate row on redelivery")
	assert.Equal(t, user.User{ID: 42, Name: "Bob", Email: "b@x.com"}, *repo.users[42])
}

func TestUserUpdated_PartialDelta(t *testing.T) {
	repo := newFakeUserRepo(&user.User{ID: 42, Name: "Bob", Email: "b@x.com"})
	h := NewUserUpdated(repo)

	raw := `{"id":"evt-1","subject":"auth.v1.user.updated","data":{"user_id":42,"changed_fields":{"name":{"from":"Bob","to":"Alice"}}}}`
	require.NoError(t, h.Handle(context.Background(), envelope(t, raw)))

	got := repo.users[42]
	assert.Equal(t, "Alice", got.Name)
	assert.Equal(t, "b@x.com", got.Email, "fields outside the delta stay untouched")
}

func TestUserUpdated_BareScalarDelta(t *testing.T) {
	repo := newFakeUserRepo(&user.User{ID: 42, Name: "Bob", Email: "b@x.com"})
	h := NewUserUpdated(repo)

	raw := `{"id":"evt-1","subject":"auth.v1.user.updated","data":{"user_id":42,"changed_fields":{"email":"new@x.com"}}}`
	require.NoError(t, h.Handle(context.Background(), envelope(t, raw)))

	got := repo.users[42]
	assert.Equal(t, "Bob", got.Name)
	assert.Equal(t, "new@x.com", got.Email)
}

func TestUserUpdated_IDFallbackPaths(t *testing.T) {
	repo := newFakeUserRepo(&user.User{ID: 42, Name: "Bob", Email: "b@x.com"})
	h := NewUserUpdated(repo)

	raw := `{"id":"evt-1","subject":"auth.v1.user.updated","data":{"user":{"id":42},"changed_fields":{"name":{"to":"Alice"}}}}`
	require.NoError(t, h.Handle(context.Background(), envelope(t, raw)))
	assert.Equal(t, "Alice", repo.users[42].Name)
}

func TestUserUpdated_UnknownUserIsHardFailure(t *testing.T) {
	repo := newFakeUserRepo()
	h := NewUserUpdated(repo)

	raw := `{"id":"evt-1","subject":"auth.v1.user.updated","data":{"user_id":99,"changed_fields":{"name":{"to":"Alice"}}}}`
	err := h.Handle(context.Background(), envelope(t, raw))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "not synced yet")
}

func TestUserUpdated_EmptyDeltaIsNoop(t *testing.T) {
	repo := newFakeUserRepo(&user.User{ID: 42, Name: "Bob", Email: "b@x.com"})
	h := NewUserUpdated(repo)

	raw := `{"id":"evt-1","subject":"auth.v1.user.updated","data":{"user_id":42,"changed_fields":{}}}`
	require.NoError(t, h.Handle(context.Background(), envelope(t, raw)))
	assert.Equal(t, user.User{ID: 42, Name: "Bob", Email: "b@x.com"}, *repo.users[42])
}

func TestUserUpdated_MissingID(t *testing.T) {
	repo := newFakeUserRepo()
	h := NewUserUpdated(repo)

	raw := `{"id":"evt-1","subject":"auth.v1.user.updated","data":{"changed_fields":{"name":{"to":"Alice"}}}}`
	assert.Error(t, h.Handle(context.Background(), envelope(t, raw)))
}

func TestUserDeleted(t *testing.T) {
	repo := newFakeUserRepo(&user.User{ID: 42, Name: "Bob", Email: "b@x.com"})
	h := NewUserDeleted(repo)

	raw := `{"id":"evt-1","subject":"auth.v1.user.deleted","data":{"user_id":42}}`
	require.NoError(t, h.Handle(context.Background(), envelope(t, raw)))

	assert.Empty(t, repo.users)
	assert.Equal(t, []int64{42}, repo.deletedGroups)
}

func TestUserDeleted_UnknownIDIsNoop(t *testing.T) {
	repo := newFakeUserRepo()
	h := NewUserDeleted(repo)

	raw := `{"id":"evt-1","subject":"auth.v1.user.deleted","user_id":99}`
	assert.NoError(t, h.Handle(context.Background(), envelope(t, raw)))
}

func TestUserDeleted_MissingID(t *testing.T) {
	repo := newFakeUserRepo()
	h := NewUserDeleted(repo)

	raw := `{"id":"evt-1","subject":"auth.v1.user.deleted","data":{}}`
	assert.Error(t, h.Handle(context.Background(), envelope(t, raw)))
}
