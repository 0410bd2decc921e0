package consumer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouter_Resolve(t *testing.T) {
	created := &stubHandler{}
	deleted := &stubHandler{}

	r := NewRouter()
	r.Register("auth.v1.user.created", created)
	r.Register("auth.v1.user.deleted", deleted)

	h, err := r.Resolve("auth.v1.user.created")
	require.NoError(t, err)
	assert.Same(t, created, h)

	h, err = r.Resolve("auth.v1.user.deleted")
	require.NoError(t, err)
	assert.Same(t, deleted, h)
}

func TestRouter_ResolveUnknownSubject(t *testing.T) {
	r := NewRouter()
	r.Register("auth.v1.user.created", &stubHandler{})

	h, err := r.Resolve("auth.v1.user.promoted")
	require.Error(t, err)
	assert.Nil(t, h)

	var routingErr *RoutingError
	require.True(t, errors.As(err, &routingErr), "unknown subjects surface a RoutingError")
	assert.Equal(t, "auth.v1.user.promoted", routingErr.Subject)
	assert.Contains(t, err.Error(), "auth.v1.user.promoted")
}
