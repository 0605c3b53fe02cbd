package crag

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCore(t *testing.T) *Core {
	t.Helper()
	t.Setenv("CRAG_VAULT_MASTER_KEY", "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef")

	core, err := New(Options{})
	require.NoError(t, err)
	return core
}

func TestNew_ConstructsWithoutBackgroundWork(t *testing.T) {
	core := newTestCore(t)
	assert.NotNil(t, core.State)
	assert.NotNil(t, core.Gateway)
	assert.NotNil(t, core.Router)
	assert.NotNil(t, core.HTTP)
}

func TestCore_HandlerServesHealthz(t *testing.T) {
	core := newTestCore(t)
	srv := httptest.NewServer(core.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)
}

func TestCore_RunStopsOnContextCancel(t *testing.T) {
	core := newTestCore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	core.Run(ctx)
}
