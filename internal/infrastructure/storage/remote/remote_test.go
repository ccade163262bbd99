package remote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"

	"certkeeper/internal/app/server/api"
	"certkeeper/internal/domain/certificate"
	"certkeeper/internal/draftstore"
)

func newServer(t *testing.T) (*httptest.Server, *draftstore.Store) {
	t.Helper()
	serverStore, err := draftstore.Open(context.Background(), draftstore.NewMemoryBackend(), slog.Default())
	require.NoError(t, err)
	srv := httptest.NewServer(api.New(serverStore, slog.Default()))
	t.Cleanup(srv.Close)
	return srv, serverStore
}

func TestClient_RoundTrip(t *testing.T) {
	ctx := context.Background()
	srv, serverStore := newServer(t)
	c := New(srv.URL, slog.Default(), WithHTTPClient(srv.Client()))

	require.NoError(t, c.Ping(ctx))

	rec := certificate.NewRecord(certificate.TypeEICR, certificate.Payload{certificate.KeyClientName: "Acme"}, time.Now().UTC())
	require.NoError(t, c.Save(ctx, rec))

	got, ok := serverStore.Get(rec.ID)
	require.True(t, ok)
	assert.Equal(t, "Acme", got.ClientName)

	all, err := c.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, rec.ID, all[0].ID)
	assert.Equal(t, "Acme", all[0].Data.String(certificate.KeyClientName))

	require.NoError(t, c.Delete(ctx, rec.ID))
	_, ok = serverStore.Get(rec.ID)
	assert.False(t, ok)
}

func TestClient_AsDraftStoreBackend(t *testing.T) {
	ctx := context.Background()
	srv, serverStore := newServer(t)

	local, err := draftstore.Open(ctx, New(srv.URL, slog.Default()), slog.Default())
	require.NoError(t, err)
	defer local.Close()

	rec := certificate.NewRecord(certificate.TypeEIC, certificate.Payload{}, time.Time{})
	require.NoError(t, local.Add(ctx, rec))

	complete := certificate.StatusComplete
	_, err = local.Update(ctx, rec.ID, draftstore.Patch{Status: &complete})
	require.NoError(t, err)

	st, ok := serverStore.Status(rec.ID)
	require.True(t, ok)
	assert.Equal(t, certificate.StatusComplete, st)
	require.NoError(t, local.Ping(ctx))
}

func TestClient_MapsServerErrors(t *testing.T) {
	ctx := context.Background()
	srv, serverStore := newServer(t)
	c := New(srv.URL, slog.Default())

	issued := certificate.NewRecord(certificate.TypeMWC, certificate.Payload{certificate.KeyClientName: "Old"}, time.Now().UTC())
	issued.Status = certificate.StatusIssued
	_, _, err := serverStore.Put(ctx, issued)
	require.NoError(t, err)

	changed := issued.Clone()
	changed.Data[certificate.KeyClientName] = "New"
	err = c.Save(ctx, changed)
	assert.ErrorIs(t, err, certificate.ErrFinalized)

	back := issued.Clone()
	back.Status = certificate.StatusDraft
	err = c.Save(ctx, back)
	assert.ErrorIs(t, err, certificate.ErrInvalidTransition)
}

func TestClient_Unavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(url, slog.Default())
	err := c.Ping(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestDecodeError(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"detail wins", http.StatusConflict, `{"status":409,"detail":"add x: certificate id already exists"}`, certificate.ErrDuplicateID},
		{"not found by status", http.StatusNotFound, `{}`, certificate.ErrNotFound},
		{"validation", http.StatusUnprocessableEntity, `{"detail":"validation failed"}`, certificate.ErrInvalidData},
		{"server error", http.StatusBadGateway, ``, ErrUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, decodeError(tt.status, []byte(tt.body)), tt.want)
		})
	}
}

func TestBaseURL(t *testing.T) {
	assert.Equal(t, "http://localhost:8080", BaseURL("localhost:8080", false))
	assert.Equal(t, "https://certs.example.com", BaseURL("certs.example.com", true))
	assert.Equal(t, "http://127.0.0.1:9000", BaseURL("http://127.0.0.1:9000", true))
}
