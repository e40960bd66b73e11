package client_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/appops/pkg/api"
	"github.com/Mindburn-Labs/appops/pkg/appops"
	"github.com/Mindburn-Labs/appops/pkg/auth"
	"github.com/Mindburn-Labs/appops/pkg/client"
	"github.com/Mindburn-Labs/appops/pkg/packages"
	"github.com/Mindburn-Labs/appops/pkg/registry"
)

const (
	appUID = 10077
	appPkg = "com.example.notes"
)

func newClients(t *testing.T) (app, shell *client.Client) {
	t.Helper()
	secret := []byte("client-test-secret")
	dir := packages.NewInMemoryDirectory(append(packages.Platform,
		packages.Package{Name: appPkg, UID: appUID},
	)...)
	svc := appops.New(appops.Options{Directory: dir})
	t.Cleanup(func() { _ = svc.Close(context.Background()) })

	ts := httptest.NewServer(api.NewServer(svc, api.ServerOptions{Validator: auth.NewTokenValidator(secret)}).Handler())
	t.Cleanup(ts.Close)

	appTok, err := auth.SignToken(secret, auth.App(appUID, appPkg), time.Hour, time.Now())
	require.NoError(t, err)
	shellTok, err := auth.SignToken(secret, auth.Shell(), time.Hour, time.Now())
	require.NoError(t, err)

	return client.New(ts.URL, client.WithToken(appTok), client.WithTimeout(5*time.Second)),
		client.New(ts.URL, client.WithToken(shellTok))
}

func TestClient_RoundTrip(t *testing.T) {
	ctx := context.Background()
	app, shell := newClients(t)

	require.NoError(t, app.Health(ctx))

	ops, err := app.Catalog(ctx)
	require.NoError(t, err)
	assert.Len(t, ops, registry.Default().Len())

	req := appops.Request{Op: registry.OpReadContacts, UID: appUID, Package: appPkg}
	mode, err := app.Note(ctx, api.NoteRequest{Request: req})
	require.NoError(t, err)
	assert.Equal(t, registry.ModeAllowed, mode)

	require.NoError(t, shell.SetMode(ctx, registry.OpReadContacts, appUID, appPkg, registry.ModeIgnored))
	mode, err = app.Check(ctx, api.CheckRequest{Op: registry.OpReadContacts, UID: appUID, Package: appPkg})
	require.NoError(t, err)
	assert.Equal(t, registry.ModeIgnored, mode)

	mode, err = app.Note(ctx, api.NoteRequest{Request: req})
	require.NoError(t, err)
	assert.Equal(t, registry.ModeIgnored, mode)

	rec, err := app.LastAccess(ctx, req, "rejected")
	require.NoError(t, err)
	assert.Equal(t, registry.ModeIgnored, rec.Mode)

	entries, err := app.OpsForPackage(ctx, appUID, appPkg)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.NotNil(t, entries[0].Allowed)
	assert.NotNil(t, entries[0].Rejected)

	require.NoError(t, shell.ResetAllModes(ctx, appUID, appPkg))
	require.NoError(t, shell.SetUIDMode(ctx, registry.OpCamera, appUID, registry.ModeAllowed))
	require.NoError(t, shell.Reload(ctx))

	var apiErr *client.APIError
	require.ErrorAs(t, app.RemovePackage(ctx, appUID, appPkg), &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	require.NoError(t, shell.RemovePackage(ctx, appUID, appPkg))
	_, err = app.Check(ctx, api.CheckRequest{Op: registry.OpReadContacts, UID: appUID, Package: appPkg})
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
}

func TestClient_Spans(t *testing.T) {
	ctx := context.Background()
	app, shell := newClients(t)

	req := appops.Request{Op: registry.OpCamera, UID: appUID, Package: appPkg}
	mode, err := app.Start(ctx, api.NoteRequest{Request: req})
	require.NoError(t, err)
	assert.Equal(t, registry.ModeAllowed, mode)

	spans, err := shell.ActiveSpans(ctx, -1)
	require.NoError(t, err)
	require.Len(t, spans, 1)
	assert.Equal(t, appPkg, spans[0].Package)

	require.NoError(t, app.Finish(ctx, req))
	spans, err = app.ActiveSpans(ctx, appUID)
	require.NoError(t, err)
	assert.Empty(t, spans)
}

func TestClient_APIError(t *testing.T) {
	ctx := context.Background()
	app, _ := newClients(t)

	err := app.SetMode(ctx, registry.OpCamera, appUID, appPkg, registry.ModeIgnored)
	var apiErr *client.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Equal(t, "Forbidden", apiErr.Title)

	_, err = app.Check(ctx, api.CheckRequest{Op: "android:teleport", UID: appUID, Package: appPkg})
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)

	anon := client.New(app.BaseURL)
	_, err = anon.Catalog(ctx)
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
}
