package testutil

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"github.com/tendant/qc-labelsync/pkg/labelsync"
	"github.com/tendant/qc-labelsync/pkg/labelsync/api"
	"github.com/tendant/qc-labelsync/pkg/labelsync/labelstudio"
	repomemory "github.com/tendant/qc-labelsync/pkg/labelsync/repo/memory"
	"github.com/tendant/qc-labelsync/pkg/labelsync/storage/memory"
)

// ServiceToken is the token the test server's own annotation client uses
const ServiceToken = "service-token"

// TestEnv is a labelsync API server wired to in-memory backends and a
// fake annotation service reached over HTTP.
type TestEnv struct {
	Server       *httptest.Server
	Studio       *FakeStudio
	StudioServer *httptest.Server
	Catalog      *repomemory.Repository
	Store        *labelsync.ObjectStore
	Syncer       *labelsync.Syncer
}

// SetupTestServer creates a test server with all routes mounted under /api.
// The fake annotation service only accepts ServiceToken.
func SetupTestServer(t *testing.T) *TestEnv {
	t.Helper()

	studio := NewFakeStudio()
	studio.Token = ServiceToken
	studioServer := httptest.NewServer(studio.Handler())
	t.Cleanup(studioServer.Close)

	client := labelstudio.New(
		labelstudio.WithBaseURL(studioServer.URL),
		labelstudio.WithToken(ServiceToken),
	)

	catalog := repomemory.New()
	store := labelsync.NewObjectStore(memory.New(memory.WithBucket("qc-images")))

	syncer, err := labelsync.NewSyncer(client,
		labelsync.WithObjectStore(store),
		labelsync.WithCatalog(catalog),
		labelsync.WithProjectURL(studioServer.URL),
	)
	require.NoError(t, err)

	images, err := labelsync.NewImageService(store, catalog, nil, nil)
	require.NoError(t, err)

	handler := api.NewHandler(syncer, images,
		api.WithClientFactory(func(token string) labelsync.AnnotationClient {
			return client.ForToken(token)
		}),
	)

	r := chi.NewRouter()
	r.Mount("/api", handler.Routes())

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	return &TestEnv{
		Server:       server,
		Studio:       studio,
		StudioServer: studioServer,
		Catalog:      catalog,
		Store:        store,
		Syncer:       syncer,
	}
}

// SeedProduct creates a company (when needed) and a product with labels
func (e *TestEnv) SeedProduct(t *testing.T, company, name string, labels ...string) *labelsync.Product {
	t.Helper()
	ctx := context.Background()

	c := &labelsync.Company{Name: company}
	require.NoError(t, e.Catalog.CreateCompany(ctx, c))
	product := &labelsync.Product{CompanyID: c.ID, Name: name, ClassLabels: labels}
	require.NoError(t, e.Catalog.CreateProduct(ctx, product))
	return product
}
