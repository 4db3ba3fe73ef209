package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsightlab/finsight/internal/config"
	"github.com/finsightlab/finsight/internal/ledger"
	mw "github.com/finsightlab/finsight/internal/web/middleware"
)

// stubDirectory records lookups and creations for handler tests.
type stubDirectory struct {
	entities []ledger.Entity
	ensured  []string
}

func (d *stubDirectory) ListEntities(_ context.Context, owner uuid.UUID) ([]ledger.Entity, error) {
	return d.entities, nil
}

func (d *stubDirectory) EnsureEntity(_ context.Context, owner uuid.UUID, name string, kind ledger.EntityType) (*ledger.Entity, error) {
	d.ensured = append(d.ensured, name)
	e := ledger.Entity{
		ID:             uuid.New(),
		OwnerID:        owner,
		Name:           name,
		NormalizedName: ledger.NormalizeName(name),
		Type:           kind,
	}
	d.entities = append(d.entities, e)
	return &e, nil
}

func (d *stubDirectory) Categories(_ context.Context, owner uuid.UUID) ([]ledger.Category, error) {
	return ledger.DefaultCategories(owner), nil
}

func (d *stubDirectory) CreateCategory(_ context.Context, owner uuid.UUID, name string, kind ledger.CategoryKind) (*ledger.Category, error) {
	c := ledger.Category{ID: uuid.New(), OwnerID: owner, Name: name, Kind: kind}
	return &c, nil
}

func (d *stubDirectory) ListSessionTransactions(_ context.Context, owner, sessionID uuid.UUID) ([]ledger.Transaction, error) {
	return nil, nil
}

func newTestServer(dir Directory) *Server {
	cfg := &config.Config{}
	cfg.Server.RequestTimeout = time.Minute
	cfg.Import.MaxFileSize = 1 << 20
	cfg.Import.SessionListLimit = 50
	return NewServer(nil, dir, cfg)
}

func doJSON(t *testing.T, srv *Server, method, path, owner, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if owner != "" {
		req.Header.Set(mw.OwnerHeader, owner)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestCreateEntity(t *testing.T) {
	dir := &stubDirectory{}
	srv := newTestServer(dir)
	owner := uuid.New().String()

	rec := doJSON(t, srv, http.MethodPost, "/api/entities", owner,
		`{"name":"Amazon","type":"supplier"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var ent ledger.Entity
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ent))
	assert.Equal(t, "Amazon", ent.Name)
	assert.Equal(t, ledger.EntitySupplier, ent.Type)
	assert.Equal(t, []string{"Amazon"}, dir.ensured)

	// The created entity is immediately correctable and listable.
	rec = doJSON(t, srv, http.MethodGet, "/api/entities", owner, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var listing struct {
		Entities []ledger.Entity `json:"entities"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	require.Len(t, listing.Entities, 1)
	assert.Equal(t, ent.ID, listing.Entities[0].ID)
}

func TestCreateEntity_DefaultsType(t *testing.T) {
	dir := &stubDirectory{}
	srv := newTestServer(dir)

	rec := doJSON(t, srv, http.MethodPost, "/api/entities", uuid.New().String(),
		`{"name":"ACME Corp"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var ent ledger.Entity
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ent))
	assert.Equal(t, ledger.EntityBoth, ent.Type)
}

func TestCreateEntity_RejectsBadInput(t *testing.T) {
	srv := newTestServer(&stubDirectory{})
	owner := uuid.New().String()

	rec := doJSON(t, srv, http.MethodPost, "/api/entities", owner, `{"name":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/api/entities", owner,
		`{"name":"ACME","type":"vendor"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOwnerHeaderRequired(t *testing.T) {
	srv := newTestServer(&stubDirectory{})

	rec := doJSON(t, srv, http.MethodGet, "/api/entities", "", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "AUTH001", body.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/entities", "not-a-uuid", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "AUTH002", body.Code)
}
