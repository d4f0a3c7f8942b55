package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.pilab.hu/accord/cache"
	"go.pilab.hu/accord/inmem"
	"go.pilab.hu/accord/internal/auth"
	"go.pilab.hu/accord/services"
)

type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) { return "h:" + password, nil }
func (plainHasher) Verify(hash, password string) error {
	if hash == "h:"+password {
		return nil
	}
	return errors.New("mismatch")
}

func newTestServer(t *testing.T) (*echo.Echo, *Server) {
	t.Helper()

	store := inmem.NewStore()
	entityCache := cache.NewMemoryEntityCache(time.Minute)
	t.Cleanup(entityCache.Close)

	revocations := services.NewRevocationService(store, store)
	tokens := services.NewTokenService(store, revocations, time.Hour)
	assignments := services.NewAssignmentService(store, store, store, store, store, store, revocations)
	hasher := plainHasher{}
	trusts := services.NewTrustService(store, store, store, assignments, tokens, revocations, hasher)
	registry := services.NewRegistryService(
		store, store, store, store, store,
		assignments, tokens, revocations,
		entityCache, time.Minute, hasher)
	authSvc := services.NewAuthService(store, store, store, assignments, tokens, revocations, hasher, nil)

	srv := New(registry, assignments, tokens, trusts, authSvc, nil)
	e := echo.New()
	srv.RegisterRoutes(e)
	return e, srv
}

func doJSON(e *echo.Echo, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestDomainLifecycleOverHTTP(t *testing.T) {
	e, _ := newTestServer(t)

	rec := doJSON(e, http.MethodPost, "/v1/domains", `{"name":"ops"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "ops", created.Name)

	rec = doJSON(e, http.MethodGet, "/v1/domains/"+created.ID, "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Duplicate names collide.
	rec = doJSON(e, http.MethodPost, "/v1/domains", `{"name":"OPS"}`, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// The default domain cannot be deleted.
	rec = doJSON(e, http.MethodDelete, "/v1/domains/default", "", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(e, http.MethodGet, "/v1/domains/no-such-id", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTokenFlowOverHTTP(t *testing.T) {
	e, _ := newTestServer(t)

	rec := doJSON(e, http.MethodPost, "/v1/users",
		`{"domain_id":"default","name":"alice","password":"s3cret"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(e, http.MethodPost, "/v1/auth/tokens",
		`{"user_name":"alice","password":"s3cret"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	tokenID := rec.Header().Get(subjectTokenHeader)
	require.NotEmpty(t, tokenID)

	rec = doJSON(e, http.MethodGet, "/v1/auth/tokens", "",
		map[string]string{subjectTokenHeader: tokenID})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(e, http.MethodDelete, "/v1/auth/tokens", "",
		map[string]string{subjectTokenHeader: tokenID})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(e, http.MethodGet, "/v1/auth/tokens", "",
		map[string]string{subjectTokenHeader: tokenID})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Bad credentials surface as 401, missing headers as 400.
	rec = doJSON(e, http.MethodPost, "/v1/auth/tokens",
		`{"user_name":"alice","password":"wrong"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = doJSON(e, http.MethodGet, "/v1/auth/tokens", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGrantEndpointsOverHTTP(t *testing.T) {
	e, _ := newTestServer(t)

	rec := doJSON(e, http.MethodPost, "/v1/projects",
		`{"domain_id":"default","name":"fleet"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var project struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &project))

	rec = doJSON(e, http.MethodPost, "/v1/roles", `{"name":"viewer"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var role struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &role))

	grantBody := `{"role_id":"` + role.ID + `","actor":{"kind":"user","id":"u1"},` +
		`"target":{"kind":"project","id":"` + project.ID + `"}}`

	rec = doJSON(e, http.MethodPut, "/v1/grants", grantBody, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(e, http.MethodPut, "/v1/grants", grantBody, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(e, http.MethodPost, "/v1/grants/list", grantBody, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Roles []struct {
			ID string `json:"id"`
		} `json:"roles"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed.Roles, 1)
	assert.Equal(t, role.ID, listed.Roles[0].ID)

	rec = doJSON(e, http.MethodDelete, "/v1/grants", grantBody, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = doJSON(e, http.MethodDelete, "/v1/grants", grantBody, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPolicyGuardOverHTTP(t *testing.T) {
	e, srv := newTestServer(t)

	// Bootstrap an admin while the guard is still disabled.
	rec := doJSON(e, http.MethodPost, "/v1/projects",
		`{"domain_id":"default","name":"fleet"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var project struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &project))

	rec = doJSON(e, http.MethodPost, "/v1/roles", `{"name":"admin"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var adminRole struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &adminRole))

	rec = doJSON(e, http.MethodPost, "/v1/users",
		`{"domain_id":"default","name":"root","password":"s3cret"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var admin struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &admin))

	rec = doJSON(e, http.MethodPut, "/v1/grants",
		`{"role_id":"`+adminRole.ID+`","actor":{"kind":"user","id":"`+admin.ID+`"},`+
			`"target":{"kind":"project","id":"`+project.ID+`"}}`, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(e, http.MethodPost, "/v1/auth/tokens",
		`{"user_name":"root","password":"s3cret","scope_project_id":"`+project.ID+`"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	adminToken := rec.Header().Get(subjectTokenHeader)

	srv.policy = auth.NewStaticPolicyEngine(map[string][]string{
		adminRole.ID: {AdminAction},
	})

	rec = doJSON(e, http.MethodPost, "/v1/domains", `{"name":"guarded"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(e, http.MethodPost, "/v1/domains", `{"name":"guarded"}`,
		map[string]string{authTokenHeader: "bogus"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(e, http.MethodPost, "/v1/domains", `{"name":"guarded"}`,
		map[string]string{authTokenHeader: adminToken})
	assert.Equal(t, http.StatusCreated, rec.Code)
}
