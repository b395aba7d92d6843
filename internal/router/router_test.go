package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/FACorreiaa/go-user-accounts/config"
	"github.com/FACorreiaa/go-user-accounts/internal/api"
	"github.com/FACorreiaa/go-user-accounts/internal/api/auth"
	"github.com/FACorreiaa/go-user-accounts/internal/api/user"
)

// memoryUserRepo is an in-memory user.UserRepo used to exercise the full
// HTTP stack without Postgres. It mirrors the store's contract: unique
// username/email enforced under a single lock, insertion-order listing.
type memoryUserRepo struct {
	mu    sync.Mutex
	users []api.User
}

var _ user.UserRepo = (*memoryUserRepo)(nil)

func (m *memoryUserRepo) Create(ctx context.Context, params user.CreateUserParams) (*api.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.users {
		if m.users[i].Username == params.Username || m.users[i].Email == params.Email {
			return nil, api.ErrConflict
		}
	}
	now := time.Now()
	u := api.User{
		ID:           uuid.New(),
		Username:     params.Username,
		Email:        params.Email,
		FullName:     params.FullName,
		PasswordHash: params.PasswordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.users = append(m.users, u)
	return &u, nil
}

func (m *memoryUserRepo) GetByUsername(ctx context.Context, username string) (*api.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.users {
		if m.users[i].Username == username {
			u := m.users[i]
			return &u, nil
		}
	}
	return nil, api.ErrNotFound
}

func (m *memoryUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*api.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.users {
		if m.users[i].ID == id {
			u := m.users[i]
			return &u, nil
		}
	}
	return nil, api.ErrNotFound
}

func (m *memoryUserRepo) List(ctx context.Context) ([]api.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]api.User, len(m.users))
	copy(out, m.users)
	return out, nil
}

func (m *memoryUserRepo) Update(ctx context.Context, id uuid.UUID, params api.UpdateUserParams) (*api.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.users {
		if m.users[i].ID == id {
			if params.FullName != nil {
				m.users[i].FullName = *params.FullName
			}
			m.users[i].UpdatedAt = time.Now()
			u := m.users[i]
			return &u, nil
		}
	}
	return nil, api.ErrNotFound
}

func (m *memoryUserRepo) Delete(ctx context.Context, id uuid.UUID) (*api.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.users {
		if m.users[i].ID == id {
			u := m.users[i]
			m.users = append(m.users[:i], m.users[i+1:]...)
			return &u, nil
		}
	}
	return nil, api.ErrNotFound
}

// newTestServer wires the real services and handlers over the in-memory
// repo, matching the production composition in internal/container.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := &memoryUserRepo{}

	hasher := auth.NewBcryptHasher(bcrypt.MinCost)
	tokens := auth.NewTokenService(config.AuthConfig{
		SecretKey:      "integration-test-secret",
		AccessTokenTTL: 30 * time.Minute,
		Issuer:         "go-user-accounts",
	})

	authService := auth.NewAuthService(repo, hasher, tokens, logger)
	authHandler := auth.NewAuthHandler(authService, logger)

	userService := user.NewUserService(repo, logger)
	userHandler := user.NewHandlerImpl(userService, logger)

	r := SetupRouter(&Config{
		AuthHandler:            authHandler,
		UserHandler:            userHandler,
		AuthenticateMiddleware: auth.Authenticate(authService, logger),
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func registerUser(t *testing.T, srv *httptest.Server, username, email, fullName, password string) api.PublicUser {
	t.Helper()

	body, err := json.Marshal(api.RegisterRequest{
		Username: username,
		Email:    email,
		FullName: fullName,
		Password: password,
	})
	require.NoError(t, err)

	resp, err := http.Post(srv.URL+"/register", "application/json", bytes.NewBuffer(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var created api.PublicUser
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	return created
}

func loginUser(t *testing.T, srv *httptest.Server, username, password string) string {
	t.Helper()

	form := url.Values{"username": {username}, "password": {password}}
	resp, err := http.Post(srv.URL+"/token", "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var tok api.TokenResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tok))
	require.Equal(t, "bearer", tok.TokenType)
	require.NotEmpty(t, tok.AccessToken)
	return tok.AccessToken
}

func authorizedRequest(t *testing.T, method, target, token string, body io.Reader) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, target, body)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func decodeDetail(t *testing.T, resp *http.Response) string {
	t.Helper()
	var payload struct {
		Detail string `json:"detail"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	return payload.Detail
}

func TestRootEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRegisterAndDuplicate(t *testing.T) {
	srv := newTestServer(t)

	created := registerUser(t, srv, "deadpond", "deadpond@example.com", "Dead Pond", "chimichanga")
	assert.Equal(t, "deadpond", created.Username)
	assert.Equal(t, "deadpond@example.com", created.Email)
	assert.NotEqual(t, uuid.Nil, created.ID)

	// Same username, different email: the response does not say which
	// field collided.
	body, _ := json.Marshal(api.RegisterRequest{
		Username: "deadpond",
		Email:    "other@example.com",
		FullName: "Someone Else",
		Password: "secret",
	})
	resp, err := http.Post(srv.URL+"/register", "application/json", bytes.NewBuffer(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Username or Email already registered", decodeDetail(t, resp))
}

func TestRegisterNeverExposesPassword(t *testing.T) {
	srv := newTestServer(t)

	body, _ := json.Marshal(api.RegisterRequest{
		Username: "deadpond",
		Email:    "deadpond@example.com",
		FullName: "Dead Pond",
		Password: "chimichanga",
	})
	resp, err := http.Post(srv.URL+"/register", "application/json", bytes.NewBuffer(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "chimichanga")
	assert.NotContains(t, string(raw), "password")
}

func TestLoginFlow(t *testing.T) {
	srv := newTestServer(t)
	registerUser(t, srv, "deadpond", "deadpond@example.com", "Dead Pond", "chimichanga")

	t.Run("Success", func(t *testing.T) {
		token := loginUser(t, srv, "deadpond", "chimichanga")
		assert.NotEmpty(t, token)
	})

	t.Run("WrongPassword", func(t *testing.T) {
		form := url.Values{"username": {"deadpond"}, "password": {"wrong"}}
		resp, err := http.Post(srv.URL+"/token", "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "Could not validate credentials", decodeDetail(t, resp))
	})

	t.Run("UnknownUsername", func(t *testing.T) {
		form := url.Values{"username": {"nobody"}, "password": {"chimichanga"}}
		resp, err := http.Post(srv.URL+"/token", "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "Could not validate credentials", decodeDetail(t, resp))
	})
}

func TestUsersMe(t *testing.T) {
	srv := newTestServer(t)
	created := registerUser(t, srv, "deadpond", "deadpond@example.com", "Dead Pond", "chimichanga")
	token := loginUser(t, srv, "deadpond", "chimichanga")

	t.Run("WithToken", func(t *testing.T) {
		req := authorizedRequest(t, http.MethodGet, srv.URL+"/users/me", token, nil)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)
		var me api.PublicUser
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&me))
		assert.Equal(t, created.ID, me.ID)
		assert.Equal(t, "deadpond", me.Username)
	})

	t.Run("NoToken", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/users/me")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "Could not validate credentials", decodeDetail(t, resp))
	})

	t.Run("GarbageToken", func(t *testing.T) {
		req := authorizedRequest(t, http.MethodGet, srv.URL+"/users/me", "not-a-jwt", nil)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "Could not validate credentials", decodeDetail(t, resp))
	})
}

func TestListUsersIsPublicAndOrdered(t *testing.T) {
	srv := newTestServer(t)
	for i := 0; i < 3; i++ {
		registerUser(t, srv,
			fmt.Sprintf("user%d", i),
			fmt.Sprintf("user%d@example.com", i),
			fmt.Sprintf("User %d", i),
			"secret")
	}

	resp, err := http.Get(srv.URL + "/users")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var users []api.PublicUser
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&users))
	require.Len(t, users, 3)
	for i := range users {
		assert.Equal(t, fmt.Sprintf("user%d", i), users[i].Username)
	}
}

func TestUpdateThenFetch(t *testing.T) {
	srv := newTestServer(t)
	created := registerUser(t, srv, "deadpond", "deadpond@example.com", "Dead Pond", "chimichanga")
	token := loginUser(t, srv, "deadpond", "chimichanga")

	body, _ := json.Marshal(map[string]string{"full_name": "Wade Wilson"})
	req := authorizedRequest(t, http.MethodPut, srv.URL+"/users/"+created.ID.String(), token, bytes.NewBuffer(body))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// A read after the update reflects the new name; identity fields stay
	// as registered.
	req = authorizedRequest(t, http.MethodGet, srv.URL+"/users/"+created.ID.String(), token, nil)
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusOK, resp2.StatusCode)

	var fetched api.PublicUser
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&fetched))
	assert.Equal(t, "Wade Wilson", fetched.FullName)
	assert.Equal(t, "deadpond", fetched.Username)
	assert.Equal(t, "deadpond@example.com", fetched.Email)
}

func TestDeleteUser(t *testing.T) {
	srv := newTestServer(t)
	created := registerUser(t, srv, "deadpond", "deadpond@example.com", "Dead Pond", "chimichanga")
	token := loginUser(t, srv, "deadpond", "chimichanga")

	req := authorizedRequest(t, http.MethodDelete, srv.URL+"/users/"+created.ID.String(), token, nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// The account is gone and its token no longer resolves an identity.
	req = authorizedRequest(t, http.MethodGet, srv.URL+"/users/me", token, nil)
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp2.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/users", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
