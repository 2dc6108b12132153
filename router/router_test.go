// file: router/router_test.go

package router_test

import (
	"book-club-api/client"
	"book-club-api/config"
	"book-club-api/handler"
	"book-club-api/model"
	"book-club-api/repository"
	"book-club-api/router"
	"book-club-api/service"
	"context"
	"database/sql"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	config.AppConfig.JWT.SecretKey = "router-test-secret"
	config.AppConfig.JWT.AccessTTL = 15 * time.Minute
	config.AppConfig.Refresh.TTL = 720 * time.Hour
	config.AppConfig.Refresh.CookieName = "refresh_token"
	config.AppConfig.Refresh.CookiePath = "/auth"
	os.Exit(m.Run())
}

// --- In-memory repositories ---
// The full rotation protocol runs against these instead of Postgres, so the
// suite needs no external services.

type memUserRepo struct {
	mu    sync.Mutex
	seq   int
	users map[int]*model.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: map[int]*model.User{}}
}

func (r *memUserRepo) CreateUser(user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	user.ID = r.seq
	user.Role = "user"
	user.CreatedAt = time.Now()
	stored := *user
	r.users[user.ID] = &stored
	return nil
}

func (r *memUserRepo) GetUserByEmail(email string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *memUserRepo) GetUserByUsername(username string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == username {
			copied := *u
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *memUserRepo) GetUserByID(id int) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		copied := *u
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

type memTokenRepo struct {
	mu     sync.Mutex
	tokens map[uuid.UUID]*model.RefreshToken
}

func newMemTokenRepo() *memTokenRepo {
	return &memTokenRepo{tokens: map[uuid.UUID]*model.RefreshToken{}}
}

func (r *memTokenRepo) Create(ctx context.Context, token *model.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	token.IssuedAt = time.Now()
	stored := *token
	r.tokens[token.ID] = &stored
	return nil
}

func (r *memTokenRepo) GetByTokenHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tokens {
		if t.TokenHash == tokenHash {
			copied := *t
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *memTokenRepo) Rotate(ctx context.Context, oldID uuid.UUID, next *model.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, ok := r.tokens[oldID]
	if !ok || old.Revoked {
		return repository.ErrTokenAlreadyRotated
	}
	old.Revoked = true
	old.ReplacedByID = &next.ID
	next.IssuedAt = time.Now()
	stored := *next
	r.tokens[next.ID] = &stored
	return nil
}

func (r *memTokenRepo) Revoke(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tokens[id]; ok {
		t.Revoked = true
	}
	return nil
}

func (r *memTokenRepo) RevokeChain(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Forward over successor links.
	for cur, ok := r.tokens[id]; ok; {
		cur.Revoked = true
		if cur.ReplacedByID == nil {
			break
		}
		cur, ok = r.tokens[*cur.ReplacedByID]
	}
	// Backward: any token whose successor chain reaches id.
	for changed := true; changed; {
		changed = false
		for _, t := range r.tokens {
			if t.ReplacedByID == nil || t.Revoked {
				continue
			}
			if succ, ok := r.tokens[*t.ReplacedByID]; ok && succ.Revoked {
				t.Revoked = true
				changed = true
			}
		}
	}
	return nil
}

func (r *memTokenRepo) RevokeAllForUser(ctx context.Context, userID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tokens {
		if t.UserID == userID {
			t.Revoked = true
		}
	}
	return nil
}

func (r *memTokenRepo) DeleteExpired(ctx context.Context) (int64, error) {
	return 0, nil
}

func (r *memTokenRepo) activeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, t := range r.tokens {
		if !t.Revoked {
			n++
		}
	}
	return n
}

// --- Test wiring ---

type testEnv struct {
	server       *httptest.Server
	tokenRepo    *memTokenRepo
	refreshCalls int32
}

func newTestEnv(t *testing.T) *testEnv {
	userRepo := newMemUserRepo()
	tokenRepo := newMemTokenRepo()

	authService := service.NewAuthService(userRepo, tokenRepo)
	userService := service.NewUserService(userRepo, nil)

	authHandler := handler.NewAuthHandler(authService)
	userHandler := handler.NewUserHandler(userService)

	env := &testEnv{tokenRepo: tokenRepo}

	r := router.NewRouter(authHandler, userHandler)
	counting := http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path == "/auth/refresh" {
			atomic.AddInt32(&env.refreshCalls, 1)
		}
		r.ServeHTTP(w, req)
	})

	env.server = httptest.NewServer(counting)
	t.Cleanup(env.server.Close)
	return env
}

func registerForTest(t *testing.T, c *client.Client) *client.Session {
	session := client.NewSession(c)
	_, err := session.Register(context.Background(), "reader", "reader@example.com", "password123")
	require.NoError(t, err)
	return session
}

// Three concurrent requests without an access token must share a single
// refresh. A second refresh would trip the server's replay detection and kill
// the chain, so this exercises both sides of the contract at once.
func TestRouter_SingleFlightRefreshEndToEnd(t *testing.T) {
	env := newTestEnv(t)

	c, err := client.New(env.server.URL)
	require.NoError(t, err)

	// Seed the cookie jar with a refresh credential but hold no access token
	// in memory, as after a process restart.
	payload := strings.NewReader(`{"username":"reader","email":"reader@example.com","password":"password123"}`)
	req, err := c.NewRequest(context.Background(), http.MethodPost, "/auth/register", payload)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTPClient().Do(req)
	require.NoError(t, err)
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	atomic.StoreInt32(&env.refreshCalls, 0)

	const n = 3
	var wg sync.WaitGroup
	statuses := make([]int, n)
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req, err := c.NewRequest(context.Background(), http.MethodGet, "/users/me", nil)
			if err != nil {
				errs[i] = err
				return
			}
			resp, err := c.Do(req)
			if err != nil {
				errs[i] = err
				return
			}
			defer resp.Body.Close()
			statuses[i] = resp.StatusCode
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i], "request %d", i)
		assert.Equal(t, http.StatusOK, statuses[i], "request %d", i)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&env.refreshCalls), "expected exactly one refresh call")
	assert.Equal(t, 1, env.tokenRepo.activeCount(), "exactly one live credential after rotation")
}

// Rotate C1 to C2, replay C1, then try the legitimate C2: the replay must be
// rejected and must take the whole chain down with it.
func TestRouter_ReplayedCredentialKillsChain(t *testing.T) {
	env := newTestEnv(t)

	c, err := client.New(env.server.URL)
	require.NoError(t, err)
	registerForTest(t, c)

	base, err := url.Parse(env.server.URL)
	require.NoError(t, err)

	// Fish the raw C1 cookie out of the jar so it can be replayed later.
	authURL := base.ResolveReference(&url.URL{Path: "/auth"})
	var c1 string
	for _, cookie := range c.HTTPClient().Jar.Cookies(authURL) {
		if cookie.Name == config.AppConfig.Refresh.CookieName {
			c1 = cookie.Value
		}
	}
	require.NotEmpty(t, c1, "registration must have produced a refresh cookie")

	plain := &http.Client{}
	refreshWith := func(raw string) *http.Response {
		req, err := http.NewRequest(http.MethodPost, env.server.URL+"/auth/refresh", nil)
		require.NoError(t, err)
		req.AddCookie(&http.Cookie{Name: config.AppConfig.Refresh.CookieName, Value: raw})
		resp, err := plain.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		return resp
	}

	// Legitimate rotation: C1 -> C2.
	resp := refreshWith(c1)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var c2 string
	for _, cookie := range resp.Cookies() {
		if cookie.Name == config.AppConfig.Refresh.CookieName {
			c2 = cookie.Value
		}
	}
	require.NotEmpty(t, c2)
	require.NotEqual(t, c1, c2, "rotation must issue a fresh credential")

	// Replay of the stale C1: rejected, chain revoked.
	resp = refreshWith(c1)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, 0, env.tokenRepo.activeCount(), "replay must revoke the whole chain")

	// The once-legitimate C2 is now dead too.
	resp = refreshWith(c2)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRouter_LogoutIsIdempotent(t *testing.T) {
	env := newTestEnv(t)

	req, err := http.NewRequest(http.MethodPost, env.server.URL+"/auth/logout", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestRouter_HealthCheck(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRouter_MeRequiresToken(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.server.URL + "/users/me")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
