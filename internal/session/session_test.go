package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mmeshcher/clinic-portal/internal/apiclient"
	"github.com/mmeshcher/clinic-portal/internal/model"
	"github.com/mmeshcher/clinic-portal/internal/storage"
)

type fixedLocale model.Locale

func (f fixedLocale) Locale() model.Locale { return model.Locale(f) }

type recordingNavigator struct {
	mu     sync.Mutex
	routes []string
}

func (n *recordingNavigator) Navigate(_ context.Context, route string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.routes = append(n.routes, route)
}

func (n *recordingNavigator) last() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.routes) == 0 {
		return ""
	}
	return n.routes[len(n.routes)-1]
}

type fakeAPI struct {
	mu       sync.Mutex
	calls    map[string]int
	authSeen map[string]string

	sendStatus   int
	verifyStatus int
	verifyBody   any
	userStatus   int
	user         model.User
	logoutStatus int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		calls:        make(map[string]int),
		authSeen:     make(map[string]string),
		sendStatus:   http.StatusOK,
		verifyStatus: http.StatusOK,
		verifyBody: map[string]any{
			"access_token": "opaque-token",
			"token_type":   "Bearer",
			"user":         map[string]any{"id": 7, "phone": "998901234567"},
		},
		userStatus:   http.StatusOK,
		user:         model.User{ID: 7, Phone: "998901234567", FirstName: "Aziza"},
		logoutStatus: http.StatusOK,
	}
}

func (f *fakeAPI) configure(fn func(*fakeAPI)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeAPI) auth(key string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.authSeen[key]
}

func (f *fakeAPI) count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := r.Method + " " + r.URL.Path

	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[key]++
	f.authSeen[key] = r.Header.Get("Authorization")

	writeJSON := func(status int, body any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if body != nil {
			_ = json.NewEncoder(w).Encode(body)
		}
	}

	switch key {
	case "POST " + PathSendOTP:
		writeJSON(f.sendStatus, map[string]bool{"ok": f.sendStatus == http.StatusOK})
	case "POST " + PathVerifyOTP:
		if f.verifyStatus != http.StatusOK {
			writeJSON(f.verifyStatus, map[string]string{"detail": "invalid code"})
			return
		}
		writeJSON(http.StatusOK, f.verifyBody)
	case "GET " + PathUser:
		if f.userStatus != http.StatusOK {
			writeJSON(f.userStatus, nil)
			return
		}
		writeJSON(http.StatusOK, f.user)
	case "PUT " + PathUser:
		var u model.User
		_ = json.NewDecoder(r.Body).Decode(&u)
		writeJSON(http.StatusOK, u)
	case "POST " + PathLogout:
		w.WriteHeader(f.logoutStatus)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

type fixture struct {
	api   *fakeAPI
	st    *storage.MemoryStorage
	nav   *recordingNavigator
	store *Store
}

func newFixture(t *testing.T, locale model.Locale) *fixture {
	t.Helper()

	api := newFakeAPI()
	ts := httptest.NewServer(api)
	t.Cleanup(ts.Close)

	client := apiclient.NewClient(ts.URL, time.Second, fixedLocale(locale))
	st := storage.NewMemoryStorage()
	nav := &recordingNavigator{}

	store := NewStore(client, st, fixedLocale(locale), nav, DefaultRoutes(), zap.NewNop())
	client.SetTokenSource(store)
	store.Init(context.Background())

	return &fixture{api: api, st: st, nav: nav, store: store}
}

func storedKeys(t *testing.T, st storage.Storage) map[string]string {
	t.Helper()
	res := make(map[string]string)
	for _, k := range []string{storage.KeyAuthToken, storage.KeyTokenType, storage.KeyUser, storage.KeyTokenExpiresAt} {
		v, ok, err := st.Get(context.Background(), k)
		require.NoError(t, err)
		if ok {
			res[k] = v
		}
	}
	return res
}

func TestLoginLogoutLifecycle(t *testing.T) {
	f := newFixture(t, model.LocaleRu)
	ctx := context.Background()

	assert.False(t, f.store.IsAuthenticated())

	require.True(t, f.store.SendOTP(ctx, "998901234567"))
	require.True(t, f.store.VerifyOTP(ctx, "998901234567", "1234"))

	assert.True(t, f.store.IsAuthenticated())
	assert.Equal(t, "/account", f.nav.last())
	assert.Empty(t, f.store.Error())

	keys := storedKeys(t, f.st)
	assert.Equal(t, "opaque-token", keys[storage.KeyAuthToken])
	assert.Equal(t, "Bearer", keys[storage.KeyTokenType])
	assert.Contains(t, keys[storage.KeyUser], "998901234567")
	assert.NotContains(t, keys, storage.KeyTokenExpiresAt)

	f.store.Logout(ctx)

	assert.False(t, f.store.IsAuthenticated())
	assert.Equal(t, "/login", f.nav.last())
	assert.Empty(t, storedKeys(t, f.st))
	assert.Equal(t, 1, f.api.count("POST "+PathLogout))
	assert.Equal(t, "Bearer opaque-token", f.api.auth("POST "+PathLogout))
}

func TestSessionSurvivesReload(t *testing.T) {
	f := newFixture(t, model.LocaleRu)
	ctx := context.Background()

	require.True(t, f.store.VerifyOTP(ctx, "998901234567", "1234"))

	reloaded := NewStore(nil, f.st, nil, nil, DefaultRoutes(), zap.NewNop())
	reloaded.Init(ctx)

	assert.True(t, reloaded.IsAuthenticated())
	sess := reloaded.Session()
	require.NotNil(t, sess.User)
	assert.Equal(t, int64(7), sess.User.ID)
}

func TestVerifyOTP_FailureDoesNotTouchStorage(t *testing.T) {
	tests := []struct {
		name    string
		locale  model.Locale
		status  int
		body    any
		wantMsg string
	}{
		{
			name:    "invalid code ru",
			locale:  model.LocaleRu,
			status:  http.StatusBadRequest,
			wantMsg: "Неверный код подтверждения.",
		},
		{
			name:    "invalid code uz",
			locale:  model.LocaleUz,
			status:  http.StatusBadRequest,
			wantMsg: "Tasdiqlash kodi noto'g'ri.",
		},
		{
			name:    "server error en",
			locale:  model.LocaleEn,
			status:  http.StatusInternalServerError,
			wantMsg: "Failed to sign in. Please try again later.",
		},
		{
			name:    "empty token",
			locale:  model.LocaleRu,
			status:  http.StatusOK,
			body:    map[string]any{"token_type": "Bearer"},
			wantMsg: "Не удалось выполнить вход. Попробуйте позже.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.locale)
			f.api.configure(func(a *fakeAPI) { a.verifyStatus = tt.status })
			if tt.body != nil {
				f.api.configure(func(a *fakeAPI) { a.verifyBody = tt.body })
			}

			require.NoError(t, f.st.Set(context.Background(), "unrelated", "x"))

			ok := f.store.VerifyOTP(context.Background(), "998901234567", "0000")
			assert.False(t, ok)
			assert.False(t, f.store.IsAuthenticated())
			assert.Equal(t, tt.wantMsg, f.store.Error())
			assert.Empty(t, storedKeys(t, f.st))
			assert.Empty(t, f.nav.last())
		})
	}
}

func TestSendOTP_Failure(t *testing.T) {
	f := newFixture(t, model.LocaleUz)
	f.api.configure(func(a *fakeAPI) { a.sendStatus = http.StatusTooManyRequests })

	assert.False(t, f.store.SendOTP(context.Background(), "998901234567"))
	assert.Equal(t, "Kodni yuborib bo'lmadi. Keyinroq urinib ko'ring.", f.store.Error())

	f.api.configure(func(a *fakeAPI) { a.sendStatus = http.StatusOK })
	assert.True(t, f.store.SendOTP(context.Background(), "998901234567"))
	assert.Empty(t, f.store.Error())
}

func TestSendOTP_EmptyPhone(t *testing.T) {
	f := newFixture(t, model.LocaleRu)

	assert.False(t, f.store.SendOTP(context.Background(), "   "))
	assert.Equal(t, 0, f.api.count("POST "+PathSendOTP))
	assert.NotEmpty(t, f.store.Error())
}

func TestGetUserProfile(t *testing.T) {
	f := newFixture(t, model.LocaleRu)
	ctx := context.Background()

	assert.Nil(t, f.store.GetUserProfile(ctx))
	assert.Equal(t, 0, f.api.count("GET "+PathUser))

	require.True(t, f.store.VerifyOTP(ctx, "998901234567", "1234"))

	u := f.store.GetUserProfile(ctx)
	require.NotNil(t, u)
	assert.Equal(t, "Aziza", u.FirstName)
	assert.Equal(t, "Bearer opaque-token", f.api.auth("GET "+PathUser))
	assert.Contains(t, storedKeys(t, f.st)[storage.KeyUser], "Aziza")

	f.api.configure(func(a *fakeAPI) { a.userStatus = http.StatusInternalServerError })
	assert.Nil(t, f.store.GetUserProfile(ctx))
	assert.True(t, f.store.IsAuthenticated())
}

func TestGetUserProfile_UnauthorizedClearsSession(t *testing.T) {
	f := newFixture(t, model.LocaleRu)
	ctx := context.Background()

	require.True(t, f.store.VerifyOTP(ctx, "998901234567", "1234"))
	f.api.configure(func(a *fakeAPI) { a.userStatus = http.StatusUnauthorized })

	assert.Nil(t, f.store.GetUserProfile(ctx))
	assert.False(t, f.store.IsAuthenticated())
	assert.Empty(t, storedKeys(t, f.st))
}

func TestUpdateUserProfile(t *testing.T) {
	f := newFixture(t, model.LocaleRu)
	ctx := context.Background()

	assert.False(t, f.store.UpdateUserProfile(ctx, model.User{FirstName: "Nodir"}))
	assert.Equal(t, 0, f.api.count("PUT "+PathUser))

	require.True(t, f.store.VerifyOTP(ctx, "998901234567", "1234"))
	assert.True(t, f.store.UpdateUserProfile(ctx, model.User{FirstName: "Nodir"}))

	sess := f.store.Session()
	require.NotNil(t, sess.User)
	assert.Equal(t, "Nodir", sess.User.FirstName)
}

func TestLogout_ServerFailureStillClears(t *testing.T) {
	f := newFixture(t, model.LocaleRu)
	ctx := context.Background()

	require.True(t, f.store.VerifyOTP(ctx, "998901234567", "1234"))
	f.api.configure(func(a *fakeAPI) { a.logoutStatus = http.StatusInternalServerError })

	f.store.Logout(ctx)

	assert.False(t, f.store.IsAuthenticated())
	assert.Empty(t, storedKeys(t, f.st))
	assert.Equal(t, "/login", f.nav.last())
}

func TestLogout_WithoutSessionSkipsRequest(t *testing.T) {
	f := newFixture(t, model.LocaleRu)

	f.store.Logout(context.Background())

	assert.Equal(t, 0, f.api.count("POST "+PathLogout))
	assert.Equal(t, "/login", f.nav.last())
}

func TestVerifyOTP_TokenExpiry(t *testing.T) {
	signed := func(t *testing.T, exp time.Time) string {
		t.Helper()
		tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
			Subject:   "7",
			ExpiresAt: jwt.NewNumericDate(exp),
		})
		s, err := tok.SignedString([]byte("test"))
		require.NoError(t, err)
		return s
	}

	t.Run("expired jwt", func(t *testing.T) {
		f := newFixture(t, model.LocaleRu)
		f.api.configure(func(a *fakeAPI) { a.verifyBody = map[string]any{"access_token": signed(t, time.Now().Add(-time.Minute))} })

		require.True(t, f.store.VerifyOTP(context.Background(), "998901234567", "1234"))
		assert.False(t, f.store.IsAuthenticated())
	})

	t.Run("valid jwt", func(t *testing.T) {
		f := newFixture(t, model.LocaleRu)
		f.api.configure(func(a *fakeAPI) { a.verifyBody = map[string]any{"access_token": signed(t, time.Now().Add(time.Hour))} })

		require.True(t, f.store.VerifyOTP(context.Background(), "998901234567", "1234"))
		assert.True(t, f.store.IsAuthenticated())
		assert.NotEmpty(t, storedKeys(t, f.st)[storage.KeyTokenExpiresAt])
	})

	t.Run("expires_in wins", func(t *testing.T) {
		f := newFixture(t, model.LocaleRu)
		f.api.configure(func(a *fakeAPI) { a.verifyBody = map[string]any{"token": "opaque", "expires_in": 60} })

		now := time.Now()
		f.store.now = func() time.Time { return now }

		require.True(t, f.store.VerifyOTP(context.Background(), "998901234567", "1234"))
		assert.True(t, f.store.IsAuthenticated())

		f.store.now = func() time.Time { return now.Add(2 * time.Minute) }
		assert.False(t, f.store.IsAuthenticated())
	})
}

func TestInit_MalformedFieldsAreIgnored(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemoryStorage()
	require.NoError(t, st.Set(ctx, storage.KeyAuthToken, "tok"))
	require.NoError(t, st.Set(ctx, storage.KeyUser, "{broken"))
	require.NoError(t, st.Set(ctx, storage.KeyTokenExpiresAt, "yesterday"))

	s := NewStore(nil, st, nil, nil, DefaultRoutes(), zap.NewNop())
	s.Init(ctx)

	assert.True(t, s.IsAuthenticated())
	sess := s.Session()
	assert.Nil(t, sess.User)
	assert.Nil(t, sess.ExpiresAt)
}

func TestConcurrentLoginLogout_EndsConsistent(t *testing.T) {
	f := newFixture(t, model.LocaleRu)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			f.store.VerifyOTP(ctx, "998901234567", "1234")
		}()
		go func() {
			defer wg.Done()
			f.store.Logout(ctx)
		}()
	}
	wg.Wait()

	keys := storedKeys(t, f.st)
	if f.store.IsAuthenticated() {
		assert.Equal(t, "opaque-token", keys[storage.KeyAuthToken])
	} else {
		assert.Empty(t, keys)
	}
}

// gatedAPI выдаёт новый токен на каждый вход и задерживает GET профиля до release.
type gatedAPI struct {
	mu      sync.Mutex
	logins  int
	entered chan struct{}
	release chan struct{}
	status  int
	user    model.User
}

func newGatedAPI(status int, user model.User) *gatedAPI {
	return &gatedAPI{
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
		status:  status,
		user:    user,
	}
}

func (g *gatedAPI) Get(ctx context.Context, _ string, out any, _ ...apiclient.RequestOption) error {
	g.entered <- struct{}{}
	<-g.release
	if g.status != http.StatusOK {
		return &apiclient.StatusError{Code: g.status}
	}
	*(out.(*model.User)) = g.user
	return nil
}

func (g *gatedAPI) Post(_ context.Context, path string, _, out any, _ ...apiclient.RequestOption) error {
	if path != PathVerifyOTP {
		return nil
	}
	g.mu.Lock()
	g.logins++
	n := g.logins
	g.mu.Unlock()

	resp := out.(*verifyOTPResponse)
	resp.AccessToken = fmt.Sprintf("token-%d", n)
	resp.User = &model.User{ID: int64(n)}
	return nil
}

func (g *gatedAPI) Put(context.Context, string, any, any, ...apiclient.RequestOption) error {
	return nil
}

func TestGetUserProfile_ResponseFromPreviousSessionIgnored(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{name: "unauthorized", status: http.StatusUnauthorized},
		{name: "profile", status: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newGatedAPI(tt.status, model.User{ID: 1, FirstName: "Old"})
			st := storage.NewMemoryStorage()
			store := NewStore(api, st, fixedLocale(model.LocaleRu), nil, DefaultRoutes(), zap.NewNop())
			ctx := context.Background()

			require.True(t, store.VerifyOTP(ctx, "998901234567", "1111"))

			done := make(chan *model.User)
			go func() { done <- store.GetUserProfile(ctx) }()
			<-api.entered

			require.True(t, store.VerifyOTP(ctx, "998901234567", "2222"))
			close(api.release)

			assert.Nil(t, <-done)

			sess := store.Session()
			assert.True(t, store.IsAuthenticated())
			assert.Equal(t, "token-2", sess.Token)
			require.NotNil(t, sess.User)
			assert.Equal(t, int64(2), sess.User.ID)

			keys := storedKeys(t, st)
			assert.Equal(t, "token-2", keys[storage.KeyAuthToken])
			assert.NotContains(t, keys[storage.KeyUser], "Old")
		})
	}
}
