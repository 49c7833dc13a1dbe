package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/securecookie"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/parsascontentcorner/guilddesk/internal/auth"
	"github.com/parsascontentcorner/guilddesk/internal/config"
	"github.com/parsascontentcorner/guilddesk/internal/models"
	"github.com/parsascontentcorner/guilddesk/internal/notify"
	"github.com/parsascontentcorner/guilddesk/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeQAStore struct {
	mu   sync.Mutex
	data map[string]map[string]string
	err  error
}

func newFakeQAStore() *fakeQAStore {
	return &fakeQAStore{data: map[string]map[string]string{}}
}

func (f *fakeQAStore) Get(_ context.Context, serverID string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := map[string]string{}
	for q, a := range f.data[serverID] {
		out[q] = a
	}
	return out, nil
}

func (f *fakeQAStore) Add(ctx context.Context, serverID, question, answer string) error {
	return f.AddPairs(ctx, serverID, []models.QAPair{{Question: question, Answer: answer}})
}

func (f *fakeQAStore) AddPairs(_ context.Context, serverID string, pairs []models.QAPair) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.data[serverID] == nil {
		f.data[serverID] = map[string]string{}
	}
	for _, p := range pairs {
		f.data[serverID][p.Question] = p.Answer
	}
	return nil
}

func (f *fakeQAStore) Remove(ctx context.Context, serverID, question string) error {
	return f.RemoveBulk(ctx, serverID, []string{question})
}

func (f *fakeQAStore) RemoveBulk(_ context.Context, serverID string, questions []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	for _, q := range questions {
		delete(f.data[serverID], q)
	}
	return nil
}

type fakeSetupStore struct {
	mu      sync.Mutex
	records map[string]*models.SetupRecord
	err     error
}

func newFakeSetupStore() *fakeSetupStore {
	return &fakeSetupStore{records: map[string]*models.SetupRecord{}}
}

func (f *fakeSetupStore) Get(_ context.Context, serverID string) (*models.SetupRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records[serverID], f.err
}

func (f *fakeSetupStore) Save(_ context.Context, serverID string, setupType models.SetupType, channelID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.records[serverID] = &models.SetupRecord{ServerID: serverID, SetupType: setupType, ChannelOrCategoryID: channelID}
	return nil
}

type fakeSessions struct {
	mu          sync.Mutex
	sessions    map[string]*models.DiscordSession
	pending     string
	completeErr error
	refreshErr  error
	botPresent  bool
	botErr      error
	completed   []string
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{sessions: map[string]*models.DiscordSession{}}
}

func (f *fakeSessions) add(session *models.DiscordSession) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[session.SessionID] = session
}

func (f *fakeSessions) has(sessionID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.sessions[sessionID]
	return ok
}

func (f *fakeSessions) Begin(context.Context) (*auth.LoginAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = testutil.GenerateSessionID()
	return &auth.LoginAttempt{SessionID: f.pending, AuthURL: "https://discord.com/oauth2/authorize?state=abc"}, nil
}

func (f *fakeSessions) Complete(_ context.Context, code, state, cookieSessionID string) (*models.DiscordSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, cookieSessionID)
	if f.completeErr != nil {
		return nil, f.completeErr
	}
	session := testutil.GenerateAuthenticatedSession(testutil.DefaultGuilds()...)
	session.SessionID = cookieSessionID
	f.sessions[session.SessionID] = session
	return session, nil
}

func (f *fakeSessions) Load(_ context.Context, sessionID string) (*models.DiscordSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[sessionID]
	if !ok || !session.IsAuthenticated() {
		return nil, auth.ErrNoSession
	}
	return session, nil
}

func (f *fakeSessions) Refresh(ctx context.Context, sessionID string) (*models.DiscordSession, error) {
	session, err := f.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if f.refreshErr != nil {
		_ = f.Logout(ctx, sessionID)
		return nil, f.refreshErr
	}
	return session, nil
}

func (f *fakeSessions) Logout(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, sessionID)
	return nil
}

func (f *fakeSessions) BotInGuild(context.Context, string) (bool, error) {
	return f.botPresent, f.botErr
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordingNotifier) Publish(_ context.Context, event notify.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingNotifier) all() []notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Event(nil), r.events...)
}

type fakeCheck struct{ err error }

func (f fakeCheck) Health(context.Context) error { return f.err }

var errStoreDown = errors.New("store down")

type testEnv struct {
	cfg      *config.Config
	qa       *fakeQAStore
	setup    *fakeSetupStore
	sessions *fakeSessions
	notifier *recordingNotifier
	router   *gin.Engine
}

func newTestEnv(t *testing.T, mutate ...func(*config.Config, *Deps)) *testEnv {
	t.Helper()

	env := &testEnv{
		cfg:      testutil.GenerateTestConfig(),
		qa:       newFakeQAStore(),
		setup:    newFakeSetupStore(),
		sessions: newFakeSessions(),
		notifier: &recordingNotifier{},
	}

	deps := Deps{
		QA:       env.qa,
		Setup:    env.setup,
		Sessions: env.sessions,
		Notifier: env.notifier,
		Checks:   map[string]HealthChecker{"postgres": fakeCheck{}, "mongodb": fakeCheck{}},
	}
	for _, m := range mutate {
		m(env.cfg, &deps)
	}

	env.router = NewRouter(env.cfg, deps, zap.NewNop())
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) cookieFor(t *testing.T, sessionID string) *http.Cookie {
	t.Helper()

	value, err := securecookie.New(e.cfg.Security.CookieHashKey, nil).Encode(sessionCookieName, sessionID)
	require.NoError(t, err)
	return &http.Cookie{Name: sessionCookieName, Value: value}
}

// sessionCookieFrom returns the session cookie set on the response, if any
func sessionCookieFrom(w *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == sessionCookieName {
			return c
		}
	}
	return nil
}
