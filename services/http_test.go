package services

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/lac-hong-legacy/lms_api/dto"
	"github.com/lac-hong-legacy/lms_api/model"
	"github.com/lac-hong-legacy/lms_api/services/handlers"
	"github.com/lac-hong-legacy/lms_api/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	sent chan string
}

func (n *recordingNotifier) SendCertificateIssued(email string, rec *model.CertificateRecord) error {
	n.sent <- email + "|" + rec.CertificateID
	return nil
}

type apiResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testAPI struct {
	*testStack
	app      *fiber.App
	jwt      *JWTService
	sessions *SessionService
	notifier *recordingNotifier
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	st := newTestStack(t)

	jwtSvc := NewJWTService("test-secret", time.Hour)
	sessions := NewSessionService(session.MemoryCacheFactory, time.Hour, st.progress.FlushScope)
	t.Cleanup(sessions.Shutdown)
	verifier := NewVerifierService(st.store, time.Second)
	notifier := &recordingNotifier{sent: make(chan string, 4)}

	app := NewApp(Routes{
		Auth:         NewAuthMiddleware(jwtSvc, sessions).RequiredAuth(),
		Progress:     handlers.NewProgressHandler(st.progress),
		Course:       handlers.NewCourseHandler(st.courses, st.completion, notifier),
		Certificates: handlers.NewCertificateHandler(st.courses, st.certificates, verifier, notifier),
		Session:      handlers.NewSessionHandler(sessions),
	})

	return &testAPI{testStack: st, app: app, jwt: jwtSvc, sessions: sessions, notifier: notifier}
}

func (a *testAPI) token(t *testing.T, userID, name, email string) string {
	t.Helper()
	tok, err := a.jwt.ToJWT(userID, name, email)
	require.NoError(t, err)
	return tok
}

func (a *testAPI) do(t *testing.T, method, path, token, body string) (int, apiResponse) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("X-Device-ID", "laptop")
	}

	resp, err := a.app.Test(req, 5000)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var out apiResponse
	if len(raw) > 0 {
		require.NoError(t, sonic.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func TestPing(t *testing.T) {
	api := newTestAPI(t)

	status, res := api.do(t, http.MethodGet, "/api/v1/ping", "", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, `"pong"`, string(res.Data))
}

func TestUnknownRoute(t *testing.T) {
	api := newTestAPI(t)

	status, _ := api.do(t, http.MethodGet, "/api/v1/nowhere", "", "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAuthRequired(t *testing.T) {
	api := newTestAPI(t)

	status, _ := api.do(t, http.MethodGet, "/api/v1/courses/go-101/progress", "", "")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = api.do(t, http.MethodGet, "/api/v1/courses/go-101/progress", "garbage", "")
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestGetCourse(t *testing.T) {
	api := newTestAPI(t)
	tok := api.token(t, "alice", "", "")

	status, res := api.do(t, http.MethodGet, "/api/v1/courses/go-101", tok, "")
	require.Equal(t, http.StatusOK, status)

	var course dto.CourseResponse
	require.NoError(t, sonic.Unmarshal(res.Data, &course))
	assert.Equal(t, "Go Basics", course.Title)
	require.Len(t, course.Items, 2)
	assert.Equal(t, "intro", course.Items[0].ID)
	assert.Equal(t, "2 min", course.Items[0].Duration)

	status, _ = api.do(t, http.MethodGet, "/api/v1/courses/missing", tok, "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestSaveProgressValidation(t *testing.T) {
	api := newTestAPI(t)
	tok := api.token(t, "alice", "", "")

	status, _ := api.do(t, http.MethodPut, "/api/v1/courses/go-101/items/intro/progress", tok, `{"currentTime":-1,"duration":10}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = api.do(t, http.MethodPut, "/api/v1/courses/go-101/items/intro/progress", tok, `{"currentTime":1,"duration":10,"event":"seek"}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = api.do(t, http.MethodPut, "/api/v1/courses/go-101/items/intro/progress", tok, `{not json`)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestCourseCompletionFlow(t *testing.T) {
	api := newTestAPI(t)
	tok := api.token(t, "alice", "Alice Nguyen", "alice@example.com")

	status, res := api.do(t, http.MethodPut, "/api/v1/courses/go-101/items/intro/progress", tok, `{"currentTime":118,"duration":120,"event":"ended"}`)
	require.Equal(t, http.StatusOK, status)
	var progress dto.ProgressResponse
	require.NoError(t, sonic.Unmarshal(res.Data, &progress))
	assert.True(t, progress.Completed)

	status, _ = api.do(t, http.MethodPost, "/api/v1/courses/go-101/certificate", tok, "")
	assert.Equal(t, http.StatusPreconditionFailed, status, "notes is still open")

	status, _ = api.do(t, http.MethodPost, "/api/v1/courses/go-101/items/notes/complete", tok, `{"completed":true}`)
	require.Equal(t, http.StatusOK, status)

	status, res = api.do(t, http.MethodGet, "/api/v1/courses/go-101/progress", tok, "")
	require.Equal(t, http.StatusOK, status)
	var course dto.CourseProgressResponse
	require.NoError(t, sonic.Unmarshal(res.Data, &course))
	assert.True(t, course.Complete)
	assert.True(t, course.JustCompleted)
	assert.ElementsMatch(t, []string{"intro", "notes"}, course.CompletedIDs)
	assert.Equal(t, float64(100), course.Summary.AverageProgress)
	require.NotNil(t, course.Certificate)
	assert.Equal(t, "Alice Nguyen", course.Certificate.DisplayName)
	certID := course.Certificate.CertificateID

	select {
	case sent := <-api.notifier.sent:
		assert.Equal(t, "alice@example.com|"+certID, sent)
	case <-time.After(time.Second):
		t.Fatal("certificate email was not sent")
	}

	status, _ = api.do(t, http.MethodPost, "/api/v1/courses/go-101/certificate", tok, "")
	assert.Equal(t, http.StatusConflict, status)

	status, res = api.do(t, http.MethodGet, "/api/v1/certificates", tok, "")
	require.Equal(t, http.StatusOK, status)
	var list dto.CertificateListResponse
	require.NoError(t, sonic.Unmarshal(res.Data, &list))
	assert.Equal(t, 1, list.Total)

	status, _ = api.do(t, http.MethodGet, "/api/v1/certificates/"+certID, "", "")
	assert.Equal(t, http.StatusOK, status)

	status, res = api.do(t, http.MethodPost, "/api/v1/verify/"+certID, "", "")
	require.Equal(t, http.StatusOK, status)
	var verified dto.VerifyCertificateResponse
	require.NoError(t, sonic.Unmarshal(res.Data, &verified))
	assert.True(t, verified.Valid)
	assert.True(t, verified.Certificate.Verified)

	status, _ = api.do(t, http.MethodPost, "/api/v1/verify/CERT-0-NOTREAL00", "", "")
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = api.do(t, http.MethodGet, "/api/v1/certificates/CERT-0-NOTREAL00", "", "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestIssueCertificateEndpoint(t *testing.T) {
	api := newTestAPI(t)
	tok := api.token(t, "alice", "", "alice@example.com")

	for _, item := range []string{"intro", "notes"} {
		status, _ := api.do(t, http.MethodPost, "/api/v1/courses/go-101/items/"+item+"/complete", tok, `{"completed":true}`)
		require.Equal(t, http.StatusOK, status)
	}

	status, _ := api.do(t, http.MethodPost, "/api/v1/courses/go-101/certificate", tok, `{"displayName":"Alice\u0007"}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, res := api.do(t, http.MethodPost, "/api/v1/courses/go-101/certificate", tok, `{"displayName":"  ","email":"someone@elsewhere.test"}`)
	require.Equal(t, http.StatusCreated, status)
	var cert dto.CertificateResponse
	require.NoError(t, sonic.Unmarshal(res.Data, &cert))
	assert.Equal(t, "alice", cert.DisplayName, "falls back to the email local part")

	select {
	case sent := <-api.notifier.sent:
		assert.Equal(t, "alice@example.com|"+cert.CertificateID, sent, "mail goes to the token address")
	case <-time.After(time.Second):
		t.Fatal("certificate email was not sent")
	}
}

func TestSessionEndpoints(t *testing.T) {
	api := newTestAPI(t)
	alice := api.token(t, "alice", "", "")
	bob := api.token(t, "bob", "", "")

	status, res := api.do(t, http.MethodGet, "/api/v1/session", alice, "")
	require.Equal(t, http.StatusOK, status)
	var current dto.SessionResponse
	require.NoError(t, sonic.Unmarshal(res.Data, &current))
	assert.Equal(t, dto.SessionResponse{UserID: "alice", DeviceID: "laptop"}, current)

	status, _ = api.do(t, http.MethodPut, "/api/v1/courses/go-101/items/intro/progress", alice, `{"currentTime":30,"duration":120}`)
	require.Equal(t, http.StatusOK, status)

	// Bob signs in on the same device; alice's pending save is flushed first.
	status, res = api.do(t, http.MethodGet, "/api/v1/courses/go-101/items/intro/progress", bob, "")
	require.Equal(t, http.StatusOK, status)
	var progress dto.ProgressResponse
	require.NoError(t, sonic.Unmarshal(res.Data, &progress))
	assert.Zero(t, progress.CurrentTime)

	stored, err := api.progress.Load(context.Background(), newScope("alice"), "go-101", "intro")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, float64(30), stored.CurrentTime)

	status, _ = api.do(t, http.MethodPost, "/api/v1/session/logout", bob, "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, api.sessions.Devices())
}
