package apiclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/freshbasket/notification-sync/common"
	"github.com/freshbasket/notification-sync/metrics"
	"github.com/freshbasket/notification-sync/model"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testRequest holds the details of a request received by the test server.
type testRequest struct {
	Method  string
	Path    string
	Query   string
	Body    []byte
	Headers http.Header
}

// newTestServer starts a server that records the last request and replies with status and body.
func newTestServer(t *testing.T, status int, body string) (*httptest.Server, *testRequest) {
	received := &testRequest{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Method = r.Method
		received.Path = r.URL.Path
		received.Query = r.URL.RawQuery
		received.Body, _ = io.ReadAll(r.Body)
		received.Headers = r.Header

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(ts.Close)
	return ts, received
}

func newTestClient(baseURL string) *Client {
	client := New(common.APISettings{BaseURL: baseURL + "/"}, "client-1", nil)
	client.SetToken("test-token")
	return client
}

func TestNewDefaults(t *testing.T) {
	assert := assert.New(t)

	client := New(common.APISettings{BaseURL: "http://localhost:5055/api/"}, "", nil)
	assert.Equal("http://localhost:5055/api", client.baseURL)
	assert.Equal(30*time.Second, client.httpClient.Timeout)

	client = New(common.APISettings{BaseURL: "http://localhost:5055/api", Timeout: 5 * time.Second}, "", nil)
	assert.Equal(5*time.Second, client.httpClient.Timeout)
}

func TestGetNotifications(t *testing.T) {
	assert := assert.New(t)

	ts, received := newTestServer(t, http.StatusOK, `{
		"notifications": [{"_id": "A", "status": "unread"}, {"_id": "B", "status": "read"}],
		"totalUnreadDoc": 1,
		"totalDoc": 12
	}`)
	client := newTestClient(ts.URL)

	page, err := client.GetNotifications(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(page.Notifications, 2)
	assert.Equal("A", page.Notifications[0].ID)
	assert.Equal(int64(1), page.TotalUnreadDoc)
	assert.Equal(int64(12), page.TotalDoc)

	assert.Equal(http.MethodGet, received.Method)
	assert.Equal("/notification", received.Path)
	assert.Equal("page=2", received.Query)
	assert.Equal("Bearer test-token", received.Headers.Get("Authorization"))
	assert.Equal("client-1", received.Headers.Get(ClientIDHeader))
}

func TestGetNotificationsMissingList(t *testing.T) {
	ts, _ := newTestServer(t, http.StatusOK, `{"totalUnreadDoc": 0, "totalDoc": 0}`)
	client := newTestClient(ts.URL)

	page, err := client.GetNotifications(context.Background(), 1)
	require.NoError(t, err)
	assert.NotNil(t, page.Notifications)
	assert.Empty(t, page.Notifications)
}

func TestGetNotificationsError(t *testing.T) {
	assert := assert.New(t)

	ts, _ := newTestServer(t, http.StatusUnauthorized, `{"message": "Invalid token"}`)
	client := newTestClient(ts.URL)

	page, err := client.GetNotifications(context.Background(), 1)
	assert.Nil(page)
	require.Error(t, err)

	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal("Invalid token", apiErr.Message)
	assert.Contains(err.Error(), "Invalid token")
}

func TestErrorWithoutMessage(t *testing.T) {
	err := &Error{StatusCode: http.StatusBadGateway}
	assert.Equal(t, "admin API returned status 502", err.Error())
}

func TestUpdateStatus(t *testing.T) {
	assert := assert.New(t)

	ts, received := newTestServer(t, http.StatusOK, `{"message": "updated"}`)
	client := newTestClient(ts.URL)

	err := client.UpdateStatus(context.Background(), "A", model.StatusRead)
	require.NoError(t, err)
	assert.Equal(http.MethodPut, received.Method)
	assert.Equal("/notification/A", received.Path)
	assert.JSONEq(`{"status": "read"}`, string(received.Body))
	assert.Equal("application/json", received.Headers.Get("Content-Type"))
}

func TestDeleteNotification(t *testing.T) {
	assert := assert.New(t)

	ts, received := newTestServer(t, http.StatusOK, `{}`)
	client := newTestClient(ts.URL)

	require.NoError(t, client.DeleteNotification(context.Background(), "A"))
	assert.Equal(http.MethodDelete, received.Method)
	assert.Equal("/notification/A", received.Path)
	assert.Empty(received.Body)
}

func TestUpdateManyStatus(t *testing.T) {
	assert := assert.New(t)

	ts, received := newTestServer(t, http.StatusOK, `{}`)
	client := newTestClient(ts.URL)

	require.NoError(t, client.UpdateManyStatus(context.Background(), []string{"A", "B"}, model.StatusRead))
	assert.Equal(http.MethodPatch, received.Method)
	assert.Equal("/notification/update/many", received.Path)
	assert.JSONEq(`{"ids": ["A", "B"], "status": "read"}`, string(received.Body))
}

func TestDeleteMany(t *testing.T) {
	assert := assert.New(t)

	ts, received := newTestServer(t, http.StatusOK, `{}`)
	client := newTestClient(ts.URL)

	require.NoError(t, client.DeleteMany(context.Background(), []string{"A", "B"}))
	assert.Equal(http.MethodPatch, received.Method)
	assert.Equal("/notification/delete/many", received.Path)
	assert.JSONEq(`{"ids": ["A", "B"]}`, string(received.Body))
}

func TestWriteFailure(t *testing.T) {
	ts, _ := newTestServer(t, http.StatusInternalServerError, `not json`)
	client := newTestClient(ts.URL)

	err := client.DeleteMany(context.Background(), []string{"A"})
	require.Error(t, err)

	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Empty(t, apiErr.Message)
}

func TestRequestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	ok, _ := newTestServer(t, http.StatusOK, `{}`)
	failing, _ := newTestServer(t, http.StatusBadRequest, `{}`)

	assert.NoError(t, New(common.APISettings{BaseURL: ok.URL}, "", m).DeleteNotification(context.Background(), "A"))
	assert.Error(t, New(common.APISettings{BaseURL: failing.URL}, "", m).DeleteNotification(context.Background(), "A"))

	assert.Equal(t, float64(1), testutil.ToFloat64(m.APIRequests.WithLabelValues("delete", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.APIRequests.WithLabelValues("delete", "error")))
}

func TestLogin(t *testing.T) {
	assert := assert.New(t)

	ts, received := newTestServer(t, http.StatusOK, `{
		"token": "new-token",
		"_id": "1",
		"name": "Test Admin",
		"email": "admin@test.com",
		"role": "Super Admin"
	}`)
	client := New(common.APISettings{BaseURL: ts.URL}, "", nil)

	result, err := client.Login(context.Background(), "admin@test.com", "password123")
	require.NoError(t, err)
	assert.Equal("Test Admin", result.Name)
	assert.Equal("Super Admin", result.Role)
	assert.Equal("new-token", client.Token())

	assert.Equal(http.MethodPost, received.Method)
	assert.Equal("/admin/login", received.Path)
	var body map[string]string
	require.NoError(t, json.Unmarshal(received.Body, &body))
	assert.Equal("admin@test.com", body["email"])
	assert.Equal("password123", body["password"])
	assert.Empty(received.Headers.Get("Authorization"))
}

func TestLoginInvalidCredentials(t *testing.T) {
	ts, _ := newTestServer(t, http.StatusUnauthorized, `{"message": "Invalid credentials"}`)
	client := New(common.APISettings{BaseURL: ts.URL}, "", nil)

	_, err := client.Login(context.Background(), "admin@test.com", "wrong")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid credentials")
	assert.Empty(t, client.Token())
}

func TestLoginInvalidEmail(t *testing.T) {
	ts, received := newTestServer(t, http.StatusOK, `{"token": "new-token"}`)
	client := New(common.APISettings{BaseURL: ts.URL}, "", nil)

	_, err := client.Login(context.Background(), "not-an-email", "password123")
	assert.Error(t, err)
	assert.Empty(t, received.Method, "a request was sent for an invalid email address")
}

func TestLoginWithoutToken(t *testing.T) {
	ts, _ := newTestServer(t, http.StatusOK, `{"_id": "1"}`)
	client := New(common.APISettings{BaseURL: ts.URL}, "", nil)

	_, err := client.Login(context.Background(), "admin@test.com", "password123")
	assert.Error(t, err)
}

func signToken(t *testing.T, claims jwt.MapClaims) string {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)
	return token
}

func TestTokenExpired(t *testing.T) {
	assert := assert.New(t)
	now := time.Unix(1594336370, 0)

	expired := signToken(t, jwt.MapClaims{"exp": now.Add(-time.Minute).Unix()})
	valid := signToken(t, jwt.MapClaims{"exp": now.Add(time.Hour).Unix()})
	forever := signToken(t, jwt.MapClaims{"email": "admin@test.com"})

	result, err := TokenExpired(expired, now)
	assert.NoError(err)
	assert.True(result)

	result, err = TokenExpired(valid, now)
	assert.NoError(err)
	assert.False(result)

	result, err = TokenExpired(forever, now)
	assert.NoError(err)
	assert.False(result)

	_, err = TokenExpired("not-a-token", now)
	assert.Error(err)
}

func TestTokenEmail(t *testing.T) {
	assert.Equal(t, "admin@test.com", TokenEmail(signToken(t, jwt.MapClaims{"email": "admin@test.com"})))
	assert.Equal(t, "", TokenEmail(signToken(t, jwt.MapClaims{"name": "Test Admin"})))
	assert.Equal(t, "", TokenEmail("not-a-token"))
}
