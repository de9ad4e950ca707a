package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelworks/beacon/internal/auth"
	"github.com/kestrelworks/beacon/internal/models"
	"github.com/kestrelworks/beacon/internal/services"
	"github.com/kestrelworks/beacon/internal/session"
)

func authedRequest(t *testing.T, sessions *session.Manager, userID int64, method, target string, body any) (*http.Request, string) {
	t.Helper()
	token, err := sessions.Create(userID, false)
	require.NoError(t, err)

	var req *http.Request
	if body != nil {
		req = jsonRequest(t, method, target, body)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	req.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: token})
	return req, token
}

func serveAuthed(sessions *session.Manager, handlerFunc http.HandlerFunc, recorder *httptest.ResponseRecorder, req *http.Request) {
	auth.RequireAuth(sessions)(handlerFunc).ServeHTTP(recorder, req)
}

func TestTwoFactorHandler_Setup(t *testing.T) {
	t.Run("returns enrollment payload", func(t *testing.T) {
		sessions := session.NewManager(time.Hour)
		service := &MockTwoFactorService{
			GenerateSecretFunc: func(ctx context.Context, userID int64) (*services.TwoFactorSetup, error) {
				return &services.TwoFactorSetup{Secret: "SECRET32", QRCodeURL: "data:image/png;base64,abc"}, nil
			},
		}
		handler := NewTwoFactorHandler(service, sessions, &MockUserGetter{})

		req, _ := authedRequest(t, sessions, 1, "POST", "/api/auth/2fa/setup", nil)
		recorder := httptest.NewRecorder()
		serveAuthed(sessions, handler.Setup, recorder, req)

		require.Equal(t, http.StatusOK, recorder.Code)

		var resp TwoFactorSetupResponse
		require.NoError(t, json.NewDecoder(recorder.Body).Decode(&resp))
		assert.Equal(t, "SECRET32", resp.Secret)
		assert.Contains(t, resp.QRCodeURL, "data:image/png;base64,")
	})

	t.Run("conflict when already enabled", func(t *testing.T) {
		sessions := session.NewManager(time.Hour)
		service := &MockTwoFactorService{
			GenerateSecretFunc: func(ctx context.Context, userID int64) (*services.TwoFactorSetup, error) {
				return nil, models.ErrConflict
			},
		}
		handler := NewTwoFactorHandler(service, sessions, &MockUserGetter{})

		req, _ := authedRequest(t, sessions, 1, "POST", "/api/auth/2fa/setup", nil)
		recorder := httptest.NewRecorder()
		serveAuthed(sessions, handler.Setup, recorder, req)

		assert.Equal(t, http.StatusConflict, recorder.Code)
	})
}

func TestTwoFactorHandler_Enable(t *testing.T) {
	t.Run("returns backup codes once", func(t *testing.T) {
		sessions := session.NewManager(time.Hour)
		service := &MockTwoFactorService{
			VerifyAndEnableFunc: func(ctx context.Context, userID int64, code string) ([]string, error) {
				return []string{"AAAA2222", "BBBB3333"}, nil
			},
		}
		handler := NewTwoFactorHandler(service, sessions, &MockUserGetter{})

		req, _ := authedRequest(t, sessions, 1, "POST", "/api/auth/2fa/enable", map[string]string{"code": "123456"})
		recorder := httptest.NewRecorder()
		serveAuthed(sessions, handler.Enable, recorder, req)

		require.Equal(t, http.StatusOK, recorder.Code)

		var resp TwoFactorEnableResponse
		require.NoError(t, json.NewDecoder(recorder.Body).Decode(&resp))
		assert.True(t, resp.Success)
		assert.Equal(t, []string{"AAAA2222", "BBBB3333"}, resp.BackupCodes)
	})

	t.Run("invalid code", func(t *testing.T) {
		sessions := session.NewManager(time.Hour)
		handler := NewTwoFactorHandler(&MockTwoFactorService{}, sessions, &MockUserGetter{})

		req, _ := authedRequest(t, sessions, 1, "POST", "/api/auth/2fa/enable", map[string]string{"code": "000000"})
		recorder := httptest.NewRecorder()
		serveAuthed(sessions, handler.Enable, recorder, req)

		assert.Equal(t, http.StatusBadRequest, recorder.Code)
	})
}

func TestTwoFactorHandler_Disable(t *testing.T) {
	t.Run("requires a valid current code", func(t *testing.T) {
		sessions := session.NewManager(time.Hour)
		disabled := false
		service := &MockTwoFactorService{
			VerifyCodeFunc: func(ctx context.Context, userID int64, code string) (bool, error) {
				return false, nil
			},
			DisableFunc: func(ctx context.Context, userID int64) error {
				disabled = true
				return nil
			},
		}
		handler := NewTwoFactorHandler(service, sessions, &MockUserGetter{})

		req, _ := authedRequest(t, sessions, 1, "POST", "/api/auth/2fa/disable", map[string]string{"code": "000000"})
		recorder := httptest.NewRecorder()
		serveAuthed(sessions, handler.Disable, recorder, req)

		assert.Equal(t, http.StatusBadRequest, recorder.Code)
		assert.False(t, disabled)
	})

	t.Run("disables with valid code", func(t *testing.T) {
		sessions := session.NewManager(time.Hour)
		disabled := false
		service := &MockTwoFactorService{
			VerifyCodeFunc: func(ctx context.Context, userID int64, code string) (bool, error) {
				return true, nil
			},
			DisableFunc: func(ctx context.Context, userID int64) error {
				disabled = true
				return nil
			},
		}
		handler := NewTwoFactorHandler(service, sessions, &MockUserGetter{})

		req, _ := authedRequest(t, sessions, 1, "POST", "/api/auth/2fa/disable", map[string]string{"code": "123456"})
		recorder := httptest.NewRecorder()
		serveAuthed(sessions, handler.Disable, recorder, req)

		assert.Equal(t, http.StatusOK, recorder.Code)
		assert.True(t, disabled)
	})
}

func TestTwoFactorHandler_Verify(t *testing.T) {
	userRepo := &MockUserGetter{
		GetByIDFunc: func(ctx context.Context, id int64) (*models.User, error) {
			return &models.User{ID: id, Username: "alice", TwoFactorEnabled: true}, nil
		},
	}

	t.Run("promotes pending session on valid code", func(t *testing.T) {
		sessions := session.NewManager(time.Hour)
		token, err := sessions.Create(1, true)
		require.NoError(t, err)

		service := &MockTwoFactorService{
			VerifyCodeFunc: func(ctx context.Context, userID int64, code string) (bool, error) {
				return true, nil
			},
		}
		handler := NewTwoFactorHandler(service, sessions, userRepo)

		req := jsonRequest(t, "POST", "/api/auth/2fa/verify", map[string]string{"code": "123456"})
		req.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: token})

		recorder := httptest.NewRecorder()
		handler.Verify(recorder, req)

		require.Equal(t, http.StatusOK, recorder.Code)

		sess, ok := sessions.Get(token)
		require.True(t, ok)
		assert.False(t, sess.PendingTwoFactor, "session should be fully authenticated")

		var resp LoginResponse
		require.NoError(t, json.NewDecoder(recorder.Body).Decode(&resp))
		require.NotNil(t, resp.User)
		assert.Equal(t, "alice", resp.User.Username)
	})

	t.Run("wrong code leaves session pending", func(t *testing.T) {
		sessions := session.NewManager(time.Hour)
		token, err := sessions.Create(1, true)
		require.NoError(t, err)

		handler := NewTwoFactorHandler(&MockTwoFactorService{}, sessions, userRepo)

		req := jsonRequest(t, "POST", "/api/auth/2fa/verify", map[string]string{"code": "000000"})
		req.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: token})

		recorder := httptest.NewRecorder()
		handler.Verify(recorder, req)

		assert.Equal(t, http.StatusBadRequest, recorder.Code)

		sess, ok := sessions.Get(token)
		require.True(t, ok)
		assert.True(t, sess.PendingTwoFactor)
	})

	t.Run("session not pending", func(t *testing.T) {
		sessions := session.NewManager(time.Hour)
		token, err := sessions.Create(1, false)
		require.NoError(t, err)

		handler := NewTwoFactorHandler(&MockTwoFactorService{}, sessions, userRepo)

		req := jsonRequest(t, "POST", "/api/auth/2fa/verify", map[string]string{"code": "123456"})
		req.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: token})

		recorder := httptest.NewRecorder()
		handler.Verify(recorder, req)

		require.Equal(t, http.StatusBadRequest, recorder.Code)
		assert.Contains(t, recorder.Body.String(), "No pending 2FA verification")
	})

	t.Run("no session cookie", func(t *testing.T) {
		sessions := session.NewManager(time.Hour)
		handler := NewTwoFactorHandler(&MockTwoFactorService{}, sessions, userRepo)

		recorder := httptest.NewRecorder()
		handler.Verify(recorder, jsonRequest(t, "POST", "/api/auth/2fa/verify", map[string]string{"code": "123456"}))

		assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	})

	t.Run("pending session is rejected by the auth guard", func(t *testing.T) {
		sessions := session.NewManager(time.Hour)
		token, err := sessions.Create(1, true)
		require.NoError(t, err)

		req := httptest.NewRequest("GET", "/api/auth/me", nil)
		req.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: token})

		recorder := httptest.NewRecorder()
		guarded := auth.RequireAuth(sessions)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		guarded.ServeHTTP(recorder, req)

		assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	})
}
