package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/authrotate/internal/logger"
	"github.com/nkiryanov/authrotate/internal/repository/memory"
	"github.com/nkiryanov/authrotate/internal/service/auth"
	"github.com/nkiryanov/authrotate/internal/service/auth/tokencodec"
	"github.com/nkiryanov/authrotate/internal/service/rotation"
	"github.com/nkiryanov/authrotate/internal/service/user"
)

type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) { return "hashed:" + password, nil }

func (plainHasher) Compare(hashedPassword string, password string) error {
	if hashedPassword != "hashed:"+password {
		return errors.New("password mismatch")
	}
	return nil
}

// Run http server with the whole router on memory storage
func startServer(t *testing.T) (string, *auth.AuthService) {
	t.Helper()

	storage := memory.NewStorage()
	t.Cleanup(storage.Close)

	codec, err := tokencodec.New(tokencodec.Config{AccessSecret: "access", RefreshSecret: "refresh", RefreshTTL: 24 * time.Hour})
	require.NoError(t, err)
	controller, err := rotation.New(rotation.Config{}, codec, storage.Refresh(), nil)
	require.NoError(t, err)
	s, err := auth.NewService(auth.Config{}, user.NewService(plainHasher{}, storage.User()), controller, nil)
	require.NoError(t, err, "auth service starting error")

	srv := httptest.NewServer(NewRouter(s, logger.NewNoOpLogger()))
	t.Cleanup(srv.Close)

	return srv.URL, s
}

type response struct {
	code    int
	body    string
	header  http.Header
	cookies []*http.Cookie
}

func send(t *testing.T, method string, url string, body string, cookies ...*http.Cookie) response {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(t.Context(), method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return response{code: resp.StatusCode, body: string(data), header: resp.Header, cookies: resp.Cookies()}
}

// Check that response carries fresh token pair and return refresh cookie
func requireTokens(t *testing.T, resp response, message string) *http.Cookie {
	t.Helper()

	require.Equalf(t, http.StatusOK, resp.code, "not expected code. Body: %s", resp.body)

	var body struct {
		Message     string `json:"message"`
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal([]byte(resp.body), &body))
	require.Equal(t, message, body.Message)
	require.NotEmpty(t, body.AccessToken)
	require.Equal(t, "Bearer "+body.AccessToken, resp.header.Get("Authorization"), "header and body carry the same access token")

	require.Equal(t, 1, len(resp.cookies))
	cookie := resp.cookies[0]
	require.Equal(t, "refreshtoken", cookie.Name)
	require.Equal(t, cookie.HttpOnly, true, "refresh cookie should be HttpOnly")
	require.Equal(t, "/", cookie.Path, "refresh cookie should be available on / path")
	require.Equal(t, http.SameSiteStrictMode, cookie.SameSite, "refresh cookie should be SameSite Strict")
	require.InDelta(t, (24 * time.Hour).Seconds(), cookie.MaxAge, 1, "max age should be refresh TTL with 1 second delta")
	require.NotEmpty(t, cookie.Value, "refresh cookie should not be empty")

	return cookie
}

func requireError(t *testing.T, resp response, code int, message string) {
	t.Helper()

	require.Equalf(t, code, resp.code, "not expected code. Body: %s", resp.body)
	require.JSONEq(t, `{"error": "service_error", "message": "`+message+`"}`, resp.body)
	require.NotContains(t, resp.header, "Authorization", "Authorization header should not be set")
}

func Test_AuthHandlers(t *testing.T) {
	t.Parallel()

	const credentials = `{"login": "nk", "password": "StrongEnoughPassword"}`

	t.Run("register ok", func(t *testing.T) {
		url, _ := startServer(t)

		resp := send(t, http.MethodPost, url+"/api/auth/register", credentials)

		requireTokens(t, resp, "User registered successfully")
	})

	t.Run("register existed user fails", func(t *testing.T) {
		url, s := startServer(t)
		_, err := s.Register(t.Context(), "nk", "StrongEnoughPassword")
		require.NoError(t, err)

		resp := send(t, http.MethodPost, url+"/api/auth/register", credentials)

		requireError(t, resp, http.StatusConflict, "User already exists")
		require.Empty(t, resp.cookies)
	})

	t.Run("register validates request", func(t *testing.T) {
		url, _ := startServer(t)

		tests := []struct {
			name string
			body string
		}{
			{name: "short password", body: `{"login": "nk", "password": "short"}`},
			{name: "no login", body: `{"password": "StrongEnoughPassword"}`},
			{name: "login with spaces", body: `{"login": "n k", "password": "StrongEnoughPassword"}`},
			{name: "not json", body: `login=nk`},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				resp := send(t, http.MethodPost, url+"/api/auth/register", tt.body)

				require.Equalf(t, http.StatusBadRequest, resp.code, "Body: %s", resp.body)
				require.Empty(t, resp.cookies)
			})
		}
	})

	t.Run("login ok", func(t *testing.T) {
		url, s := startServer(t)
		_, err := s.Register(t.Context(), "nk", "StrongEnoughPassword")
		require.NoError(t, err)

		resp := send(t, http.MethodPost, url+"/api/auth/login", credentials)

		requireTokens(t, resp, "User logged in successfully")
	})

	t.Run("login failed", func(t *testing.T) {
		url, s := startServer(t)
		_, err := s.Register(t.Context(), "nk", "StrongEnoughPassword")
		require.NoError(t, err)

		for _, body := range []string{
			`{"login": "nk", "password": "WrongPassword"}`,
			`{"login": "unknown", "password": "StrongEnoughPassword"}`,
		} {
			resp := send(t, http.MethodPost, url+"/api/auth/login", body)

			requireError(t, resp, http.StatusUnauthorized, "Invalid credentials")
			require.Equal(t, 0, len(resp.cookies), "no cookies should be set on login error")
		}
	})

	t.Run("refresh token ok", func(t *testing.T) {
		url, _ := startServer(t)
		first := requireTokens(t, send(t, http.MethodPost, url+"/api/auth/register", credentials), "User registered successfully")

		resp := send(t, http.MethodPost, url+"/api/auth/refresh", "", first)

		second := requireTokens(t, resp, "Tokens refreshed successfully")
		require.NotEqual(t, first.Value, second.Value, "refresh token should be changed after refresh")
	})

	t.Run("refresh with token in body", func(t *testing.T) {
		url, _ := startServer(t)
		first := requireTokens(t, send(t, http.MethodPost, url+"/api/auth/register", credentials), "User registered successfully")

		resp := send(t, http.MethodPost, url+"/api/auth/refresh", `{"refresh_token": "`+first.Value+`"}`)

		requireTokens(t, resp, "Tokens refreshed successfully")
	})

	t.Run("refresh twice fail", func(t *testing.T) {
		url, _ := startServer(t)
		first := requireTokens(t, send(t, http.MethodPost, url+"/api/auth/register", credentials), "User registered successfully")
		requireTokens(t, send(t, http.MethodPost, url+"/api/auth/refresh", "", first), "Tokens refreshed successfully")

		resp := send(t, http.MethodPost, url+"/api/auth/refresh", "", first)

		requireError(t, resp, http.StatusUnauthorized, "Invalid refresh token")
	})

	t.Run("refresh without token fail", func(t *testing.T) {
		url, _ := startServer(t)

		resp := send(t, http.MethodPost, url+"/api/auth/refresh", "")

		requireError(t, resp, http.StatusUnauthorized, "Invalid refresh token")
	})

	t.Run("logout revokes refresh token", func(t *testing.T) {
		url, _ := startServer(t)
		cookie := requireTokens(t, send(t, http.MethodPost, url+"/api/auth/register", credentials), "User registered successfully")

		resp := send(t, http.MethodPost, url+"/api/auth/logout", "", cookie)

		require.Equalf(t, http.StatusOK, resp.code, "Body: %s", resp.body)
		require.JSONEq(t, `{"message": "User logged out successfully"}`, resp.body)
		require.Len(t, resp.cookies, 1)
		require.Equal(t, "refreshtoken", resp.cookies[0].Name)
		require.Less(t, resp.cookies[0].MaxAge, 0, "refresh cookie has to be removed")

		resp = send(t, http.MethodPost, url+"/api/auth/refresh", "", cookie)
		requireError(t, resp, http.StatusUnauthorized, "Invalid refresh token")
	})

	t.Run("logout always ok", func(t *testing.T) {
		url, _ := startServer(t)

		noToken := send(t, http.MethodPost, url+"/api/auth/logout", "")
		unknown := send(t, http.MethodPost, url+"/api/auth/logout", "", &http.Cookie{Name: "refreshtoken", Value: "unknown"})

		require.Equal(t, http.StatusOK, noToken.code)
		require.Equal(t, http.StatusOK, unknown.code)
	})

	t.Run("wrong method", func(t *testing.T) {
		url, _ := startServer(t)

		resp := send(t, http.MethodGet, url+"/api/auth/login", "")

		require.Equal(t, http.StatusMethodNotAllowed, resp.code)
	})
}
