package admin

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"garden/testutil"
)

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

func TestAdminLogin(t *testing.T) {
	app := setupTestApp(t)
	testutil.CreateUser(t, app.db, "admin@example.com", true)
	testutil.CreateUser(t, app.db, "reader@example.com", false)

	tests := []struct {
		name     string
		email    string
		password string
		expected int
		message  string
	}{
		{"admin", "admin@example.com", "password123", http.StatusFound, ""},
		{"wrong password", "admin@example.com", "wrong-password", http.StatusUnauthorized, "Invalid email or password"},
		{"unknown user", "ghost@example.com", "password123", http.StatusUnauthorized, "Invalid email or password"},
		{"not an admin", "reader@example.com", "password123", http.StatusForbidden, "This account does not have admin access"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := app.postForm("/admin/login", url.Values{"email": {tt.email}, "password": {tt.password}}, nil)
			assert.Equal(t, tt.expected, w.Code)
			if tt.message != "" {
				assert.Contains(t, w.Body.String(), tt.message)
			}
		})
	}
}

func TestAdminRoutes_RequireAdmin(t *testing.T) {
	app := setupTestApp(t)
	testutil.CreateUser(t, app.db, "reader@example.com", false)

	w := app.get("/admin/dashboard", nil)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/admin/login", w.Header().Get("Location"))

	// a rejected admin login leaves no session behind
	w = app.postForm("/admin/login", url.Values{"email": {"reader@example.com"}, "password": {"password123"}}, nil)
	require.Equal(t, http.StatusForbidden, w.Code)
	w = app.get("/admin/dashboard", w.Result().Cookies())
	assert.Equal(t, http.StatusFound, w.Code)
}

func TestAdminLogout(t *testing.T) {
	app := setupTestApp(t)
	_, cookies := app.loginAdmin(t)

	w := app.get("/admin/logout", cookies)
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/admin/login", w.Header().Get("Location"))

	w = app.get("/admin/dashboard", w.Result().Cookies())
	assert.Equal(t, http.StatusFound, w.Code)
}

func TestModeration(t *testing.T) {
	app := setupTestApp(t)
	admin, cookies := app.loginAdmin(t)
	reader := testutil.CreateUser(t, app.db, "reader@example.com", false)
	ctx := context.Background()

	w := app.get("/admin/users", cookies)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "reader@example.com")

	w = app.postForm("/admin/users/"+itoa(reader.ID)+"/block", nil, cookies)
	require.Equal(t, http.StatusFound, w.Code)
	profile, err := app.store.GetProfile(ctx, reader.ID)
	require.NoError(t, err)
	assert.True(t, profile.IsBlocked)

	w = app.get("/admin/users", cookies)
	assert.Contains(t, w.Body.String(), `<span class="badge">Blocked</span>`)

	w = app.postForm("/admin/users/"+itoa(reader.ID)+"/unblock", nil, cookies)
	require.Equal(t, http.StatusFound, w.Code)
	profile, err = app.store.GetProfile(ctx, reader.ID)
	require.NoError(t, err)
	assert.False(t, profile.IsBlocked)

	w = app.postForm("/admin/users/"+itoa(reader.ID)+"/promote", nil, cookies)
	require.Equal(t, http.StatusFound, w.Code)
	profile, err = app.store.GetProfile(ctx, reader.ID)
	require.NoError(t, err)
	assert.True(t, profile.IsAdmin)

	w = app.postForm("/admin/users/"+itoa(reader.ID)+"/demote", nil, cookies)
	require.Equal(t, http.StatusFound, w.Code)
	profile, err = app.store.GetProfile(ctx, reader.ID)
	require.NoError(t, err)
	assert.False(t, profile.IsAdmin)

	w = app.postForm("/admin/users/"+itoa(admin.ID)+"/demote", nil, cookies)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = app.postForm("/admin/users/"+itoa(admin.ID)+"/block", nil, cookies)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = app.postForm("/admin/users/9999/block", nil, cookies)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
