package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"garden/assets"
	"garden/auth"
	"garden/models"
	"garden/newsletter"
	"garden/store"
	"garden/testutil"
	"garden/views"
)

type recordingMailer struct {
	sent []newsletter.Message
}

func (m *recordingMailer) Send(ctx context.Context, msg newsletter.Message) error {
	m.sent = append(m.sent, msg)
	return nil
}

type testApp struct {
	db     *gorm.DB
	store  *store.Store
	router *gin.Engine
	assets *assets.DiskStore
	mailer *recordingMailer
}

func setupTestApp(t *testing.T) *testApp {
	gin.SetMode(gin.TestMode)
	db := testutil.NewDB(t)
	s := store.New(db, nil)
	provider := auth.NewProvider(s, nil)
	provider.SetBcryptCost(bcrypt.MinCost)

	disk, err := assets.NewDiskStore(t.TempDir(), "/uploads")
	require.NoError(t, err)
	mailer := &recordingMailer{}
	dispatcher := newsletter.NewDispatcher(s, mailer, "news@garden.example", "https://garden.example")

	router := gin.New()
	router.SetHTMLTemplate(views.Must())
	router.Use(sessions.Sessions("test-session", cookie.NewStore([]byte("secret"))))
	router.Use(provider.LoadSession())
	NewAdminModule(s, provider, disk, dispatcher).RegisterRoutes(router)

	return &testApp{db: db, store: s, router: router, assets: disk, mailer: mailer}
}

func (app *testApp) do(req *http.Request, cookies []*http.Cookie) *httptest.ResponseRecorder {
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	w := httptest.NewRecorder()
	app.router.ServeHTTP(w, req)
	return w
}

func (app *testApp) get(path string, cookies []*http.Cookie) *httptest.ResponseRecorder {
	req, _ := http.NewRequest("GET", path, nil)
	return app.do(req, cookies)
}

func (app *testApp) postForm(path string, form url.Values, cookies []*http.Cookie) *httptest.ResponseRecorder {
	req, _ := http.NewRequest("POST", path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return app.do(req, cookies)
}

func (app *testApp) loginAdmin(t *testing.T) (*models.User, []*http.Cookie) {
	t.Helper()
	user := testutil.CreateUser(t, app.db, "admin@example.com", true)
	w := app.postForm("/admin/login", url.Values{"email": {"admin@example.com"}, "password": {"password123"}}, nil)
	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, "/admin/dashboard", w.Header().Get("Location"))
	return user, w.Result().Cookies()
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestGenerateSlug(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello World", "hello-world"},
		{"Testing 123", "testing-123"},
		{"Multiple   Spaces", "multiple-spaces"},
		{"Special@#Characters!", "specialcharacters"},
		{"---Dashes---", "dashes"},
		{"snake_case_title", "snake_case_title"},
		{"Café Crème Brûlée", "cafe-creme-brulee"},
		{"  Leading and trailing  ", "leading-and-trailing"},
		{"Go: a - b", "go-a-b"},
		{"!!!", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := generateSlug(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestDashboard_Stats(t *testing.T) {
	app := setupTestApp(t)
	_, cookies := app.loginAdmin(t)
	testutil.CreatePost(t, app.db, "one", true)
	testutil.CreatePost(t, app.db, "two", true)
	testutil.CreatePost(t, app.db, "three", false)
	require.NoError(t, app.store.InsertSubscriber(context.Background(), "reader@example.com"))

	w := app.get("/admin/dashboard", cookies)

	assert.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "<span>Total posts</span><strong>3</strong>")
	assert.Contains(t, body, "<span>Published</span><strong>2</strong>")
	assert.Contains(t, body, "<span>Drafts</span><strong>1</strong>")
	assert.Contains(t, body, "<span>Subscribers</span><strong>1</strong>")
	assert.Contains(t, body, "Post three")
}

func TestAdminRoot(t *testing.T) {
	app := setupTestApp(t)

	w := app.get("/admin", nil)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/admin/login", w.Header().Get("Location"))

	_, cookies := app.loginAdmin(t)
	w = app.get("/admin", cookies)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/admin/dashboard", w.Header().Get("Location"))
}

func TestCreatePost(t *testing.T) {
	app := setupTestApp(t)
	_, cookies := app.loginAdmin(t)

	w := app.get("/admin/create", cookies)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "New post")

	w = app.postForm("/admin/create", url.Values{
		"title":     {"Growing Tomatoes"},
		"category":  {"Garden"},
		"excerpt":   {"Notes from the balcony"},
		"content":   {"# Tomatoes\n\nWater daily."},
		"published": {"1"},
	}, cookies)
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/admin/dashboard", w.Header().Get("Location"))

	post, err := app.store.GetPostBySlug(context.Background(), "growing-tomatoes", false)
	require.NoError(t, err)
	assert.Equal(t, "Growing Tomatoes", post.Title)
	assert.Equal(t, "Garden", post.Category)
	assert.True(t, post.Published)
	assert.Zero(t, post.ViewCount)
}

func TestCreatePost_Validation(t *testing.T) {
	app := setupTestApp(t)
	_, cookies := app.loginAdmin(t)
	testutil.CreatePost(t, app.db, "taken", true)

	tests := []struct {
		name    string
		form    url.Values
		message string
	}{
		{"missing title", url.Values{"content": {"body"}}, "Title is required"},
		{"empty slug", url.Values{"title": {"!!!"}}, "Slug must contain at least one letter or number"},
		{"duplicate slug", url.Values{"title": {"Another"}, "slug": {"taken"}}, "A post with this slug already exists"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := app.postForm("/admin/create", tt.form, cookies)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), tt.message)
		})
	}

	var n int64
	app.db.Model(&models.Post{}).Count(&n)
	assert.Equal(t, int64(1), n)
}

func TestEditPost(t *testing.T) {
	app := setupTestApp(t)
	_, cookies := app.loginAdmin(t)
	post := testutil.CreatePost(t, app.db, "draft-post", false)
	require.NoError(t, app.store.IncrementViews(context.Background(), post.ID))

	w := app.get("/admin/edit/"+itoa(post.ID), cookies)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Edit post")
	assert.Contains(t, w.Body.String(), `value="draft-post"`)

	w = app.postForm("/admin/edit/"+itoa(post.ID), url.Values{
		"title":     {"Now Published"},
		"slug":      {"draft-post"},
		"content":   {"updated"},
		"published": {"1"},
	}, cookies)
	require.Equal(t, http.StatusFound, w.Code)

	saved, err := app.store.GetPost(context.Background(), post.ID)
	require.NoError(t, err)
	assert.Equal(t, "Now Published", saved.Title)
	assert.True(t, saved.Published)
	assert.Equal(t, int64(1), saved.ViewCount)
}

func TestEditPost_NotFound(t *testing.T) {
	app := setupTestApp(t)
	_, cookies := app.loginAdmin(t)

	for _, path := range []string{"/admin/edit/999", "/admin/edit/abc"} {
		w := app.get(path, cookies)
		assert.Equal(t, http.StatusNotFound, w.Code, path)
	}

	w := app.postForm("/admin/edit/999", url.Values{"title": {"x"}}, cookies)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeletePost(t *testing.T) {
	app := setupTestApp(t)
	user, cookies := app.loginAdmin(t)
	post := testutil.CreatePost(t, app.db, "doomed", true)
	testutil.CreateComment(t, app.db, post.ID, user, "bye")

	req, _ := http.NewRequest("DELETE", "/admin/posts/"+itoa(post.ID), nil)
	w := app.do(req, cookies)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Post deleted", decode(t, w)["message"])

	var n int64
	app.db.Model(&models.Comment{}).Count(&n)
	assert.Zero(t, n)

	req, _ = http.NewRequest("DELETE", "/admin/posts/"+itoa(post.ID), nil)
	w = app.do(req, cookies)
	assert.Equal(t, http.StatusNotFound, w.Code)

	req, _ = http.NewRequest("DELETE", "/admin/posts/nope", nil)
	w = app.do(req, cookies)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestNotifySubscribers(t *testing.T) {
	app := setupTestApp(t)
	_, cookies := app.loginAdmin(t)
	post := testutil.CreatePost(t, app.db, "fresh", true)
	draft := testutil.CreatePost(t, app.db, "draft", false)

	w := app.postForm("/admin/posts/"+itoa(post.ID)+"/notify", nil, cookies)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "No subscribers found.", decode(t, w)["error"])
	assert.Empty(t, app.mailer.sent)

	require.NoError(t, app.store.InsertSubscriber(context.Background(), "a@example.com"))
	require.NoError(t, app.store.InsertSubscriber(context.Background(), "b@example.com"))

	w = app.postForm("/admin/posts/"+itoa(draft.ID)+"/notify", nil, cookies)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = app.postForm("/admin/posts/"+itoa(post.ID)+"/notify", nil, cookies)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), decode(t, w)["recipients"])
	require.Len(t, app.mailer.sent, 1)
	assert.Equal(t, "New Post: Post fresh", app.mailer.sent[0].Subject)
}

func uploadRequest(t *testing.T, filename string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("image", filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, _ := http.NewRequest("POST", "/admin/images", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestImages_UploadListDelete(t *testing.T) {
	app := setupTestApp(t)
	_, cookies := app.loginAdmin(t)

	w := app.do(uploadRequest(t, "cat.png", []byte("png-bytes")), cookies)
	require.Equal(t, http.StatusCreated, w.Code)
	body := decode(t, w)
	key := body["key"].(string)
	imageURL := body["url"].(string)
	assert.True(t, strings.HasPrefix(key, "blog-images/"))
	assert.Equal(t, "![Image Description]("+imageURL+")", body["markdown"])

	w = app.get("/admin/images", cookies)
	require.Equal(t, http.StatusOK, w.Code)
	images := decode(t, w)["images"].([]interface{})
	require.Len(t, images, 1)

	post := testutil.CreatePost(t, app.db, "with-cat", true)
	require.NoError(t, app.db.Model(post).Update("content", "Look: ![cat]("+imageURL+")").Error)

	req, _ := http.NewRequest("DELETE", "/admin/images/"+key, nil)
	w = app.do(req, cookies)
	require.Equal(t, http.StatusOK, w.Code)
	refs := decode(t, w)["referenced_by"].([]interface{})
	require.Len(t, refs, 1)
	assert.Equal(t, "with-cat", refs[0].(map[string]interface{})["slug"])

	req, _ = http.NewRequest("DELETE", "/admin/images/"+key, nil)
	w = app.do(req, cookies)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestImages_RejectsUnsupportedType(t *testing.T) {
	app := setupTestApp(t)
	_, cookies := app.loginAdmin(t)

	w := app.do(uploadRequest(t, "notes.txt", []byte("hello")), cookies)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	list, err := app.assets.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestImages_DeleteInvalidKey(t *testing.T) {
	app := setupTestApp(t)
	_, cookies := app.loginAdmin(t)

	req, _ := http.NewRequest("DELETE", "/admin/images/other/file.png", nil)
	w := app.do(req, cookies)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
