package assets

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKey(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		ext     string
		wantErr bool
	}{
		{"jpg", "photo.jpg", ".jpg", false},
		{"upper case", "Photo.PNG", ".png", false},
		{"svg", "diagram.svg", ".svg", false},
		{"webp", "a.b.webp", ".webp", false},
		{"no extension", "README", "", true},
		{"executable", "evil.exe", "", true},
		{"html", "page.html", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := newKey(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsupportedType)
				return
			}
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(key, KeyPrefix))
			assert.True(t, strings.HasSuffix(key, tt.ext))
		})
	}

	a, _ := newKey("same.png")
	b, _ := newKey("same.png")
	assert.NotEqual(t, a, b)
}

func TestCleanKey(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"blog-images/abc.png", false},
		{"/blog-images/abc.png", false},
		{"blog-images/../config.yml", true},
		{"other/abc.png", true},
		{"blog-images/abc.txt", true},
		{"blog-images//abc.png", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, err := CleanKey(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidKey)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAsset_Markdown(t *testing.T) {
	a := Asset{URL: "/uploads/blog-images/x.png"}
	assert.Equal(t, "![Image Description](/uploads/blog-images/x.png)", a.Markdown())
}

func TestDiskStore_Lifecycle(t *testing.T) {
	dir := t.TempDir()
	ds, err := NewDiskStore(dir, "/uploads/")
	require.NoError(t, err)
	ctx := context.Background()

	asset, err := ds.Upload(ctx, "cat.JPG", "image/jpeg", strings.NewReader("fake-jpeg"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(asset.URL, "/uploads/blog-images/"))
	assert.True(t, strings.HasSuffix(asset.Key, ".jpg"))
	assert.Equal(t, int64(len("fake-jpeg")), asset.Size)

	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(asset.Key)))
	require.NoError(t, err)
	assert.Equal(t, "fake-jpeg", string(data))

	list, err := ds.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, asset.Key, list[0].Key)

	require.NoError(t, ds.Delete(ctx, asset.Key))
	assert.ErrorIs(t, ds.Delete(ctx, asset.Key), ErrNotFound)

	list, err = ds.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestDiskStore_RejectsUnsupported(t *testing.T) {
	dir := t.TempDir()
	ds, err := NewDiskStore(dir, "/uploads")
	require.NoError(t, err)

	_, err = ds.Upload(context.Background(), "script.sh", "text/plain", strings.NewReader("echo"))
	assert.ErrorIs(t, err, ErrUnsupportedType)

	entries, err := os.ReadDir(filepath.Join(dir, "blog-images"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDiskStore_DeleteRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	ds, err := NewDiskStore(dir, "/uploads")
	require.NoError(t, err)
	secret := filepath.Join(dir, "secret.png")
	require.NoError(t, os.WriteFile(secret, []byte("x"), 0o644))

	assert.ErrorIs(t, ds.Delete(context.Background(), "blog-images/../secret.png"), ErrInvalidKey)
	_, err = os.Stat(secret)
	assert.NoError(t, err)
}

type s3Stub struct {
	s3iface.S3API
	put     *s3.PutObjectInput
	body    []byte
	deleted []string
	objects []*s3.Object
}

func (s *s3Stub) PutObjectWithContext(ctx aws.Context, in *s3.PutObjectInput, opts ...request.Option) (*s3.PutObjectOutput, error) {
	s.put = in
	s.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, nil
}

func (s *s3Stub) ListObjectsV2PagesWithContext(ctx aws.Context, in *s3.ListObjectsV2Input, fn func(*s3.ListObjectsV2Output, bool) bool, opts ...request.Option) error {
	fn(&s3.ListObjectsV2Output{Contents: s.objects}, true)
	return nil
}

func (s *s3Stub) DeleteObjectWithContext(ctx aws.Context, in *s3.DeleteObjectInput, opts ...request.Option) (*s3.DeleteObjectOutput, error) {
	s.deleted = append(s.deleted, aws.StringValue(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3Store(t *testing.T) {
	stub := &s3Stub{}
	store := NewS3StoreWithClient(stub, "images", "https://cdn.example/")
	ctx := context.Background()

	asset, err := store.Upload(ctx, "diagram.svg", "", bytes.NewReader([]byte("<svg/>")))
	require.NoError(t, err)
	require.NotNil(t, stub.put)
	assert.Equal(t, "images", aws.StringValue(stub.put.Bucket))
	assert.Equal(t, asset.Key, aws.StringValue(stub.put.Key))
	assert.Equal(t, "image/svg+xml", aws.StringValue(stub.put.ContentType))
	assert.Equal(t, "<svg/>", string(stub.body))
	assert.Equal(t, "https://cdn.example/"+asset.Key, asset.URL)

	older := time.Now().Add(-time.Hour)
	newer := time.Now()
	stub.objects = []*s3.Object{
		{Key: aws.String("blog-images/old.png"), Size: aws.Int64(1), LastModified: &older},
		{Key: aws.String("blog-images/notes.txt"), Size: aws.Int64(1), LastModified: &newer},
		{Key: aws.String("blog-images/new.gif"), Size: aws.Int64(2), LastModified: &newer},
	}
	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "blog-images/new.gif", list[0].Key)
	assert.Equal(t, "blog-images/old.png", list[1].Key)

	require.NoError(t, store.Delete(ctx, "blog-images/old.png"))
	assert.Equal(t, []string{"blog-images/old.png"}, stub.deleted)
	assert.ErrorIs(t, store.Delete(ctx, "../etc/passwd"), ErrInvalidKey)
}

func TestServeDisk_SandboxesUploads(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ds, err := NewDiskStore(t.TempDir(), "/uploads")
	require.NoError(t, err)
	svg := `<svg xmlns="http://www.w3.org/2000/svg"><script>alert(1)</script></svg>`
	asset, err := ds.Upload(context.Background(), "x.svg", "", strings.NewReader(svg))
	require.NoError(t, err)

	router := gin.New()
	ServeDisk(router, "/uploads", ds)

	req, _ := http.NewRequest("GET", asset.URL, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, svg, w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Security-Policy"), "sandbox")
	assert.Contains(t, w.Header().Get("Content-Security-Policy"), "default-src 'none'")
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}
