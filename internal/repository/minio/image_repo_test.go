package minio

import (
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/DRSN-tech/photo-search/internal/cfg"
	"github.com/DRSN-tech/photo-search/pkg/e"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testBucket   = "catalog"
	lastModified = "Mon, 02 Jan 2006 15:04:05 GMT"
)

type listResult struct {
	XMLName        xml.Name `xml:"ListBucketResult"`
	Name           string
	Prefix         string
	KeyCount       int
	MaxKeys        int
	Delimiter      string
	IsTruncated    bool
	Contents       []listObject
	CommonPrefixes []commonPrefix
}

type listObject struct {
	Key          string
	LastModified string
	ETag         string
	Size         int
	StorageClass string
}

type commonPrefix struct {
	Prefix string
}

type deleteRequest struct {
	Objects []struct {
		Key string
	} `xml:"Object"`
}

// fakeS3: бакет в памяти с подмножеством S3 API, которое использует ImageRepo.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeS3) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/"+testBucket)
	key := strings.TrimPrefix(path, "/")

	if key == "" {
		switch {
		case r.Method == http.MethodGet && r.URL.Query().Get("list-type") == "2":
			f.list(w, r.URL.Query())
		case r.Method == http.MethodPost && r.URL.Query().Has("delete"):
			f.deleteMany(w, r)
		default:
			w.WriteHeader(http.StatusOK)
		}
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.Method {
	case http.MethodHead, http.MethodGet:
		data, ok := f.objects[key]
		if !ok {
			if r.Method == http.MethodHead {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			writeNoSuchKey(w, key)
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("ETag", `"etag"`)
		w.Header().Set("Last-Modified", lastModified)
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			_, _ = w.Write(data)
		}
	case http.MethodPut:
		data, _ := io.ReadAll(r.Body)
		f.objects[key] = data
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodDelete:
		delete(f.objects, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeS3) list(w http.ResponseWriter, q url.Values) {
	prefix, delimiter := q.Get("prefix"), q.Get("delimiter")
	res := listResult{Name: testBucket, Prefix: prefix, MaxKeys: 1000, Delimiter: delimiter}

	seen := map[string]bool{}
	for _, key := range f.keys() {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		rest := strings.TrimPrefix(key, prefix)
		if delimiter != "" {
			if idx := strings.Index(rest, delimiter); idx >= 0 {
				p := prefix + rest[:idx+len(delimiter)]
				if !seen[p] {
					seen[p] = true
					res.CommonPrefixes = append(res.CommonPrefixes, commonPrefix{Prefix: p})
				}
				continue
			}
		}
		res.Contents = append(res.Contents, listObject{
			Key:          key,
			LastModified: "2006-01-02T15:04:05.000Z",
			ETag:         `"etag"`,
			StorageClass: "STANDARD",
		})
	}
	res.KeyCount = len(res.Contents) + len(res.CommonPrefixes)

	w.Header().Set("Content-Type", "application/xml")
	_ = xml.NewEncoder(w).Encode(res)
}

func (f *fakeS3) deleteMany(w http.ResponseWriter, r *http.Request) {
	var req deleteRequest
	if err := xml.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	for _, obj := range req.Objects {
		delete(f.objects, obj.Key)
	}
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/xml")
	_, _ = io.WriteString(w, `<DeleteResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/"></DeleteResult>`)
}

func writeNoSuchKey(w http.ResponseWriter, key string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusNotFound)
	_, _ = io.WriteString(w, `<Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message><Key>`+
		key+`</Key></Error>`)
}

func newTestRepo(t *testing.T, objects map[string][]byte) (*ImageRepo, *fakeS3) {
	t.Helper()

	fake := &fakeS3{objects: objects}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	mc, err := minio.New(strings.TrimPrefix(srv.URL, "http://"), &minio.Options{
		Creds:  credentials.NewStaticV4("user", "password", ""),
		Region: "us-east-1",
	})
	require.NoError(t, err)

	return NewImageRepo(mc, &cfg.MinIOCfg{BucketName: testBucket}), fake
}

func TestImageRepo_Listing(t *testing.T) {
	ctx := context.Background()
	repo, fake := newTestRepo(t, map[string][]byte{
		"p2/b.png":    []byte("blue"),
		"p2/c.png":    []byte("cyan"),
		"p2/.partial": []byte("x"),
	})

	require.NoError(t, repo.CreateProduct(ctx, "p1"))
	require.NoError(t, repo.WriteImage(ctx, "p1", "a.png", []byte("red")))
	assert.Contains(t, fake.keys(), "p1/"+productMarker)

	products, err := repo.ListProducts(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"p1", "p2"}, products)

	images, err := repo.ListImages(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.png"}, images)

	images, err = repo.ListImages(ctx, "p2")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"b.png", "c.png"}, images)

	exists, err := repo.ProductExists(ctx, "p2")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.ProductExists(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, exists)

	data, err := repo.ReadImage(ctx, "p2", "b.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("blue"), data)

	ok, err := repo.ImageExists(ctx, "p2", "c.png")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestImageRepo_NoSuchKey(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t, map[string][]byte{"p1/a.png": []byte("red")})

	_, err := repo.ReadImage(ctx, "p1", "missing.png")
	assert.ErrorIs(t, err, e.ErrImageNotFound)

	ok, err := repo.ImageExists(ctx, "p1", "missing.png")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, repo.RemoveImage(ctx, "p1", "missing.png"), e.ErrImageNotFound)

	_, err = repo.ListImages(ctx, "missing")
	assert.ErrorIs(t, err, e.ErrProductNotFound)

	assert.ErrorIs(t, repo.WriteImage(ctx, "missing", "a.png", []byte("x")), e.ErrProductNotFound)
	assert.ErrorIs(t, repo.RemoveProduct(ctx, "missing"), e.ErrProductNotFound)
}

func TestImageRepo_RemoveLastImageKeepsProduct(t *testing.T) {
	ctx := context.Background()
	repo, fake := newTestRepo(t, map[string][]byte{"p1/a.png": []byte("red")})

	require.NoError(t, repo.RemoveImage(ctx, "p1", "a.png"))
	assert.Equal(t, []string{"p1/" + productMarker}, fake.keys())

	exists, err := repo.ProductExists(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, exists)

	images, err := repo.ListImages(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, images)
}

func TestImageRepo_RemoveProduct(t *testing.T) {
	ctx := context.Background()
	repo, fake := newTestRepo(t, map[string][]byte{
		"p1/" + productMarker: nil,
		"p1/a.png":            []byte("red"),
		"p1/b.png":            []byte("orange"),
		"p2/c.png":            []byte("blue"),
	})

	require.NoError(t, repo.RemoveProduct(ctx, "p1"))
	assert.Equal(t, []string{"p2/c.png"}, fake.keys())

	products, err := repo.ListProducts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"p2"}, products)
}
