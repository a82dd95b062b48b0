package storage

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"testing"

	gcsapi "cloud.google.com/go/storage"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/JakeFAU/site-spider/internal/storage/local"
)

func TestParseLocation(t *testing.T) {
	t.Parallel()

	loc, err := ParseLocation("gs://bucket/runs/dump.json")
	require.NoError(t, err)
	require.True(t, loc.IsGCS())
	require.Equal(t, "bucket", loc.Bucket)
	require.Equal(t, "runs/dump.json", loc.Key)

	loc, err = ParseLocation("out/node_spider_dump.txt")
	require.NoError(t, err)
	require.False(t, loc.IsGCS())
	require.Equal(t, "node_spider_dump.txt", loc.Key)
	require.True(t, filepath.IsAbs(loc.Dir))

	for _, bad := range []string{"", "gs://", "gs://bucket", "gs://bucket/", "gs:///key"} {
		_, err := ParseLocation(bad)
		require.Error(t, err, bad)
	}
}

func TestOpenLocal(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "dump.json")
	target, err := Open(context.Background(), path, nil, nil)
	require.NoError(t, err)
	require.IsType(t, &local.BlobStore{}, target.Store)
	require.Equal(t, "dump.json", target.Key)
	require.NoError(t, target.Close())
}

func TestOpenBucketChecksAttrs(t *testing.T) {
	t.Parallel()

	factory := fakeFactory{rt: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		require.Contains(t, r.URL.Path, "/storage/v1/b/spider")
		return jsonResponse(r, http.StatusOK, `{"name":"spider"}`), nil
	})}
	target, err := Open(context.Background(), "gs://spider/stats.json", factory, nil)
	require.NoError(t, err)
	require.Equal(t, "stats.json", target.Key)
	require.NoError(t, target.Close())
}

func TestOpenBucketFailures(t *testing.T) {
	t.Parallel()

	_, _, err := OpenBucket(context.Background(), "spider", fakeFactory{err: errors.New("no creds")}, nil)
	require.ErrorContains(t, err, "no creds")

	factory := fakeFactory{rt: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		return jsonResponse(r, http.StatusForbidden, `{"error":{"code":403,"message":"denied"}}`), nil
	})}
	_, _, err = OpenBucket(context.Background(), "spider", factory, nil)
	require.ErrorContains(t, err, "attributes")
}

// --- fakes ---

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

type fakeFactory struct {
	rt  http.RoundTripper
	err error
}

func (f fakeFactory) NewClient(ctx context.Context) (*gcsapi.Client, error) {
	if f.err != nil {
		return nil, f.err
	}
	return gcsapi.NewClient(ctx, option.WithoutAuthentication(), option.WithHTTPClient(&http.Client{Transport: f.rt}))
}

func jsonResponse(r *http.Request, status int, body string) *http.Response {
	header := make(http.Header)
	header.Set("Content-Type", "application/json")
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     header,
		Request:    r,
	}
}
