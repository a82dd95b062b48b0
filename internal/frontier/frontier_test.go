package frontier

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"https://www.Example.com/docs/?page=2#top": "https://example.com/docs",
		"https://example.com/":                     "https://example.com",
		"https://example.com":                      "https://example.com",
		"http://example.com/a/b/":                  "http://example.com/a/b",
		"www.example.com/path?q=1":                 "example.com/path",
		"https://user:pw@example.com/x":            "https://example.com/x",
	}
	for in, want := range cases {
		require.Equal(t, want, Normalize(in), in)
	}
}

func TestDomain(t *testing.T) {
	t.Parallel()

	require.Equal(t, "example.com", Domain("https://www.example.com:8443/a"))
	require.Equal(t, "example.com", Domain("example.com/path"))
	require.Equal(t, "127.0.0.1", Domain("http://127.0.0.1:9000"))
	require.Empty(t, Domain(""))
	require.Empty(t, Domain("http://%zz"))
}

func TestNewRejectsBadPattern(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Seeds: []string{"https://example.com"}, IgnorePatterns: []string{"("}})
	require.Error(t, err)
}

func TestShouldVisitFilters(t *testing.T) {
	t.Parallel()

	f, err := New(Config{
		Seeds:          []string{"https://www.example.com/"},
		IgnorePatterns: []string{`\.pdf$`, `/private/`},
	})
	require.NoError(t, err)

	require.True(t, f.ShouldVisit("https://example.com/docs"))
	require.True(t, f.ShouldVisit("https://www.example.com/docs"))
	require.False(t, f.ShouldVisit("https://other.com/docs"))
	require.False(t, f.ShouldVisit("https://example.com/file.pdf"))
	require.False(t, f.ShouldVisit("https://example.com/private/a"))
	require.False(t, f.ShouldVisit("not a url"))

	require.True(t, f.MarkVisited("https://example.com/docs"))
	require.False(t, f.ShouldVisit("https://www.example.com/docs/?utm=1"))
}

func TestExplicitAllowedDomains(t *testing.T) {
	t.Parallel()

	f, err := New(Config{
		Seeds:          []string{"https://example.com"},
		AllowedDomains: []string{"docs.example.com"},
	})
	require.NoError(t, err)
	require.False(t, f.ShouldVisit("https://example.com/a"))
	require.True(t, f.ShouldVisit("https://docs.example.com/a"))
}

func TestMarkVisitedIsIdempotent(t *testing.T) {
	t.Parallel()

	f, err := New(Config{Seeds: []string{"https://example.com"}})
	require.NoError(t, err)

	require.True(t, f.MarkVisited("https://example.com/a"))
	require.False(t, f.MarkVisited("https://example.com/a/"))
	require.False(t, f.MarkVisited("https://www.example.com/a#frag"))
	require.Equal(t, 1, f.RemainingQueueSize())
	require.Equal(t, 1, f.VisitedCount())
	require.True(t, f.Visited("https://example.com/a?x=y"))

	f.TaskStarted()
	require.Equal(t, 0, f.RemainingQueueSize())
	f.TaskStarted()
	require.Equal(t, 0, f.RemainingQueueSize())
	require.Equal(t, 1, f.VisitedCount())
}

func TestAdmitConcurrent(t *testing.T) {
	t.Parallel()

	f, err := New(Config{Seeds: []string{"https://example.com"}})
	require.NoError(t, err)

	var admitted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if f.Admit(fmt.Sprintf("https://example.com/page/%d", i%8)) {
				admitted.Add(1)
			}
		}(i)
	}
	wg.Wait()

	require.Equal(t, int64(8), admitted.Load())
	require.Equal(t, 8, f.VisitedCount())
	require.Equal(t, 8, f.RemainingQueueSize())
}

func TestTaskSkippedDrainsRemaining(t *testing.T) {
	t.Parallel()

	f, err := New(Config{Seeds: []string{"https://example.com"}})
	require.NoError(t, err)
	require.True(t, f.Admit("https://example.com/a"))
	require.True(t, f.Admit("https://example.com/b"))

	f.TaskStarted()
	f.TaskSkipped()
	require.Zero(t, f.RemainingQueueSize())
	f.TaskSkipped()
	require.Zero(t, f.RemainingQueueSize())
	require.Equal(t, 2, f.VisitedCount())
}
