package enrich

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shelfstats/internal/config"
	"shelfstats/internal/library"
)

func genrePage(genres ...string) string {
	page := `<html><body><div class="BookPageMetadataSection__genres">`
	for _, g := range genres {
		page += fmt.Sprintf(`<a class="BookPageMetadataSection__genreButton">%s</a>`, g)
	}
	return page + `</div></body></html>`
}

func testConfig(baseURL string) config.EnrichmentConfig {
	return config.EnrichmentConfig{
		BaseURL:           baseURL,
		Workers:           4,
		FetchTimeout:      5 * time.Second,
		RequestsPerSecond: 1000,
		Burst:             1000,
		UserAgent:         "shelfstats-test",
	}
}

func TestFetchGenres(t *testing.T) {
	pages := map[string]string{
		"1": genrePage("Fantasy", "Fiction"),
		"2": genrePage("History"),
		"3": genrePage(), // page exists, no genres
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "shelfstats-test", r.UserAgent())
		page, ok := pages[r.URL.Path[1:]]
		if !ok {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, page)
	}))
	defer srv.Close()

	f := NewFetcher(testConfig(srv.URL+"/"), nil, nil)
	genres, report := f.FetchGenres(context.Background(), []string{"1", "2", "3", "404"}, nil)

	assert.Equal(t, 4, report.Attempted)
	assert.Equal(t, 2, report.Found)
	assert.Equal(t, 2, report.NotFound)
	assert.Equal(t, 0, report.Failed)

	require.Len(t, genres, 4)
	assert.Equal(t, []string{"Fantasy", "Fiction"}, genres["1"])
	assert.Equal(t, []string{"History"}, genres["2"])
	assert.Empty(t, genres["3"])
	assert.Empty(t, genres["404"])
}

func TestFetchGenres_OneEntryPerInput(t *testing.T) {
	// Half the requests fail at the transport level; every identifier
	// must still have exactly one entry in the result map.
	var mu sync.Mutex
	n := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		n++
		fail := n%2 == 0
		mu.Unlock()
		if fail {
			hj, ok := w.(http.Hijacker)
			require.True(t, ok)
			conn, _, err := hj.Hijack()
			require.NoError(t, err)
			conn.Close()
			return
		}
		fmt.Fprint(w, genrePage("Fiction"))
	}))
	defer srv.Close()

	ids := make([]string, 0, 20)
	for i := 0; i < 20; i++ {
		ids = append(ids, fmt.Sprintf("%d", 100+i))
	}

	f := NewFetcher(testConfig(srv.URL+"/"), nil, nil)
	genres, report := f.FetchGenres(context.Background(), ids, nil)

	assert.Len(t, genres, 20)
	for _, id := range ids {
		_, ok := genres[id]
		assert.True(t, ok, "missing entry for %s", id)
	}
	assert.Equal(t, 20, report.Found+report.NotFound+report.Failed)
	assert.Greater(t, report.Found, 0)
	assert.Greater(t, report.Failed, 0)
}

func TestFetchGenres_DedupesIdentifiers(t *testing.T) {
	var mu sync.Mutex
	hits := map[string]int{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits[r.URL.Path]++
		mu.Unlock()
		fmt.Fprint(w, genrePage("Fiction"))
	}))
	defer srv.Close()

	f := NewFetcher(testConfig(srv.URL+"/"), nil, nil)
	genres, report := f.FetchGenres(context.Background(), []string{"7", "7", "8", "7"}, nil)

	assert.Equal(t, 2, report.Attempted)
	assert.Len(t, genres, 2)
	mu.Lock()
	assert.Equal(t, 1, hits["/7"])
	assert.Equal(t, 1, hits["/8"])
	mu.Unlock()
}

func TestFetchGenres_Progress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, genrePage("Fiction"))
	}))
	defer srv.Close()

	var calls [][2]int
	f := NewFetcher(testConfig(srv.URL+"/"), nil, nil)
	f.FetchGenres(context.Background(), []string{"1", "2", "3"}, func(done, total int) {
		calls = append(calls, [2]int{done, total})
	})

	require.Len(t, calls, 3)
	for i, c := range calls {
		assert.Equal(t, i+1, c[0])
		assert.Equal(t, 3, c[1])
	}
}

func TestFetchGenres_Cancellation(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		fmt.Fprint(w, genrePage("Fiction"))
	}))
	defer srv.Close()
	defer close(release)

	ids := make([]string, 0, 50)
	for i := 0; i < 50; i++ {
		ids = append(ids, fmt.Sprintf("%d", i+1))
	}

	cfg := testConfig(srv.URL + "/")
	cfg.Workers = 2
	cfg.FetchTimeout = 50 * time.Millisecond
	f := NewFetcher(cfg, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	genres, report := f.FetchGenres(ctx, ids, nil)

	// Every identifier resolves even though nothing could be fetched.
	assert.Len(t, genres, 50)
	assert.Equal(t, 50, report.Found+report.NotFound+report.Failed)
	assert.Equal(t, 0, report.Found)
}

func TestFetchGenres_Empty(t *testing.T) {
	f := NewFetcher(testConfig("http://localhost/"), nil, nil)
	genres, report := f.FetchGenres(context.Background(), nil, nil)
	assert.Empty(t, genres)
	assert.Equal(t, Report{Elapsed: report.Elapsed}, report)
}

func TestEligibleIDs(t *testing.T) {
	table := library.NewTable([]library.Record{
		{BookID: "123", Title: "A", Authors: []string{"X"}},
		{BookID: "456", Title: "B", Authors: []string{"X"}, Genres: []string{"Fiction"}},
		{BookID: "abc", Title: "C", Authors: []string{"X"}},
		{BookID: "123", Title: "A again", Authors: []string{"X"}},
		{BookID: "", Title: "D", Authors: []string{"X"}},
		{BookID: "789", Title: "E", Authors: []string{"X"}},
	})

	assert.Equal(t, []string{"123", "789"}, EligibleIDs(table))
}
