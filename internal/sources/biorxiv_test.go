package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"litscout/internal/core"
	"litscout/internal/fetch"
)

// biorxivHandler serves canned pages keyed by cursor. Paths look like
// /details/biorxiv/2025-07-26/2025-08-25/100/json.
func biorxivHandler(t *testing.T, pages map[string]biorxivResponse, failCursors map[string]bool, hits *[]string) http.HandlerFunc {
	var mu sync.Mutex
	return func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(r.URL.Path, "/")
		if len(parts) != 7 || parts[6] != "json" {
			t.Errorf("Unexpected path %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		cursor := parts[5]

		mu.Lock()
		*hits = append(*hits, cursor)
		mu.Unlock()

		if failCursors[cursor] {
			http.Error(w, "upstream exploded", http.StatusBadRequest)
			return
		}
		resp, ok := pages[cursor]
		if !ok {
			http.NotFound(w, r)
			return
		}
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			t.Errorf("encode page: %v", err)
		}
	}
}

func biorxivPage(total, count int, rows ...biorxivRow) biorxivResponse {
	return biorxivResponse{
		Collection: rows,
		Messages:   []biorxivMessage{{Total: total, Count: count}},
	}
}

func TestBiorxivSearchFiltersByRelevance(t *testing.T) {
	pages := map[string]biorxivResponse{
		"0": biorxivPage(3, 3,
			biorxivRow{
				DOI:       "10.1101/2025.08.01.111111",
				Title:     "Spatial transcriptomics of mouse cortex",
				Authors:   "Lee, A.; Park, B.; Gomez, C.",
				Date:      "2025-08-10",
				Category:  "genomics",
				Abstract:  "We map spatial transcriptomics profiles across cortical layers.",
				Published: "NA",
			},
			biorxivRow{
				DOI:       "10.1101/2025.07.30.222222",
				Title:     "A spatial transcriptomics atlas of the human heart",
				Authors:   "Nkemelu, D.",
				Date:      "2025-08-02",
				Category:  "cell biology",
				Abstract:  "An atlas built from spatial transcriptomics sections.",
				Published: "10.1038/s41586-025-00001-1",
			},
			biorxivRow{
				DOI:      "10.1101/2025.08.05.333333",
				Title:    "Cryo-EM structure of a viral capsid",
				Authors:  "Smith, J.",
				Date:     "2025-08-06",
				Category: "biophysics",
				Abstract: "Resolution of the capsid lattice.",
			},
		),
	}

	var hits []string
	srv := httptest.NewServer(biorxivHandler(t, pages, nil, &hits))
	defer srv.Close()

	adapter := NewBiorxiv(fetch.New())
	adapter.baseURL = srv.URL

	q := testQuery("spatial transcriptomics")
	q.Depth = core.DepthDefault
	items, err := adapter.Search(context.Background(), q)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("Expected 2 relevant items, got %d", len(items))
	}

	first := items[0]
	if first.ID != "biorxiv:10.1101/2025.08.01.111111" {
		t.Errorf("Unexpected ID %s", first.ID)
	}
	if first.URL != "https://doi.org/10.1101/2025.08.01.111111" {
		t.Errorf("Unexpected URL %s", first.URL)
	}
	if first.Engagement == nil {
		t.Fatal("Engagement should always be set")
	}
	if first.Engagement.PublishedDOI != "" {
		t.Errorf(`"NA" published marker should be dropped, got %q`, first.Engagement.PublishedDOI)
	}
	if first.Engagement.AuthorCount == nil || *first.Engagement.AuthorCount != 3 {
		t.Errorf("Expected 3 authors from semicolon list, got %+v", first.Engagement.AuthorCount)
	}
	details, ok := first.Details.(core.BiorxivDetails)
	if !ok {
		t.Fatalf("Expected BiorxivDetails, got %T", first.Details)
	}
	if details.PreprintDOI != "10.1101/2025.08.01.111111" || details.Category != "genomics" {
		t.Errorf("Unexpected details %+v", details)
	}

	second := items[1]
	if second.Engagement.PublishedDOI != "10.1038/s41586-025-00001-1" {
		t.Errorf("Expected published DOI kept, got %q", second.Engagement.PublishedDOI)
	}
	if second.Engagement.AuthorCount == nil || *second.Engagement.AuthorCount != 1 {
		t.Errorf("Expected 1 author, got %+v", second.Engagement.AuthorCount)
	}
}

func TestBiorxivPaginationMergesInPageOrder(t *testing.T) {
	row := func(n int) biorxivRow {
		return biorxivRow{
			DOI:      fmt.Sprintf("10.1101/2025.08.0%d.00000%d", n+1, n),
			Title:    fmt.Sprintf("Spatial transcriptomics batch %d", n),
			Authors:  "Doe, J.",
			Date:     "2025-08-10",
			Abstract: "spatial transcriptomics data",
		}
	}
	pages := map[string]biorxivResponse{
		"0":   biorxivPage(300, 100, row(0)),
		"100": biorxivPage(300, 100, row(1)),
		"200": biorxivPage(300, 100, row(2)),
	}

	var hits []string
	srv := httptest.NewServer(biorxivHandler(t, pages, nil, &hits))
	defer srv.Close()

	adapter := NewBiorxiv(fetch.New())
	adapter.baseURL = srv.URL

	q := testQuery("spatial transcriptomics")
	q.Depth = core.DepthDeep
	items, err := adapter.Search(context.Background(), q)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("Expected 3 items across pages, got %d", len(items))
	}
	for i, it := range items {
		want := fmt.Sprintf("Spatial transcriptomics batch %d", i)
		if it.Title != want {
			t.Errorf("Position %d: expected %q, got %q", i, want, it.Title)
		}
	}
	if len(hits) != 3 {
		t.Errorf("Expected 3 page fetches, got %d (%v)", len(hits), hits)
	}
}

func TestBiorxivLaterPageErrorKeepsPartialResults(t *testing.T) {
	row := func(n int) biorxivRow {
		return biorxivRow{
			DOI:      fmt.Sprintf("10.1101/2025.08.01.%06d", n),
			Title:    fmt.Sprintf("Spatial transcriptomics batch %d", n),
			Date:     "2025-08-10",
			Abstract: "spatial transcriptomics data",
		}
	}
	pages := map[string]biorxivResponse{
		"0":   biorxivPage(300, 100, row(0)),
		"200": biorxivPage(300, 100, row(2)),
	}

	var hits []string
	srv := httptest.NewServer(biorxivHandler(t, pages, map[string]bool{"100": true}, &hits))
	defer srv.Close()

	adapter := NewBiorxiv(fetch.New())
	adapter.baseURL = srv.URL

	q := testQuery("spatial transcriptomics")
	q.Depth = core.DepthDeep
	items, err := adapter.Search(context.Background(), q)
	if err == nil {
		t.Fatal("Expected error from failing page")
	}
	if len(items) != 2 {
		t.Fatalf("Expected partial results from surviving pages, got %d items", len(items))
	}
	if items[0].Title != "Spatial transcriptomics batch 0" || items[1].Title != "Spatial transcriptomics batch 2" {
		t.Errorf("Unexpected surviving items: %q, %q", items[0].Title, items[1].Title)
	}
}

func TestBiorxivEarlyStopSkipsRemainingPages(t *testing.T) {
	var rows []biorxivRow
	for i := 0; i < 25; i++ {
		rows = append(rows, biorxivRow{
			DOI:      fmt.Sprintf("10.1101/2025.08.01.%06d", i),
			Title:    fmt.Sprintf("Spatial transcriptomics study %d", i),
			Date:     "2025-08-10",
			Abstract: "spatial transcriptomics sections",
		})
	}
	pages := map[string]biorxivResponse{
		"0": {Collection: rows, Messages: []biorxivMessage{{Total: 300, Count: 100}}},
	}

	var hits []string
	srv := httptest.NewServer(biorxivHandler(t, pages, nil, &hits))
	defer srv.Close()

	adapter := NewBiorxiv(fetch.New())
	adapter.baseURL = srv.URL

	q := testQuery("spatial transcriptomics")
	q.Depth = core.DepthQuick // cap 20
	items, err := adapter.Search(context.Background(), q)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(items) != 20 {
		t.Errorf("Expected items trimmed to quick cap 20, got %d", len(items))
	}
	if len(hits) != 1 {
		t.Errorf("Remaining pages should be skipped once the cap is hit, got fetches %v", hits)
	}
}

func TestMedrxivUsesOwnServerPath(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		resp := biorxivPage(1, 1, biorxivRow{
			DOI:      "10.1101/2025.08.11.444444",
			Title:    "Wastewater surveillance of influenza",
			Date:     "2025-08-12",
			Abstract: "Citywide influenza monitoring in wastewater.",
		})
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	adapter := NewMedrxiv(fetch.New())
	adapter.baseURL = srv.URL

	items, err := adapter.Search(context.Background(), testQuery("influenza wastewater"))
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if !strings.HasPrefix(path, "/details/medrxiv/") {
		t.Errorf("Expected medrxiv server path, got %s", path)
	}
	if len(items) != 1 {
		t.Fatalf("Expected 1 item, got %d", len(items))
	}
	if items[0].Source != core.SourceMedrxiv {
		t.Errorf("Expected medrxiv source tag, got %s", items[0].Source)
	}
	if items[0].ID != "medrxiv:10.1101/2025.08.11.444444" {
		t.Errorf("Unexpected ID %s", items[0].ID)
	}
}
