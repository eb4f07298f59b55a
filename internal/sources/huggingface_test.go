package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"litscout/internal/core"
	"litscout/internal/fetch"
)

func hfTestServer(models, datasets, papers string, failModels bool) (*httptest.Server, *[]url.Values) {
	var queries []url.Values
	mux := http.NewServeMux()
	mux.HandleFunc("/api/models", func(w http.ResponseWriter, r *http.Request) {
		queries = append(queries, r.URL.Query())
		if failModels {
			http.Error(w, "listing unavailable", http.StatusBadRequest)
			return
		}
		w.Write([]byte(models))
	})
	mux.HandleFunc("/api/datasets", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(datasets))
	})
	mux.HandleFunc("/api/daily_papers", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(papers))
	})
	return httptest.NewServer(mux), &queries
}

func TestHuggingFaceSearchAllSubresources(t *testing.T) {
	models := `[
		{"modelId":"deepfold-ai/protein-folding-transformer","lastModified":"2025-08-20T10:00:00.000Z","downloads":1200,"likes":85,"tags":["protein","biology"]}
	]`
	datasets := `[
		{"id":"bio-data/folding-benchmarks","createdAt":"2025-08-01T00:00:00.000Z","downloads":500,"likes":12}
	]`
	papers := `[
		{"publishedAt":"2025-08-18T09:30:00.000Z","title":"Scaling protein folding models",
		 "paper":{"id":"2508.12345","title":"Scaling protein folding models","summary":"We scale folding models to new domains.","upvotes":42,
		          "authors":[{"name":"Ana Ruiz"},{"name":"Wei Zhang"},{"name":"Tom Hill"},{"name":"Mia Cole"}]}},
		{"publishedAt":"2025-08-18T09:30:00.000Z","title":"Speech synthesis with diffusion",
		 "paper":{"id":"2508.99999","title":"Speech synthesis with diffusion","summary":"Audio generation.","upvotes":5,"authors":[]}}
	]`
	srv, _ := hfTestServer(models, datasets, papers, false)
	defer srv.Close()

	adapter := NewHuggingFace(fetch.New())
	adapter.baseURL = srv.URL

	items, err := adapter.Search(context.Background(), testQuery("protein folding"))
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("Expected model + dataset + relevant paper, got %d items", len(items))
	}

	model := items[0]
	if model.ID != "huggingface:deepfold-ai/protein-folding-transformer" {
		t.Errorf("Unexpected model ID %s", model.ID)
	}
	if model.Title != "protein-folding-transformer" || model.Authors != "deepfold-ai" {
		t.Errorf("Repo ID should split into title/author, got %q / %q", model.Title, model.Authors)
	}
	if model.URL != "https://huggingface.co/deepfold-ai/protein-folding-transformer" {
		t.Errorf("Item URL should point at the public Hub, got %s", model.URL)
	}
	if model.Date != "2025-08-20" {
		t.Errorf("Unexpected date %q", model.Date)
	}
	if model.Engagement.Downloads == nil || *model.Engagement.Downloads != 1200 {
		t.Errorf("Unexpected downloads %+v", model.Engagement.Downloads)
	}
	if model.Engagement.Likes == nil || *model.Engagement.Likes != 85 {
		t.Errorf("Unexpected likes %+v", model.Engagement.Likes)
	}
	mdet := model.Details.(core.HuggingFaceDetails)
	if mdet.ItemType != core.HFModel || len(mdet.Tags) != 2 {
		t.Errorf("Unexpected model details %+v", mdet)
	}

	dataset := items[1]
	if dataset.URL != "https://huggingface.co/datasets/bio-data/folding-benchmarks" {
		t.Errorf("Unexpected dataset URL %s", dataset.URL)
	}
	if dataset.Date != "2025-08-01" {
		t.Errorf("createdAt should back-fill the date, got %q", dataset.Date)
	}
	ddet := dataset.Details.(core.HuggingFaceDetails)
	if ddet.ItemType != core.HFDataset {
		t.Errorf("Expected dataset item type, got %q", ddet.ItemType)
	}
	if ddet.Tags == nil || len(ddet.Tags) != 0 {
		t.Errorf("Missing tags should become an empty slice, got %#v", ddet.Tags)
	}

	paper := items[2]
	if paper.ID != "huggingface:2508.12345" {
		t.Errorf("Unexpected paper ID %s", paper.ID)
	}
	if paper.Authors != "Ana Ruiz, Wei Zhang, Tom Hill" {
		t.Errorf("Expected first three authors, got %q", paper.Authors)
	}
	if paper.Abstract != "We scale folding models to new domains." {
		t.Errorf("Unexpected abstract %q", paper.Abstract)
	}
	if paper.URL != "https://huggingface.co/papers/2508.12345" {
		t.Errorf("Unexpected paper URL %s", paper.URL)
	}
	if paper.Engagement.Likes == nil || *paper.Engagement.Likes != 42 {
		t.Errorf("Upvotes should land in likes, got %+v", paper.Engagement.Likes)
	}
	pdet := paper.Details.(core.HuggingFaceDetails)
	if pdet.ItemType != core.HFPaper {
		t.Errorf("Expected paper item type, got %q", pdet.ItemType)
	}
}

func TestHuggingFaceDropsOldAndUndatedRepos(t *testing.T) {
	models := `[
		{"modelId":"old/protein-model","lastModified":"2025-06-01T00:00:00.000Z","downloads":10,"likes":1},
		{"modelId":"mystery/protein-model"},
		{"modelId":"fresh/protein-model","lastModified":"2025-08-10T00:00:00.000Z","downloads":10,"likes":1}
	]`
	srv, _ := hfTestServer(models, `[]`, `[]`, false)
	defer srv.Close()

	adapter := NewHuggingFace(fetch.New())
	adapter.baseURL = srv.URL

	items, err := adapter.Search(context.Background(), testQuery("protein"))
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("Expected only the in-window repo, got %d items", len(items))
	}
	if items[0].ID != "huggingface:fresh/protein-model" {
		t.Errorf("Unexpected survivor %s", items[0].ID)
	}
}

func TestHuggingFacePaperTitleFilter(t *testing.T) {
	papers := `[
		{"publishedAt":"2025-08-18T00:00:00.000Z","title":"Quantization of speech codecs","paper":{"id":"2508.1","title":"Quantization of speech codecs","summary":"","upvotes":1}}
	]`
	srv, _ := hfTestServer(`[]`, `[]`, papers, false)
	defer srv.Close()

	adapter := NewHuggingFace(fetch.New())
	adapter.baseURL = srv.URL

	items, err := adapter.Search(context.Background(), testQuery("protein folding"))
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("Off-topic daily papers should be filtered, got %d items", len(items))
	}
}

func TestHuggingFaceSubresourceErrorIsPrefixed(t *testing.T) {
	datasets := `[
		{"id":"bio-data/folding-benchmarks","createdAt":"2025-08-01T00:00:00.000Z","downloads":500,"likes":12}
	]`
	srv, _ := hfTestServer(`[]`, datasets, `[]`, true)
	defer srv.Close()

	adapter := NewHuggingFace(fetch.New())
	adapter.baseURL = srv.URL

	items, err := adapter.Search(context.Background(), testQuery("protein folding"))
	if err == nil {
		t.Fatal("Expected error from failing models listing")
	}
	if !strings.Contains(err.Error(), "models: ") {
		t.Errorf("Error should name the failing subresource, got %q", err.Error())
	}
	if len(items) != 1 {
		t.Errorf("Surviving subresources should still deliver, got %d items", len(items))
	}
}

func TestHuggingFaceRequestShape(t *testing.T) {
	srv, queries := hfTestServer(`[]`, `[]`, `[]`, false)
	defer srv.Close()

	adapter := NewHuggingFace(fetch.New())
	adapter.baseURL = srv.URL

	if _, err := adapter.Search(context.Background(), testQuery("protein folding")); err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(*queries) != 1 {
		t.Fatalf("Expected 1 models request, got %d", len(*queries))
	}
	q := (*queries)[0]
	if q.Get("search") != "protein folding" {
		t.Errorf("Unexpected search term %q", q.Get("search"))
	}
	if q.Get("sort") != "likes" || q.Get("direction") != "-1" {
		t.Errorf("Expected most-liked ordering, got sort=%q direction=%q", q.Get("sort"), q.Get("direction"))
	}
	if q.Get("limit") != "20" {
		t.Errorf("Expected quick depth limit=20, got %q", q.Get("limit"))
	}
}
