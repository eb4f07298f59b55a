package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"litscout/internal/core"
	"litscout/internal/fetch"
)

const pubmedEFetchFixture = `<?xml version="1.0" ?>
<PubmedArticleSet>
  <PubmedArticle>
    <MedlineCitation>
      <PMID Version="1">40000001</PMID>
      <Article>
        <Journal>
          <Title>Nature Methods</Title>
          <JournalIssue><PubDate><Year>2025</Year><Month>Sep</Month></PubDate></JournalIssue>
        </Journal>
        <ArticleTitle>High-throughput CRISPR screening in <i>Escherichia coli</i> reveals essential genes</ArticleTitle>
        <Abstract>
          <AbstractText Label="BACKGROUND">Genome-scale screens remain laborious.</AbstractText>
          <AbstractText Label="RESULTS">We describe a pooled CRISPR screening platform.</AbstractText>
        </Abstract>
        <AuthorList>
          <Author><LastName>Smith</LastName><ForeName>John</ForeName></Author>
          <Author><LastName>Chen</LastName><ForeName>Li</ForeName></Author>
        </AuthorList>
        <ArticleDate DateType="Electronic"><Year>2025</Year><Month>08</Month><Day>15</Day></ArticleDate>
      </Article>
      <MeshHeadingList>
        <MeshHeading><DescriptorName UI="D064112">CRISPR-Cas Systems</DescriptorName></MeshHeading>
        <MeshHeading><DescriptorName UI="D005786">Gene Library</DescriptorName></MeshHeading>
      </MeshHeadingList>
    </MedlineCitation>
    <PubmedData>
      <ArticleIdList>
        <ArticleId IdType="pubmed">40000001</ArticleId>
        <ArticleId IdType="doi">10.1038/s41592-025-01000-1</ArticleId>
      </ArticleIdList>
    </PubmedData>
  </PubmedArticle>
  <PubmedArticle>
    <MedlineCitation>
      <PMID Version="1">40000002</PMID>
      <Article>
        <Journal>
          <Title>Blood Advances</Title>
          <JournalIssue><PubDate><Year>2025</Year><Month>Aug</Month></PubDate></JournalIssue>
        </Journal>
        <ArticleTitle>Base editing outcomes in primary T cells</ArticleTitle>
        <Abstract>
          <AbstractText>CRISPR screening informed the selection of edit sites.</AbstractText>
        </Abstract>
        <AuthorList>
          <Author><LastName>Okafor</LastName><ForeName>Ada</ForeName></Author>
        </AuthorList>
      </Article>
    </MedlineCitation>
    <PubmedData>
      <ArticleIdList>
        <ArticleId IdType="pubmed">40000002</ArticleId>
      </ArticleIdList>
    </PubmedData>
  </PubmedArticle>
</PubmedArticleSet>`

func newPubmedTestServer(t *testing.T, idlist string, efetchHits *int, efetchQuery *url.Values) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/esearch.fcgi", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"esearchresult":{"idlist":` + idlist + `,"querytranslation":"crispr[All Fields]"}}`))
	})
	mux.HandleFunc("/efetch.fcgi", func(w http.ResponseWriter, r *http.Request) {
		if efetchHits != nil {
			*efetchHits++
		}
		if efetchQuery != nil {
			*efetchQuery = r.URL.Query()
		}
		w.Header().Set("Content-Type", "text/xml")
		w.Write([]byte(pubmedEFetchFixture))
	})
	return httptest.NewServer(mux)
}

func TestPubmedSearchEndToEnd(t *testing.T) {
	var efetchQuery url.Values
	srv := newPubmedTestServer(t, `["40000001","40000002"]`, nil, &efetchQuery)
	defer srv.Close()

	adapter := NewPubmed(fetch.New(), "")
	adapter.baseURL = srv.URL
	adapter.pause = 0

	items, err := adapter.Search(context.Background(), testQuery("CRISPR screening"))
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(items))
	}
	if got := efetchQuery.Get("id"); got != "40000001,40000002" {
		t.Errorf("Expected batched PMIDs, got id=%q", got)
	}
	if efetchQuery.Get("rettype") != "abstract" || efetchQuery.Get("retmode") != "xml" {
		t.Errorf("Unexpected efetch params: %v", efetchQuery)
	}

	first := items[0]
	if first.ID != "pubmed:40000001" {
		t.Errorf("Unexpected ID %s", first.ID)
	}
	if first.Title != "High-throughput CRISPR screening in Escherichia coli reveals essential genes" {
		t.Errorf("Inline markup should be flattened, got %q", first.Title)
	}
	if first.Abstract != "BACKGROUND: Genome-scale screens remain laborious. RESULTS: We describe a pooled CRISPR screening platform." {
		t.Errorf("Unexpected labeled abstract %q", first.Abstract)
	}
	if first.Authors != "Smith J, Chen L" {
		t.Errorf("Expected initialed authors, got %q", first.Authors)
	}
	if first.Date != "2025-08-15" {
		t.Errorf("Electronic ArticleDate should win, got %q", first.Date)
	}
	if first.DateConfidence != core.ConfidenceHigh {
		t.Errorf("Full date in range should be high confidence, got %s", first.DateConfidence)
	}
	if first.URL != "https://pubmed.ncbi.nlm.nih.gov/40000001/" {
		t.Errorf("Unexpected URL %s", first.URL)
	}
	if first.Engagement.PublishedDOI != "10.1038/s41592-025-01000-1" {
		t.Errorf("Unexpected DOI %q", first.Engagement.PublishedDOI)
	}
	if first.Engagement.PublishedJournal != "Nature Methods" {
		t.Errorf("Unexpected journal %q", first.Engagement.PublishedJournal)
	}
	if first.Engagement.AuthorCount == nil || *first.Engagement.AuthorCount != 2 {
		t.Errorf("Expected 2 authors, got %+v", first.Engagement.AuthorCount)
	}
	details, ok := first.Details.(core.PubmedDetails)
	if !ok {
		t.Fatalf("Expected PubmedDetails, got %T", first.Details)
	}
	if details.PMID != "40000001" || details.DOI != "10.1038/s41592-025-01000-1" {
		t.Errorf("Unexpected details %+v", details)
	}
	if len(details.MeshTerms) != 2 || details.MeshTerms[0] != "CRISPR-Cas Systems" {
		t.Errorf("Unexpected MeSH terms %v", details.MeshTerms)
	}

	second := items[1]
	if second.Date != "2025-08-01" {
		t.Errorf("Year+month issue date should pad day, got %q", second.Date)
	}
	if second.DateConfidence != core.ConfidenceMedium {
		t.Errorf("Padded date should be medium confidence, got %s", second.DateConfidence)
	}
	if second.Authors != "Okafor A" {
		t.Errorf("Unexpected authors %q", second.Authors)
	}
	if second.Engagement.PublishedDOI != "" {
		t.Errorf("No DOI expected, got %q", second.Engagement.PublishedDOI)
	}
}

func TestPubmedESearchParams(t *testing.T) {
	var query url.Values
	mux := http.NewServeMux()
	mux.HandleFunc("/esearch.fcgi", func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		w.Write([]byte(`{"esearchresult":{"idlist":[]}}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	adapter := NewPubmed(fetch.New(), "test-key")
	adapter.baseURL = srv.URL
	adapter.pause = 0

	if _, err := adapter.Search(context.Background(), testQuery("gut microbiome immunity")); err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	if got := query.Get("term"); got != `("gut microbiome immunity"[TIAB] OR (gut[TIAB] AND microbiome[TIAB] AND immunity[TIAB]))` {
		t.Errorf("Unexpected term %q", got)
	}
	if query.Get("reldate") != "30" {
		t.Errorf("Expected reldate=30 for the window, got %q", query.Get("reldate"))
	}
	if query.Get("datetype") != "pdat" || query.Get("retmode") != "json" {
		t.Errorf("Unexpected params: %v", query)
	}
	if query.Get("retmax") != "30" {
		t.Errorf("Expected quick depth retmax=30, got %q", query.Get("retmax"))
	}
	if query.Get("api_key") != "test-key" {
		t.Errorf("Expected api_key forwarded, got %q", query.Get("api_key"))
	}
}

func TestPubmedAPIKeySetsShorterPause(t *testing.T) {
	if p := NewPubmed(fetch.New(), ""); p.pause != pubmedPauseNoKey {
		t.Errorf("Expected %v without key, got %v", pubmedPauseNoKey, p.pause)
	}
	if p := NewPubmed(fetch.New(), "k"); p.pause != pubmedPauseWithKey {
		t.Errorf("Expected %v with key, got %v", pubmedPauseWithKey, p.pause)
	}
}

func TestPubmedEmptyResultSkipsEFetch(t *testing.T) {
	efetchHits := 0
	srv := newPubmedTestServer(t, `[]`, &efetchHits, nil)
	defer srv.Close()

	adapter := NewPubmed(fetch.New(), "")
	adapter.baseURL = srv.URL
	adapter.pause = 0

	items, err := adapter.Search(context.Background(), testQuery("obscure topic"))
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("Expected no items, got %d", len(items))
	}
	if efetchHits != 0 {
		t.Errorf("EFetch should be skipped for an empty ID list, got %d calls", efetchHits)
	}
}

func TestPubmedEFetchFailureReturnsError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/esearch.fcgi", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"esearchresult":{"idlist":["40000001"]}}`))
	})
	mux.HandleFunc("/efetch.fcgi", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	adapter := NewPubmed(fetch.New(), "")
	adapter.baseURL = srv.URL
	adapter.pause = 0

	items, err := adapter.Search(context.Background(), testQuery("crispr"))
	if err == nil {
		t.Fatal("Expected error from failed efetch")
	}
	if len(items) != 0 {
		t.Errorf("Expected no items, got %d", len(items))
	}
}

func TestBuildPubmedQuery(t *testing.T) {
	tests := []struct {
		topic string
		want  string
	}{
		{"superconductivity", "superconductivity[TIAB]"},
		{"machine learning", "machine learning[TIAB]"},
		{"Machine Learning", "Machine Learning[TIAB]"},
		{"gut microbiome immunity", `("gut microbiome immunity"[TIAB] OR (gut[TIAB] AND microbiome[TIAB] AND immunity[TIAB]))`},
	}
	for _, tt := range tests {
		if got := buildPubmedQuery(tt.topic); got != tt.want {
			t.Errorf("buildPubmedQuery(%q) = %q, want %q", tt.topic, got, tt.want)
		}
	}
}

func TestWindowDays(t *testing.T) {
	tests := []struct {
		from, to string
		want     int
	}{
		{"2025-07-26", "2025-08-25", 30},
		{"2025-08-24", "2025-08-25", 1},
		{"2025-08-25", "2025-08-25", 30}, // zero-length window falls back
		{"not-a-date", "2025-08-25", 30},
		{"2025-08-25", "2025-07-26", 30}, // inverted window falls back
	}
	for _, tt := range tests {
		if got := windowDays(tt.from, tt.to); got != tt.want {
			t.Errorf("windowDays(%q, %q) = %d, want %d", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestMonthNumber(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", "01"},
		{"8", "08"},
		{"08", "08"},
		{"12", "12"},
		{"Aug", "08"},
		{"August", "08"},
		{"sep", "09"},
		{"Bogus", "01"},
	}
	for _, tt := range tests {
		if got := monthNumber(tt.in); got != tt.want {
			t.Errorf("monthNumber(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
