package sources

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"litscout/internal/core"
	"litscout/internal/dates"
	"litscout/internal/fetch"
	"litscout/internal/relevance"
)

// Semantic Scholar Graph API: semantic embedding search with citation data.
// Works without a key but throttles aggressively; the x-api-key header
// lifts that.
const s2APIURL = "https://api.semanticscholar.org/graph/v1"

const (
	s2MaxPages = 3
	s2PageSize = 100 // S2 maximum
)

// s2Fields is the field list requested for every paper.
const s2Fields = "title,abstract,authors,citationCount,influentialCitationCount," +
	"journal,externalIds,openAccessPdf,publicationDate,venue,url,publicationTypes"

var s2Caps = depthCaps{quick: 30, def: 100, deep: 200}

// SemanticScholar queries the Semantic Scholar Graph API.
type SemanticScholar struct {
	client  *fetch.Client
	baseURL string
	apiKey  string
}

// NewSemanticScholar creates the Semantic Scholar adapter. apiKey may be
// empty.
func NewSemanticScholar(client *fetch.Client, apiKey string) *SemanticScholar {
	return &SemanticScholar{client: client, baseURL: s2APIURL, apiKey: apiKey}
}

// Name implements Adapter.
func (s *SemanticScholar) Name() core.Source { return core.SourceSemanticScholar }

type s2Response struct {
	Total int       `json:"total"`
	Next  *int      `json:"next"`
	Data  []s2Paper `json:"data"`
}

type s2Paper struct {
	PaperID                  string        `json:"paperId"`
	Title                    string        `json:"title"`
	Abstract                 string        `json:"abstract"`
	Venue                    string        `json:"venue"`
	URL                      string        `json:"url"`
	PublicationDate          string        `json:"publicationDate"`
	CitationCount            int           `json:"citationCount"`
	InfluentialCitationCount int           `json:"influentialCitationCount"`
	PublicationTypes         []string      `json:"publicationTypes"`
	Journal                  *s2Journal    `json:"journal"`
	ExternalIDs              s2ExternalIDs `json:"externalIds"`
	OpenAccessPdf            *s2OpenAccess `json:"openAccessPdf"`
	Authors                  []s2Author    `json:"authors"`
}

type s2Journal struct {
	Name string `json:"name"`
}

type s2ExternalIDs struct {
	DOI string `json:"DOI"`
}

type s2OpenAccess struct {
	URL string `json:"url"`
}

type s2Author struct {
	Name string `json:"name"`
}

// Search implements Adapter. Paging follows the server's next offset; a
// first-page failure fails the source, a later one keeps earlier pages and
// reports the error.
func (s *SemanticScholar) Search(ctx context.Context, q core.Query) ([]core.Item, error) {
	maxResults := s2Caps.limit(q.Depth)

	var opts *fetch.Request
	if s.apiKey != "" {
		opts = &fetch.Request{Headers: map[string]string{"x-api-key": s.apiKey}}
	}

	var items []core.Item
	offset := 0
	for page := 0; page < s2MaxPages; page++ {
		params := url.Values{}
		params.Set("query", q.Topic)
		params.Set("publicationDateOrYear", q.From+":"+q.To)
		params.Set("limit", strconv.Itoa(s2PageSize))
		params.Set("offset", strconv.Itoa(offset))
		params.Set("fields", s2Fields)

		var resp s2Response
		if err := s.client.GetJSON(ctx, s.baseURL+"/paper/search?"+params.Encode(), &resp, opts); err != nil {
			if offset == 0 {
				return nil, err
			}
			return trim(items, maxResults), err
		}
		if len(resp.Data) == 0 {
			break
		}

		for idx, paper := range resp.Data {
			if it, ok := s.paperItem(paper, q, offset+idx, maxResults); ok {
				items = append(items, it)
			}
		}

		if len(items) >= maxResults {
			break
		}
		if resp.Next == nil || offset+s2PageSize >= resp.Total {
			break
		}
		offset = *resp.Next
	}
	return trim(items, maxResults), nil
}

func (s *SemanticScholar) paperItem(paper s2Paper, q core.Query, globalRank, maxResults int) (core.Item, bool) {
	rel, why := relevance.Score(q.Topic, paper.Title, paper.Abstract)
	if rel <= s2RelevanceCutoff {
		return core.Item{}, false
	}
	boosted := rankBoost(rel, globalRank, maxResults)

	var names []string
	for _, a := range paper.Authors {
		if a.Name != "" {
			names = append(names, a.Name)
		}
	}

	venue := paper.Venue
	if venue == "" && paper.Journal != nil {
		venue = paper.Journal.Name
	}

	doi := paper.ExternalIDs.DOI

	itemURL := paper.URL
	if paper.OpenAccessPdf != nil && paper.OpenAccessPdf.URL != "" {
		itemURL = paper.OpenAccessPdf.URL
	} else if doi != "" {
		itemURL = "https://doi.org/" + doi
	}

	eng := &core.Engagement{
		PublishedDOI:     doi,
		PublishedJournal: venue,
		CitationCount:    intp(paper.CitationCount),
	}
	if len(names) > 0 {
		eng.AuthorCount = intp(len(names))
	}

	pubTypes := paper.PublicationTypes
	if pubTypes == nil {
		pubTypes = []string{}
	}

	return core.Item{
		ID:             core.ItemID(core.SourceSemanticScholar, paper.PaperID),
		Source:         core.SourceSemanticScholar,
		Title:          paper.Title,
		Authors:        strings.Join(names, ", "),
		Abstract:       paper.Abstract,
		URL:            itemURL,
		Date:           paper.PublicationDate,
		DateConfidence: dates.Confidence(paper.PublicationDate, q.From, q.To),
		Relevance:      boosted,
		WhyRelevant:    why,
		Engagement:     eng,
		Details: core.SemanticScholarDetails{
			PaperID:          paper.PaperID,
			DOI:              doi,
			Venue:            venue,
			PublicationTypes: pubTypes,
		},
	}, true
}
