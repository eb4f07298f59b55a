package sources

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"litscout/internal/core"
	"litscout/internal/dates"
	"litscout/internal/fetch"
	"litscout/internal/logger"
	"litscout/internal/relevance"
)

// OpenAlex works API: full-text search with its own relevance ranking, so
// results arrive pre-sorted and the adapter only pages until the depth cap.
const openalexAPIURL = "https://api.openalex.org"

const (
	openalexMaxPages = 5
	openalexPageSize = 100

	// defaultContact joins the polite pool when no contact is configured.
	defaultContact = "litscout@users.noreply.github.com"
)

var openalexCaps = depthCaps{quick: 30, def: 100, deep: 200}

// OpenAlex queries the OpenAlex works API, optionally narrowed by
// pre-discovered topic IDs.
type OpenAlex struct {
	client   *fetch.Client
	baseURL  string
	contact  string
	topicIDs []string
}

// NewOpenAlex creates the OpenAlex adapter. contact may be empty; topicIDs
// come from DiscoverTopics and may be nil.
func NewOpenAlex(client *fetch.Client, contact string, topicIDs []string) *OpenAlex {
	if contact == "" {
		contact = defaultContact
	}
	return &OpenAlex{client: client, baseURL: openalexAPIURL, contact: contact, topicIDs: topicIDs}
}

// Name implements Adapter.
func (o *OpenAlex) Name() core.Source { return core.SourceOpenAlex }

// DiscoverTopics finds up to 3 OpenAlex topic IDs matching the query, used
// to narrow the works search. Never fatal: any failure returns nil.
func DiscoverTopics(ctx context.Context, client *fetch.Client, topic, contact string) []string {
	return discoverTopics(ctx, client, openalexAPIURL, topic, contact)
}

func discoverTopics(ctx context.Context, client *fetch.Client, baseURL, topic, contact string) []string {
	if contact == "" {
		contact = defaultContact
	}
	params := url.Values{}
	params.Set("search", topic)
	params.Set("per_page", "3")
	params.Set("mailto", contact)

	var resp struct {
		Results []openalexTopic `json:"results"`
	}
	err := client.GetJSON(ctx, baseURL+"/topics?"+params.Encode(), &resp, &fetch.Request{Timeout: 15 * time.Second})
	if err != nil {
		logger.Debug("OpenAlex topic discovery failed", "topic", topic, "error", err.Error())
		return nil
	}

	var ids []string
	for _, t := range resp.Results {
		// "https://openalex.org/T11048" -> "T11048"
		if tid := strings.TrimPrefix(t.ID, "https://openalex.org/"); tid != "" {
			ids = append(ids, tid)
		}
	}
	logger.Debug("OpenAlex topics discovered", "topic", topic, "ids", ids)
	return ids
}

type openalexWorksResponse struct {
	Meta    openalexMeta   `json:"meta"`
	Results []openalexWork `json:"results"`
}

type openalexMeta struct {
	Count int `json:"count"`
}

type openalexWork struct {
	ID                    string               `json:"id"`
	DOI                   string               `json:"doi"` // full URL form
	Title                 string               `json:"title"`
	PublicationDate       string               `json:"publication_date"`
	Type                  string               `json:"type"`
	CitedByCount          int                  `json:"cited_by_count"`
	Authorships           []openalexAuthorship `json:"authorships"`
	PrimaryLocation       *openalexLocation    `json:"primary_location"`
	OpenAccess            openalexOpenAccess   `json:"open_access"`
	AbstractInvertedIndex map[string][]int     `json:"abstract_inverted_index"`
	PrimaryTopic          *openalexTopic       `json:"primary_topic"`
}

type openalexAuthorship struct {
	Author openalexAuthor `json:"author"`
}

type openalexAuthor struct {
	DisplayName string `json:"display_name"`
}

type openalexLocation struct {
	Source *openalexVenue `json:"source"`
}

type openalexVenue struct {
	DisplayName string `json:"display_name"`
	Type        string `json:"type"`
}

type openalexOpenAccess struct {
	OAURL string `json:"oa_url"`
}

type openalexTopic struct {
	ID          string  `json:"id"`
	DisplayName string  `json:"display_name"`
	Score       float64 `json:"score"`
}

// Search implements Adapter. A first-page failure fails the source; a later
// page failure keeps the earlier pages and reports the error.
func (o *OpenAlex) Search(ctx context.Context, q core.Query) ([]core.Item, error) {
	maxResults := openalexCaps.limit(q.Depth)

	var items []core.Item
	for page := 1; page <= openalexMaxPages; page++ {
		var resp openalexWorksResponse
		if err := o.client.GetJSON(ctx, o.pageURL(q, page), &resp, nil); err != nil {
			if page == 1 {
				return nil, err
			}
			return trim(items, maxResults), err
		}
		if len(resp.Results) == 0 {
			break
		}

		// The rank boost uses the position across all pages, not within
		// the page.
		pageStart := (page - 1) * openalexPageSize
		for idx, work := range resp.Results {
			if it, ok := o.workItem(work, q, pageStart+idx, maxResults); ok {
				items = append(items, it)
			}
		}

		if len(items) >= maxResults || page*openalexPageSize >= resp.Meta.Count {
			break
		}
		logger.Debug("OpenAlex page done", "page", page, "collected", len(items), "available", resp.Meta.Count)
	}
	return trim(items, maxResults), nil
}

func (o *OpenAlex) pageURL(q core.Query, page int) string {
	filter := fmt.Sprintf("from_publication_date:%s,to_publication_date:%s", q.From, q.To)
	if len(o.topicIDs) > 0 {
		// Full-URL form joined by | (OR in OpenAlex filters).
		formatted := make([]string, len(o.topicIDs))
		for i, tid := range o.topicIDs {
			if strings.HasPrefix(tid, "https://") {
				formatted[i] = tid
			} else {
				formatted[i] = "https://openalex.org/" + tid
			}
		}
		filter += ",topics.id:" + strings.Join(formatted, "|")
	}

	params := url.Values{}
	params.Set("search", q.Topic)
	params.Set("filter", filter)
	params.Set("sort", "relevance_score:desc")
	params.Set("per_page", strconv.Itoa(openalexPageSize))
	params.Set("page", strconv.Itoa(page))
	params.Set("mailto", o.contact)
	return o.baseURL + "/works?" + params.Encode()
}

func (o *OpenAlex) workItem(work openalexWork, q core.Query, globalRank, maxResults int) (core.Item, bool) {
	abstract := reconstructAbstract(work.AbstractInvertedIndex)
	rel, why := relevance.Score(q.Topic, work.Title, abstract)
	if rel <= relevanceCutoff {
		return core.Item{}, false
	}
	boosted := rankBoost(rel, globalRank, maxResults)

	openalexID := strings.TrimPrefix(work.ID, "https://openalex.org/")
	doi := cleanDOI(work.DOI)

	var names []string
	for _, a := range work.Authorships {
		if a.Author.DisplayName != "" {
			names = append(names, a.Author.DisplayName)
		}
	}

	sourceName := ""
	if work.PrimaryLocation != nil && work.PrimaryLocation.Source != nil {
		sourceName = work.PrimaryLocation.Source.DisplayName
	}

	eng := &core.Engagement{
		PublishedDOI:     doi,
		PublishedJournal: sourceName,
		CitationCount:    intp(work.CitedByCount),
	}
	if len(names) > 0 {
		eng.AuthorCount = intp(len(names))
	}

	itemURL := work.ID
	if work.DOI != "" {
		itemURL = work.DOI
		if !strings.HasPrefix(itemURL, "http") {
			itemURL = "https://doi.org/" + itemURL
		}
	} else if work.OpenAccess.OAURL != "" {
		itemURL = work.OpenAccess.OAURL
	}

	topicName, topicScore := "", 0.0
	if work.PrimaryTopic != nil {
		topicName = work.PrimaryTopic.DisplayName
		topicScore = work.PrimaryTopic.Score
	}

	return core.Item{
		ID:             core.ItemID(core.SourceOpenAlex, openalexID),
		Source:         core.SourceOpenAlex,
		Title:          work.Title,
		Authors:        strings.Join(names, ", "),
		Abstract:       abstract,
		URL:            itemURL,
		Date:           work.PublicationDate,
		DateConfidence: dates.Confidence(work.PublicationDate, q.From, q.To),
		Relevance:      boosted,
		WhyRelevant:    why,
		Engagement:     eng,
		Details: core.OpenAlexDetails{
			OpenAlexID:        openalexID,
			DOI:               doi,
			SourceName:        sourceName,
			WorkType:          work.Type,
			PrimaryTopicName:  topicName,
			PrimaryTopicScore: topicScore,
		},
	}, true
}

// reconstructAbstract rebuilds prose from OpenAlex's inverted index
// {word: [positions]} by ordering every (position, word) pair.
func reconstructAbstract(index map[string][]int) string {
	if len(index) == 0 {
		return ""
	}
	type posWord struct {
		pos  int
		word string
	}
	var pairs []posWord
	for word, positions := range index {
		for _, pos := range positions {
			pairs = append(pairs, posWord{pos, word})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].pos != pairs[j].pos {
			return pairs[i].pos < pairs[j].pos
		}
		return pairs[i].word < pairs[j].word
	})
	words := make([]string, len(pairs))
	for i, p := range pairs {
		words[i] = p.word
	}
	return strings.Join(words, " ")
}

// cleanDOI strips the resolver prefix OpenAlex wraps around DOIs.
func cleanDOI(doiURL string) string {
	for _, prefix := range []string{"https://doi.org/", "http://doi.org/"} {
		if strings.HasPrefix(doiURL, prefix) {
			return doiURL[len(prefix):]
		}
	}
	return doiURL
}
