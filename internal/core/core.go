// Package core defines the canonical record types shared by every stage of
// the aggregation pipeline: the tagged-variant Item, its per-source payloads,
// and the ResultSet handed to renderers.
package core

import (
	"encoding/json"
	"fmt"
)

// Source identifies an upstream scholarly API.
type Source string

const (
	SourceArxiv           Source = "arxiv"
	SourceBiorxiv         Source = "biorxiv"
	SourceMedrxiv         Source = "medrxiv"
	SourcePubmed          Source = "pubmed"
	SourceHuggingFace     Source = "huggingface"
	SourceOpenAlex        Source = "openalex"
	SourceSemanticScholar Source = "semanticscholar"
)

// Depth selects the per-source cap on collected items.
type Depth string

const (
	DepthQuick   Depth = "quick"
	DepthDefault Depth = "default"
	DepthDeep    Depth = "deep"
)

// Confidence grades how complete the upstream publication date was.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"   // full YYYY-MM-DD inside the requested range
	ConfidenceMedium Confidence = "medium" // year or year-month only, day/month padded
	ConfidenceLow    Confidence = "low"    // no usable date at all
)

// HuggingFace item kinds.
const (
	HFModel   = "model"
	HFDataset = "dataset"
	HFPaper   = "paper"
)

// Query describes a single aggregation run.
type Query struct {
	Topic   string   `json:"topic"`
	From    string   `json:"from"`    // inclusive lower bound, YYYY-MM-DD
	To      string   `json:"to"`      // inclusive upper bound, YYYY-MM-DD
	Depth   Depth    `json:"depth"`   // governs per-source caps
	Sources []Source `json:"sources"` // active sources, canonical order
}

// Engagement carries optional academic-weight signals attached to an item.
// Numeric fields are pointers: a nil count means "unknown", which is scored
// differently from an explicit zero.
type Engagement struct {
	PublishedDOI     string `json:"published_doi,omitempty"`     // peer-reviewed version of a preprint
	PublishedJournal string `json:"published_journal,omitempty"` // journal of the peer-reviewed version
	Venue            string `json:"venue,omitempty"`             // publication venue name
	CitationCount    *int   `json:"citation_count,omitempty"`
	Downloads        *int   `json:"downloads,omitempty"`
	Likes            *int   `json:"likes,omitempty"`
	AuthorCount      *int   `json:"author_count,omitempty"`
}

// SubScores holds the three component scores, each 0-100.
type SubScores struct {
	Relevance  int `json:"relevance"`
	Recency    int `json:"recency"`
	Engagement int `json:"engagement"`
}

// Details is the source-specific payload of an Item. The concrete type is
// selected by Item.Source when decoding. DOIs returns every DOI the payload
// carries; the deduplicator treats each as a collision key.
type Details interface {
	DOIs() []string
}

// ArxivDetails is the payload for arXiv entries.
type ArxivDetails struct {
	ArxivID         string   `json:"arxiv_id"`
	Categories      []string `json:"categories"`
	PrimaryCategory string   `json:"primary_category"`
}

func (ArxivDetails) DOIs() []string { return nil }

// BiorxivDetails is the payload for bioRxiv and medRxiv preprints. The
// owning Item's Source field distinguishes the two servers.
type BiorxivDetails struct {
	PreprintDOI string `json:"preprint_doi"`
	Category    string `json:"category"`
}

func (d BiorxivDetails) DOIs() []string {
	if d.PreprintDOI == "" {
		return nil
	}
	return []string{d.PreprintDOI}
}

// PubmedDetails is the payload for PubMed citations.
type PubmedDetails struct {
	PMID      string   `json:"pmid"`
	Journal   string   `json:"journal"`
	DOI       string   `json:"doi,omitempty"`
	MeshTerms []string `json:"mesh_terms"`
}

func (d PubmedDetails) DOIs() []string {
	if d.DOI == "" {
		return nil
	}
	return []string{d.DOI}
}

// HuggingFaceDetails is the payload for Hugging Face models, datasets and
// daily papers.
type HuggingFaceDetails struct {
	HFID     string   `json:"hf_id"`
	ItemType string   `json:"item_type"` // model, dataset or paper
	Tags     []string `json:"tags"`
}

func (HuggingFaceDetails) DOIs() []string { return nil }

// OpenAlexDetails is the payload for OpenAlex works.
type OpenAlexDetails struct {
	OpenAlexID        string  `json:"openalex_id"`
	DOI               string  `json:"doi,omitempty"`
	SourceName        string  `json:"source_name"` // hosting venue, e.g. journal title
	WorkType          string  `json:"work_type"`
	PrimaryTopicName  string  `json:"primary_topic_name,omitempty"`
	PrimaryTopicScore float64 `json:"primary_topic_score,omitempty"`
}

func (d OpenAlexDetails) DOIs() []string {
	if d.DOI == "" {
		return nil
	}
	return []string{d.DOI}
}

// SemanticScholarDetails is the payload for Semantic Scholar papers.
type SemanticScholarDetails struct {
	PaperID          string   `json:"paper_id"`
	DOI              string   `json:"doi,omitempty"`
	Venue            string   `json:"venue"`
	PublicationTypes []string `json:"publication_types"`
}

func (d SemanticScholarDetails) DOIs() []string {
	if d.DOI == "" {
		return nil
	}
	return []string{d.DOI}
}

// Item is one scholarly record in canonical form: a common header plus a
// source-specific payload. Items are created by adapters, enriched by the
// pipeline, and never mutated after deduplication.
type Item struct {
	ID             string      `json:"id"`     // globally unique "<source>:<native_id>"
	Source         Source      `json:"source"` // doubles as the payload discriminator
	Title          string      `json:"title"`
	Authors        string      `json:"authors,omitempty"`  // display string, joined upstream-style
	Abstract       string      `json:"abstract,omitempty"` // may be empty; renderers truncate
	URL            string      `json:"url"`
	Date           string      `json:"date,omitempty"` // YYYY-MM-DD, empty when unknown
	DateConfidence Confidence  `json:"date_confidence"`
	Relevance      float64     `json:"relevance"` // 0-1, rounded to 3 decimals
	WhyRelevant    string      `json:"why_relevant"`
	Subs           SubScores   `json:"subs"`
	Score          int         `json:"score"` // composite, 0-100
	Engagement     *Engagement `json:"engagement,omitempty"`
	Details        Details     `json:"-"` // serialized under "details", see MarshalJSON
}

// ItemID builds the canonical unique identifier for a record.
func ItemID(src Source, nativeID string) string {
	return fmt.Sprintf("%s:%s", src, nativeID)
}

// MarshalJSON emits the flat header with the payload nested under "details".
func (it Item) MarshalJSON() ([]byte, error) {
	type alias Item
	aux := struct {
		alias
		Details json.RawMessage `json:"details,omitempty"`
	}{alias: alias(it)}
	if it.Details != nil {
		raw, err := json.Marshal(it.Details)
		if err != nil {
			return nil, err
		}
		aux.Details = raw
	}
	return json.Marshal(aux)
}

// UnmarshalJSON decodes the header, then selects the payload type from the
// source tag.
func (it *Item) UnmarshalJSON(data []byte) error {
	type alias Item
	aux := struct {
		*alias
		Details json.RawMessage `json:"details"`
	}{alias: (*alias)(it)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if len(aux.Details) == 0 || string(aux.Details) == "null" {
		it.Details = nil
		return nil
	}
	details, err := decodeDetails(it.Source, aux.Details)
	if err != nil {
		return err
	}
	it.Details = details
	return nil
}

func decodeDetails(src Source, raw json.RawMessage) (Details, error) {
	switch src {
	case SourceArxiv:
		var d ArxivDetails
		return d, json.Unmarshal(raw, &d)
	case SourceBiorxiv, SourceMedrxiv:
		var d BiorxivDetails
		return d, json.Unmarshal(raw, &d)
	case SourcePubmed:
		var d PubmedDetails
		return d, json.Unmarshal(raw, &d)
	case SourceHuggingFace:
		var d HuggingFaceDetails
		return d, json.Unmarshal(raw, &d)
	case SourceOpenAlex:
		var d OpenAlexDetails
		return d, json.Unmarshal(raw, &d)
	case SourceSemanticScholar:
		var d SemanticScholarDetails
		return d, json.Unmarshal(raw, &d)
	default:
		return nil, fmt.Errorf("unknown item source %q", src)
	}
}

// ResultSet is the final output of one run: per-source ranked items plus
// whatever errors individual sources produced along the way.
type ResultSet struct {
	Topic         string            `json:"topic"`
	RangeFrom     string            `json:"range_from"`
	RangeTo       string            `json:"range_to"`
	GeneratedAt   string            `json:"generated_at"` // UTC, RFC 3339
	Mode          string            `json:"mode"`         // sources selector the run was asked for, e.g. "all"
	Items         map[Source][]Item `json:"per_source_items"`
	Errors        map[Source]string `json:"per_source_error,omitempty"`
	FromCache     bool              `json:"from_cache"`
	CacheAgeHours float64           `json:"cache_age_hours,omitempty"`
}

// TotalItems counts records across all sources.
func (rs *ResultSet) TotalItems() int {
	n := 0
	for _, items := range rs.Items {
		n += len(items)
	}
	return n
}

// Flatten returns all items in a single slice. Order across sources is
// unspecified; callers re-sort with scoring.SortItems.
func (rs *ResultSet) Flatten() []Item {
	out := make([]Item, 0, rs.TotalItems())
	for _, items := range rs.Items {
		out = append(out, items...)
	}
	return out
}
