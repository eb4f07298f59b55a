package sources

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"litscout/internal/core"
	"litscout/internal/dates"
	"litscout/internal/fetch"
	"litscout/internal/logger"
	"litscout/internal/relevance"
)

// PubMed E-utilities: ESearch resolves the query to PMIDs, EFetch hydrates
// them in batches of 200. An NCBI API key raises the rate limit from 3 to 10
// requests per second.
const pubmedAPIURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

const (
	efetchBatchSize = 200

	pubmedPauseNoKey   = 340 * time.Millisecond
	pubmedPauseWithKey = 100 * time.Millisecond
)

var pubmedCaps = depthCaps{quick: 30, def: 100, deep: 200}

// Topics that read as a unit; splitting them into AND terms would only
// loosen the query.
var pubmedKnownPhrases = map[string]bool{
	"machine learning": true,
	"deep learning":    true,
	"gene editing":     true,
	"gene therapy":     true,
	"sickle cell":      true,
	"stem cell":        true,
	"clinical trial":   true,
	"single cell":      true,
	"genome wide":      true,
	"public health":    true,
	"mental health":    true,
}

// Pubmed queries PubMed via the NCBI E-utilities.
type Pubmed struct {
	client  *fetch.Client
	baseURL string
	apiKey  string
	pause   time.Duration
}

// NewPubmed creates the PubMed adapter. apiKey may be empty.
func NewPubmed(client *fetch.Client, apiKey string) *Pubmed {
	pause := pubmedPauseNoKey
	if apiKey != "" {
		pause = pubmedPauseWithKey
	}
	return &Pubmed{client: client, baseURL: pubmedAPIURL, apiKey: apiKey, pause: pause}
}

// Name implements Adapter.
func (p *Pubmed) Name() core.Source { return core.SourcePubmed }

// Search implements Adapter. An ESearch failure fails the whole source; an
// EFetch batch failure keeps the articles hydrated so far and reports the
// error. PubMed results carry no local relevance cutoff because the
// TIAB-tagged query already restricts matches.
func (p *Pubmed) Search(ctx context.Context, q core.Query) ([]core.Item, error) {
	maxResults := pubmedCaps.limit(q.Depth)

	pmids, translation, err := p.esearch(ctx, q, maxResults)
	if err != nil {
		return nil, err
	}
	if len(pmids) == 0 {
		return nil, nil
	}
	if translation != "" {
		logger.Debug("PubMed query translation", "translation", translation)
	}

	var (
		items    []core.Item
		fetchErr error
	)
	for i := 0; i < len(pmids); i += efetchBatchSize {
		if err := sleepCtx(ctx, p.pause); err != nil {
			fetchErr = err
			break
		}
		batch, err := p.efetch(ctx, pmids[i:min(i+efetchBatchSize, len(pmids))], q)
		if err != nil {
			fetchErr = err
			break
		}
		items = append(items, batch...)
	}
	return items, fetchErr
}

type esearchResponse struct {
	Result esearchResult `json:"esearchresult"`
}

type esearchResult struct {
	IDList           []string `json:"idlist"`
	QueryTranslation string   `json:"querytranslation"`
}

func (p *Pubmed) esearch(ctx context.Context, q core.Query, maxResults int) ([]string, string, error) {
	searchURL := fmt.Sprintf(
		"%s/esearch.fcgi?db=pubmed&term=%s&reldate=%d&datetype=pdat&retmax=%d&retmode=json",
		p.baseURL, url.QueryEscape(buildPubmedQuery(q.Topic)), windowDays(q.From, q.To), maxResults,
	)
	if p.apiKey != "" {
		searchURL += "&api_key=" + url.QueryEscape(p.apiKey)
	}
	var resp esearchResponse
	if err := p.client.GetJSON(ctx, searchURL, &resp, nil); err != nil {
		return nil, "", err
	}
	return resp.Result.IDList, resp.Result.QueryTranslation, nil
}

func (p *Pubmed) efetch(ctx context.Context, pmids []string, q core.Query) ([]core.Item, error) {
	fetchURL := fmt.Sprintf(
		"%s/efetch.fcgi?db=pubmed&id=%s&rettype=abstract&retmode=xml",
		p.baseURL, strings.Join(pmids, ","),
	)
	if p.apiKey != "" {
		fetchURL += "&api_key=" + url.QueryEscape(p.apiKey)
	}

	xmlText, err := p.client.GetText(ctx, fetchURL, &fetch.Request{Timeout: fetch.SlowTimeout})
	if err != nil {
		return nil, err
	}

	var set pubmedArticleSet
	if err := xml.Unmarshal([]byte(xmlText), &set); err != nil {
		return nil, fmt.Errorf("failed to parse PubMed articles: %w", err)
	}

	items := make([]core.Item, 0, len(set.Articles))
	for _, art := range set.Articles {
		if strings.TrimSpace(art.Medline.PMID) == "" {
			continue
		}
		items = append(items, pubmedItem(art, q))
	}
	return items, nil
}

// buildPubmedQuery builds a TIAB-tagged term. Field tags sidestep PubMed's
// automatic term mapping, which can misfire badly (the topic "gut" matching
// the journal Gut). Multi-word topics combine the exact phrase with an AND
// of the individual words.
func buildPubmedQuery(topic string) string {
	words := strings.Fields(topic)
	if len(words) <= 1 || pubmedKnownPhrases[strings.ToLower(topic)] {
		return topic + "[TIAB]"
	}
	parts := make([]string, len(words))
	for i, w := range words {
		parts[i] = w + "[TIAB]"
	}
	return fmt.Sprintf(`("%s"[TIAB] OR (%s))`, topic, strings.Join(parts, " AND "))
}

// windowDays converts the query range into PubMed's reldate parameter.
func windowDays(from, to string) int {
	f, errFrom := time.Parse("2006-01-02", from)
	t, errTo := time.Parse("2006-01-02", to)
	if errFrom != nil || errTo != nil {
		return 30
	}
	days := int(t.Sub(f).Hours() / 24)
	if days <= 0 {
		return 30
	}
	return days
}

type pubmedArticleSet struct {
	Articles []pubmedArticle `xml:"PubmedArticle"`
}

type pubmedArticle struct {
	Medline pubmedMedline `xml:"MedlineCitation"`
	Data    pubmedData    `xml:"PubmedData"`
}

type pubmedMedline struct {
	PMID      string            `xml:"PMID"`
	Article   pubmedArticleInfo `xml:"Article"`
	MeshTerms []string          `xml:"MeshHeadingList>MeshHeading>DescriptorName"`
}

type pubmedArticleInfo struct {
	Title        innerText      `xml:"ArticleTitle"`
	Journal      string         `xml:"Journal>Title"`
	JournalDate  pubmedDate     `xml:"Journal>JournalIssue>PubDate"`
	Abstract     []abstractText `xml:"Abstract>AbstractText"`
	Authors      []pubmedAuthor `xml:"AuthorList>Author"`
	ArticleDates []pubmedDate   `xml:"ArticleDate"`
}

type pubmedAuthor struct {
	LastName string `xml:"LastName"`
	ForeName string `xml:"ForeName"`
}

type pubmedDate struct {
	Year  string `xml:"Year"`
	Month string `xml:"Month"`
	Day   string `xml:"Day"`
}

type pubmedData struct {
	ArticleIDs []pubmedArticleID `xml:"ArticleIdList>ArticleId"`
}

type pubmedArticleID struct {
	IDType string `xml:"IdType,attr"`
	Value  string `xml:",chardata"`
}

// innerText collects all character data inside an element, flattening the
// inline markup (<i>, <sub>, ...) PubMed embeds in titles and abstracts.
type innerText string

func (t *innerText) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var sb strings.Builder
	depth := 1
	for depth > 0 {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch data := tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		case xml.CharData:
			sb.Write(data)
		}
	}
	*t = innerText(strings.TrimSpace(sb.String()))
	return nil
}

// abstractText is one AbstractText section with its optional Label
// attribute ("BACKGROUND", "METHODS", ...).
type abstractText struct {
	Label string
	Text  string
}

func (a *abstractText) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	for _, attr := range start.Attr {
		if attr.Name.Local == "Label" {
			a.Label = attr.Value
		}
	}
	var t innerText
	if err := t.UnmarshalXML(d, start); err != nil {
		return err
	}
	a.Text = string(t)
	return nil
}

func pubmedItem(art pubmedArticle, q core.Query) core.Item {
	info := art.Medline.Article
	pmid := strings.TrimSpace(art.Medline.PMID)

	var names []string
	for _, au := range info.Authors {
		if au.LastName == "" {
			continue
		}
		name := au.LastName
		if au.ForeName != "" {
			name = au.LastName + " " + string([]rune(au.ForeName)[0])
		}
		names = append(names, name)
	}

	var parts []string
	for _, ab := range info.Abstract {
		switch {
		case ab.Label != "" && ab.Text != "":
			parts = append(parts, ab.Label+": "+ab.Text)
		case ab.Text != "":
			parts = append(parts, ab.Text)
		}
	}
	abstract := strings.Join(parts, " ")

	doi := ""
	for _, id := range art.Data.ArticleIDs {
		if id.IDType == "doi" && strings.TrimSpace(id.Value) != "" {
			doi = strings.TrimSpace(id.Value)
			break
		}
	}

	date, padded := pubmedPubDate(info)
	conf := dates.Confidence(date, q.From, q.To)
	if padded && conf == core.ConfidenceHigh {
		conf = core.ConfidenceMedium
	}

	title := string(info.Title)
	journal := strings.TrimSpace(info.Journal)
	rel, why := relevance.Score(q.Topic, title, abstract)

	return core.Item{
		ID:             core.ItemID(core.SourcePubmed, pmid),
		Source:         core.SourcePubmed,
		Title:          title,
		Authors:        strings.Join(names, ", "),
		Abstract:       abstract,
		URL:            "https://pubmed.ncbi.nlm.nih.gov/" + pmid + "/",
		Date:           date,
		DateConfidence: conf,
		Relevance:      rel,
		WhyRelevant:    why,
		Engagement: &core.Engagement{
			PublishedDOI:     doi,
			PublishedJournal: journal,
			AuthorCount:      intp(len(names)),
		},
		Details: core.PubmedDetails{
			PMID:      pmid,
			Journal:   journal,
			DOI:       doi,
			MeshTerms: art.Medline.MeshTerms,
		},
	}
}

// pubmedPubDate resolves the publication date, preferring the electronic
// ArticleDate over the print issue date. Missing month or day components are
// padded with 01; the padded flag downgrades date confidence.
func pubmedPubDate(info pubmedArticleInfo) (string, bool) {
	for _, d := range info.ArticleDates {
		if d.Year != "" {
			return assemblePubmedDate(d)
		}
	}
	if info.JournalDate.Year != "" {
		return assemblePubmedDate(info.JournalDate)
	}
	return "", false
}

func assemblePubmedDate(d pubmedDate) (string, bool) {
	padded := d.Month == "" || d.Day == ""
	month := monthNumber(d.Month)
	day := d.Day
	switch len(day) {
	case 0:
		day = "01"
	case 1:
		day = "0" + day
	}
	return d.Year + "-" + month + "-" + day, padded
}

var monthNames = map[string]string{
	"jan": "01", "feb": "02", "mar": "03", "apr": "04",
	"may": "05", "jun": "06", "jul": "07", "aug": "08",
	"sep": "09", "oct": "10", "nov": "11", "dec": "12",
}

// monthNumber maps a PubMed month (numeric or English name) to a
// zero-padded number, defaulting to January.
func monthNumber(s string) string {
	if s == "" {
		return "01"
	}
	if n, err := strconv.Atoi(s); err == nil {
		return fmt.Sprintf("%02d", n)
	}
	key := strings.ToLower(s)
	if len(key) > 3 {
		key = key[:3]
	}
	if m, ok := monthNames[key]; ok {
		return m
	}
	return "01"
}
