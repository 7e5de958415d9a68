package stubserver

import (
	"fmt"
	"hash/fnv"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/seokit/internal/googledomains"
	"github.com/hitoshi/seokit/internal/middleware"
	"github.com/hitoshi/seokit/internal/model"
	"github.com/hitoshi/seokit/internal/validation"
)

// score は入力から0〜99の決定的な値を返す。
func score(parts ...string) int {
	h := fnv.New32a()
	h.Write([]byte(strings.Join(parts, "\x00")))
	return int(h.Sum32() % 100)
}

// --- keyword tracker ---

type trackRequest struct {
	Domain   string   `json:"domain"`
	Keywords []string `json:"keywords"`
	Location string   `json:"location"`
}

type rankResult struct {
	Keyword   string    `json:"keyword"`
	Rank      int       `json:"rank"`
	URL       string    `json:"url,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type trackResponse struct {
	Domain   string       `json:"domain"`
	Location string       `json:"location"`
	Results  []rankResult `json:"results"`
}

// rankFor は順位を算出する。5件に1件程度は圏外(0)になる。
func rankFor(domain, keyword, location string) int {
	v := score(domain, keyword, location)
	if v%5 == 0 {
		return 0
	}
	return v + 1
}

func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())

	var req trackRequest
	if !decodeBody(w, r, &req) {
		return
	}
	domain, err := validation.ValidateDomain(req.Domain)
	if err != nil {
		writeValidation(w, err)
		return
	}
	keywords, err := validation.ValidateKeywords(req.Keywords)
	if err != nil {
		writeValidation(w, err)
		return
	}
	location := req.Location
	if location == "" {
		location = googledomains.GlobalDomain
	}
	loc, ok := googledomains.Lookup(location)
	if !ok {
		writeValidation(w, model.NewValidationError("location", "Invalid search location: %s", location))
		return
	}

	now := s.now().UTC()
	resp := trackResponse{Domain: domain, Location: loc.Value, Results: make([]rankResult, 0, len(keywords))}
	records := make([]rankRecord, 0, len(keywords))
	for _, kw := range keywords {
		res := rankResult{Keyword: kw, Rank: rankFor(domain, kw, loc.Value), Timestamp: now}
		if res.Rank > 0 {
			res.URL = "https://" + domain + "/" + slug(kw)
		}
		resp.Results = append(resp.Results, res)
		records = append(records, rankRecord{
			Keyword:      kw,
			Domain:       domain,
			Position:     res.Rank,
			URL:          res.URL,
			SearchEngine: loc.Value,
			CheckedAt:    now,
		})
	}
	s.store.addHistory(userID, records)

	middleware.WriteData(w, http.StatusOK, resp)
}

func slug(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), "-")
}

type historyResponse struct {
	History []rankRecord `json:"history"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	q := r.URL.Query()

	var since time.Time
	if d := q.Get("days"); d != "" {
		days, err := strconv.Atoi(d)
		if err != nil || days <= 0 {
			middleware.WriteError(w, http.StatusBadRequest, "days must be a positive integer")
			return
		}
		since = s.now().AddDate(0, 0, -days)
	}

	records := s.store.historyFor(userID, q.Get("domain"), q.Get("keyword"), since)
	middleware.WriteData(w, http.StatusOK, historyResponse{History: records})
}

type keywordStats struct {
	TotalKeywords int     `json:"totalKeywords"`
	AverageRank   float64 `json:"averageRank"`
	Top3          int     `json:"top3"`
	Top10         int     `json:"top10"`
	Improved      int     `json:"improved"`
	Declined      int     `json:"declined"`
}

func (s *Server) handleKeywordStats(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	domain, err := validation.ValidateDomain(r.URL.Query().Get("domain"))
	if err != nil {
		writeValidation(w, err)
		return
	}

	// 新しい順なので、キーワードごとの先頭が最新、2件目が前回
	latest := map[string]int{}
	previous := map[string]int{}
	for _, rec := range s.store.historyFor(userID, domain, "", time.Time{}) {
		if _, ok := latest[rec.Keyword]; !ok {
			latest[rec.Keyword] = rec.Position
			continue
		}
		if _, ok := previous[rec.Keyword]; !ok {
			previous[rec.Keyword] = rec.Position
		}
	}

	st := keywordStats{TotalKeywords: len(latest)}
	ranked, sum := 0, 0
	for kw, rank := range latest {
		if rank > 0 {
			ranked++
			sum += rank
			if rank <= 3 {
				st.Top3++
			}
			if rank <= 10 {
				st.Top10++
			}
		}
		prev, ok := previous[kw]
		if !ok {
			continue
		}
		switch {
		case rank > 0 && (prev == 0 || rank < prev):
			st.Improved++
		case prev > 0 && (rank == 0 || rank > prev):
			st.Declined++
		}
	}
	if ranked > 0 {
		st.AverageRank = float64(sum) / float64(ranked)
	}
	middleware.WriteData(w, http.StatusOK, st)
}

type trackedDomain struct {
	Domain       string    `json:"domain"`
	KeywordCount int       `json:"keywordCount"`
	LastChecked  time.Time `json:"lastChecked"`
}

func (s *Server) handleTrackedDomains(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())

	byDomain := map[string]*trackedDomain{}
	keywords := map[string]map[string]bool{}
	for _, rec := range s.store.historyFor(userID, "", "", time.Time{}) {
		d, ok := byDomain[rec.Domain]
		if !ok {
			d = &trackedDomain{Domain: rec.Domain, LastChecked: rec.CheckedAt}
			byDomain[rec.Domain] = d
			keywords[rec.Domain] = map[string]bool{}
		}
		keywords[rec.Domain][rec.Keyword] = true
		if rec.CheckedAt.After(d.LastChecked) {
			d.LastChecked = rec.CheckedAt
		}
	}

	out := make([]trackedDomain, 0, len(byDomain))
	for name, d := range byDomain {
		d.KeywordCount = len(keywords[name])
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Domain < out[j].Domain })
	middleware.WriteData(w, http.StatusOK, out)
}

type cleanupRequest struct {
	OlderThanDays int `json:"olderThanDays"`
}

type cleanupResponse struct {
	Deleted int `json:"deleted"`
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	var req cleanupRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.OlderThanDays <= 0 {
		middleware.WriteValidationError(w, map[string]string{"olderThanDays": "Must be a positive integer"})
		return
	}
	deleted := s.store.deleteHistoryBefore(userID, s.now().AddDate(0, 0, -req.OlderThanDays))
	middleware.WriteData(w, http.StatusOK, cleanupResponse{Deleted: deleted})
}

// --- meta tags ---

type metaRequest struct {
	URL string `json:"url"`
}

type tagResult struct {
	Exists          bool     `json:"exists"`
	Content         string   `json:"content,omitempty"`
	Issues          []string `json:"issues,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
}

// metaResponse はsummaryを含まない旧形式で返す。
type metaResponse struct {
	URL  string               `json:"url"`
	Tags map[string]tagResult `json:"tags"`
}

func (s *Server) handleMetaValidate(w http.ResponseWriter, r *http.Request) {
	var req metaRequest
	if !decodeBody(w, r, &req) {
		return
	}
	target, err := validation.ValidateURL(req.URL)
	if err != nil {
		writeValidation(w, err)
		return
	}
	u, err := url.Parse(target)
	if err != nil || u.Host == "" {
		writeValidation(w, model.NewValidationError("url", "Invalid URL: %s", req.URL))
		return
	}
	host := u.Hostname()
	v := score(host)

	tags := map[string]tagResult{
		"title": {
			Exists:  true,
			Content: host,
			Issues:  []string{"Title is too short (recommended 30-60 characters)"},
		},
		"viewport": {Exists: true, Content: "width=device-width, initial-scale=1"},
		"robots":   {Exists: true, Content: "index, follow"},
		"og:image": {Exists: false, Issues: []string{"Missing og:image"}, Recommendations: []string{"Add an og:image of at least 1200x630"}},
	}
	if v%2 == 0 {
		tags["description"] = tagResult{Exists: true, Content: strings.Repeat("SEO tools for "+host+". ", 10), Issues: []string{"Description is too long (recommended up to 160 characters)"}}
	} else {
		tags["description"] = tagResult{Exists: false, Issues: []string{"Missing meta description"}, Recommendations: []string{"Add a meta description of 120-160 characters"}}
	}
	if v%3 == 0 {
		tags["canonical"] = tagResult{Exists: true, Content: target}
	}

	middleware.WriteData(w, http.StatusOK, metaResponse{URL: target, Tags: tags})
}

// --- competitor ---

type competitorRequest struct {
	MainDomain        string   `json:"mainDomain"`
	CompetitorDomains []string `json:"competitorDomains"`
}

type domainMetrics struct {
	Domain           string  `json:"domain"`
	PerformanceScore float64 `json:"performanceScore"`
	SEOScore         float64 `json:"seoScore"`
	ContentScore     float64 `json:"contentScore"`
	BacklinkCount    int     `json:"backlinkCount"`
	LoadTimeMs       float64 `json:"loadTimeMs"`
}

type competitorResponse struct {
	MainDomain  domainMetrics   `json:"mainDomain"`
	Competitors []domainMetrics `json:"competitors"`
	Insights    []string        `json:"insights"`
	AnalyzedAt  time.Time       `json:"analyzedAt"`
}

func metricsFor(domain string) domainMetrics {
	return domainMetrics{
		Domain:           domain,
		PerformanceScore: float64(score(domain, "performance")),
		SEOScore:         float64(score(domain, "seo")),
		ContentScore:     float64(score(domain, "content")),
		BacklinkCount:    score(domain, "backlinks") * 37,
		LoadTimeMs:       float64(500 + score(domain, "load")*40),
	}
}

func (s *Server) handleCompetitorAnalyze(w http.ResponseWriter, r *http.Request) {
	var req competitorRequest
	if !decodeBody(w, r, &req) {
		return
	}
	main, competitors, err := validation.ValidateCompetitorRequest(req.MainDomain, req.CompetitorDomains)
	if err != nil {
		writeValidation(w, err)
		return
	}

	resp := competitorResponse{MainDomain: metricsFor(main), AnalyzedAt: s.now().UTC()}
	for _, c := range competitors {
		m := metricsFor(c)
		resp.Competitors = append(resp.Competitors, m)
		if m.SEOScore > resp.MainDomain.SEOScore {
			resp.Insights = append(resp.Insights, fmt.Sprintf("%s has a higher SEO score than %s", c, main))
		}
		if m.LoadTimeMs < resp.MainDomain.LoadTimeMs {
			resp.Insights = append(resp.Insights, fmt.Sprintf("%s loads faster than %s", c, main))
		}
	}
	if len(resp.Insights) == 0 {
		resp.Insights = []string{main + " leads all competitors on SEO score and load time"}
	}
	middleware.WriteData(w, http.StatusOK, resp)
}

// --- page speed ---

type seoRequest struct {
	URL      string `json:"url"`
	Strategy string `json:"strategy"`
}

type metric struct {
	Value        float64 `json:"value"`
	DisplayValue string  `json:"displayValue"`
	Score        float64 `json:"score"`
}

type audit struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	Score        float64 `json:"score"`
	DisplayValue string  `json:"displayValue,omitempty"`
}

type seoScores struct {
	Performance   float64 `json:"performance"`
	Accessibility float64 `json:"accessibility"`
	BestPractices float64 `json:"bestPractices"`
	SEO           float64 `json:"seo"`
}

type seoResponse struct {
	URL           string            `json:"url"`
	Strategy      string            `json:"strategy"`
	Scores        seoScores         `json:"scores"`
	Metrics       map[string]metric `json:"metrics"`
	Opportunities []audit           `json:"opportunities"`
	AnalyzedAt    time.Time         `json:"analyzedAt"`
}

func (s *Server) handleSEOAnalyze(w http.ResponseWriter, r *http.Request) {
	var req seoRequest
	if !decodeBody(w, r, &req) {
		return
	}
	target, err := validation.ValidateURL(req.URL)
	if err != nil {
		writeValidation(w, err)
		return
	}
	strategy := req.Strategy
	if strategy == "" {
		strategy = "mobile"
	}
	if strategy != "mobile" && strategy != "desktop" {
		middleware.WriteValidationError(w, map[string]string{"strategy": "Strategy must be mobile or desktop"})
		return
	}

	perf := float64(score(target, strategy, "performance"))
	lcp := 1.2 + float64(score(target, strategy, "lcp"))/25
	fcp := 0.8 + float64(score(target, strategy, "fcp"))/50
	cls := float64(score(target, strategy, "cls")) / 400

	resp := seoResponse{
		URL:      target,
		Strategy: strategy,
		Scores: seoScores{
			Performance:   perf,
			Accessibility: float64(50 + score(target, "a11y")/2),
			BestPractices: float64(50 + score(target, "bp")/2),
			SEO:           float64(60 + score(target, "seo")*2/5),
		},
		Metrics: map[string]metric{
			"largest-contentful-paint": {Value: lcp * 1000, DisplayValue: fmt.Sprintf("%.1f s", lcp), Score: clamp01(1 - (lcp-2.5)/4)},
			"first-contentful-paint":   {Value: fcp * 1000, DisplayValue: fmt.Sprintf("%.1f s", fcp), Score: clamp01(1 - (fcp-1.8)/3)},
			"cumulative-layout-shift":  {Value: cls, DisplayValue: fmt.Sprintf("%.3f", cls), Score: clamp01(1 - cls*4)},
		},
		AnalyzedAt: s.now().UTC(),
	}
	if lcp > 2.5 {
		resp.Opportunities = append(resp.Opportunities, audit{ID: "render-blocking-resources", Title: "Eliminate render-blocking resources", Score: 0.4, DisplayValue: "Potential savings of 450 ms"})
	}
	if perf < 90 {
		resp.Opportunities = append(resp.Opportunities, audit{ID: "uses-optimized-images", Title: "Efficiently encode images", Score: 0.6})
	}

	middleware.WriteData(w, http.StatusOK, resp)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
