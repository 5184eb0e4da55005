// Package source fetches and validates pages of the DOL quick-cert search grid.
package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	collyfetcher "github.com/JakeFAU/perm-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/perm-crawler/internal/perm"
)

// DefaultBaseURL is the grid endpoint.
const DefaultBaseURL = "https://lcr-pjr.doleta.gov/index.cfm"

const (
	defaultVisaClassID = 6
	defaultRows        = 100
)

// queryTemplate mirrors the grid's own XHR query. Values are not escaped.
const queryTemplate = "?event=ehLCJRExternal.dspQuickCertSearchGridData&startSearch=1&case_number=" +
	"&employer_business_name=&visa_class_id=%d&state_id=all&location_range=10&location_zipcode=" +
	"&job_title=&naic_code=&create_date=undefined&post_end_date=undefined&h1b_data_series=ALL" +
	"&start_date_from=%s&start_date_to=%s&end_date_from=mm/dd/yyyy&end_date_to=mm/dd/yyyy" +
	"&page=%d&rows=%d&sidx=create_date&sord=desc&_search=false"

// Getter performs a single GET.
type Getter interface {
	Get(ctx context.Context, request collyfetcher.Request) (collyfetcher.Response, error)
}

// CookieSource yields the current session cookie.
type CookieSource interface {
	Latest(ctx context.Context) (perm.Cookie, error)
}

// Config controls the grid query.
type Config struct {
	BaseURL     string
	VisaClassID int
	Rows        int
	UserAgent   string
	Location    *time.Location
}

// Fetcher retrieves one page of one posting day.
type Fetcher struct {
	cfg     Config
	getter  Getter
	cookies CookieSource
}

// New builds a Fetcher, filling unset config with the grid defaults.
func New(cfg Config, getter Getter, cookies CookieSource) (*Fetcher, error) {
	if getter == nil {
		return nil, errors.New("getter is required")
	}
	if cookies == nil {
		return nil, errors.New("cookie source is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.VisaClassID <= 0 {
		cfg.VisaClassID = defaultVisaClassID
	}
	if cfg.Rows <= 0 {
		cfg.Rows = defaultRows
	}
	if cfg.Location == nil {
		loc, err := perm.LoadLocation("")
		if err != nil {
			return nil, err
		}
		cfg.Location = loc
	}
	return &Fetcher{cfg: cfg, getter: getter, cookies: cookies}, nil
}

// URL renders the grid query for the given day and 1-based page.
func (f *Fetcher) URL(date time.Time, page int) string {
	day := date.In(f.cfg.Location).Format(perm.SourceDateLayout)
	return f.cfg.BaseURL + fmt.Sprintf(queryTemplate, f.cfg.VisaClassID, day, day, page, f.cfg.Rows)
}

// Fetch retrieves and validates one page. The cookie is read before any network call,
// so a missing cookie surfaces as perm.ErrNoCookieAvailable with no request made.
func (f *Fetcher) Fetch(ctx context.Context, date time.Time, page int) (perm.PageResult, error) {
	cookie, err := f.cookies.Latest(ctx)
	if err != nil {
		return perm.PageResult{}, err
	}

	headers := http.Header{}
	headers.Set("Cookie", cookie.Content)
	headers.Set("Accept", "application/json")
	if f.cfg.UserAgent != "" {
		headers.Set("User-Agent", f.cfg.UserAgent)
	}

	resp, err := f.getter.Get(ctx, collyfetcher.Request{URL: f.URL(date, page), Headers: headers})
	if err != nil {
		return perm.PageResult{}, fmt.Errorf("fetch page %d: %w", page, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return perm.PageResult{}, fmt.Errorf("fetch page %d: unexpected status %d", page, resp.StatusCode)
	}
	return decodePage(resp.Body)
}

type envelope struct {
	Records *json.Number   `json:"RECORDS"`
	Total   *json.Number   `json:"TOTAL"`
	Page    *json.Number   `json:"PAGE"`
	Rows    *[]perm.RawRow `json:"ROWS"`
}

func decodePage(body []byte) (perm.PageResult, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var env envelope
	if err := dec.Decode(&env); err != nil {
		// Well-formed JSON of the wrong shape means the grid changed. Anything
		// else (a login page, a truncated body) is a plain fetch failure.
		if json.Valid(body) {
			return perm.PageResult{}, fmt.Errorf("%w: %v", perm.ErrMalformedResponse, err)
		}
		return perm.PageResult{}, fmt.Errorf("decode page body: %w", err)
	}

	if env.Records == nil {
		return perm.PageResult{}, fmt.Errorf("%w: RECORDS missing", perm.ErrMalformedResponse)
	}
	records, err := toInt(*env.Records)
	if err != nil {
		return perm.PageResult{}, fmt.Errorf("%w: RECORDS: %v", perm.ErrMalformedResponse, err)
	}
	if records == 0 {
		return perm.PageResult{}, perm.ErrEmptyPage
	}
	if env.Total == nil || env.Page == nil || env.Rows == nil {
		return perm.PageResult{}, fmt.Errorf("%w: TOTAL, PAGE or ROWS missing", perm.ErrMalformedResponse)
	}
	total, err := toInt(*env.Total)
	if err != nil {
		return perm.PageResult{}, fmt.Errorf("%w: TOTAL: %v", perm.ErrMalformedResponse, err)
	}
	current, err := toInt(*env.Page)
	if err != nil {
		return perm.PageResult{}, fmt.Errorf("%w: PAGE: %v", perm.ErrMalformedResponse, err)
	}

	return perm.PageResult{
		Rows:        *env.Rows,
		CurrentPage: current,
		TotalPages:  total,
		Records:     records,
		Raw:         body,
	}, nil
}

func toInt(n json.Number) (int, error) {
	if i, err := n.Int64(); err == nil {
		return int(i), nil
	}
	f, err := n.Float64()
	if err != nil {
		return 0, err
	}
	return int(f), nil
}
