package fetcher

import (
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// QueryDateLayout is the date format inside the LAST_MOD_DATE query.
const QueryDateLayout = "2006/01/02"

// FeedURL builds a PUBLIC feed request for actions last modified between
// start and end. A zero end leaves the range open-ended.
func FeedURL(base, version string, start, end time.Time, offset int) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid feed base url %q: %w", base, err)
	}

	upper := ""
	if !end.IsZero() {
		upper = end.Format(QueryDateLayout)
	}

	q := url.Values{}
	q.Set("FEEDNAME", "PUBLIC")
	q.Set("VERSION", version)
	q.Set("q", fmt.Sprintf("LAST_MOD_DATE:[%s,%s]", start.Format(QueryDateLayout), upper))
	q.Set("start", strconv.Itoa(offset))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// DayURL requests a single closed day starting at offset.
func DayURL(base, version string, day time.Time, offset int) (string, error) {
	return FeedURL(base, version, day, day, offset)
}

// ResolveNext resolves a next link href against the page's base URL.
func ResolveNext(base *url.URL, href string) (string, error) {
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("invalid next link %q: %w", href, err)
	}
	if base == nil {
		return ref.String(), nil
	}
	return base.ResolveReference(ref).String(), nil
}
