package vendorapi

import (
	"context"
	"net/url"
	"strconv"
	"time"
)

// PageRequest describes a paginated fetch.
type PageRequest struct {
	Path   string
	Params url.Values
	// Limit is the page size; the client default applies when zero.
	Limit int
	// StartOffset resumes a stream from a persisted checkpoint.
	StartOffset int
	// Since, when set, is sent as updated_since on every page.
	Since time.Time
	// Cutoff, when set, stops pagination once a page dips below it
	// and drops the older items of that page. Requires nothing of the
	// upstream ordering: each page is re-sorted before the test.
	Cutoff time.Time
}

// Pager lazily walks a paginated list endpoint. End of stream is a
// page shorter than the limit.
type Pager struct {
	c      *Client
	req    PageRequest
	offset int
	done   bool
}

// Pages starts a lazy page stream for req.
func (c *Client) Pages(req PageRequest) *Pager {
	if req.Limit <= 0 {
		req.Limit = c.pageLimit
	}
	return &Pager{c: c, req: req, offset: req.StartOffset}
}

// Offset is the offset the next fetch would use. Persisted as the
// resume checkpoint after each page.
func (p *Pager) Offset() int { return p.offset }

// Next fetches the next page, newest-first. Returns ErrDone when the
// stream is exhausted.
func (p *Pager) Next(ctx context.Context) ([]Record, error) {
	if p.done {
		return nil, ErrDone
	}

	params := url.Values{}
	for k, vs := range p.req.Params {
		params[k] = vs
	}
	params.Set("offset", strconv.Itoa(p.offset))
	params.Set("limit", strconv.Itoa(p.req.Limit))
	if !p.req.Since.IsZero() {
		params.Set("updated_since", FormatSince(p.req.Since))
	}

	page, err := p.c.Records(ctx, p.req.Path, params)
	if err != nil {
		return nil, err
	}

	p.offset += p.req.Limit
	if len(page) < p.req.Limit {
		p.done = true
	}

	SortByUpdatedDesc(page)

	if !p.req.Cutoff.IsZero() {
		page = p.applyCutoff(page)
	}

	if len(page) == 0 {
		p.done = true
		return nil, ErrDone
	}
	return page, nil
}

// applyCutoff drops items older than the cutoff from a descending
// page and ends the stream once any page reaches below it.
func (p *Pager) applyCutoff(page []Record) []Record {
	kept := page[:0]
	for _, rec := range page {
		ts := rec.UpdatedAt()
		if !ts.IsZero() && ts.Before(p.req.Cutoff) {
			// Descending order: everything after this is older.
			p.done = true
			break
		}
		kept = append(kept, rec)
	}
	return kept
}
