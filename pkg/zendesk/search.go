package zendesk

import (
	"context"
	"fmt"
	"net/url"
	"time"
)

// searchPage is one page of the search API response.
type searchPage struct {
	Results  []Ticket `json:"results"`
	NextPage string   `json:"next_page"`
}

// SearchTickets returns tickets created in [start, end] (calendar-date
// granularity, both ends inclusive in the platform's interpretation),
// newest first, walking the cursor until exhausted.
//
// A page failure after the first successful page truncates the stream:
// tickets fetched so far are returned with a warning logged, not an error.
// A failure on the very first page surfaces to the caller.
func (c *Client) SearchTickets(ctx context.Context, start, end time.Time) ([]Ticket, error) {
	query := fmt.Sprintf("type:ticket created>=%s created<=%s",
		start.Format("2006-01-02"), end.Format("2006-01-02"))
	next := fmt.Sprintf("/search.json?query=%s&sort_by=created_at&sort_order=desc",
		url.QueryEscape(query))

	var tickets []Ticket
	page := 0
	for next != "" {
		if page > 0 {
			if !sleepCtx(ctx, c.pagePause) {
				return tickets, ctx.Err()
			}
		}

		var resp searchPage
		if err := c.get(ctx, next, &resp); err != nil {
			if page == 0 {
				return nil, fmt.Errorf("search tickets: %w", err)
			}
			c.logger.Warn("Ticket search page failed, keeping partial results",
				"page", page+1, "tickets_so_far", len(tickets), "error", err)
			return tickets, nil
		}

		tickets = append(tickets, resp.Results...)
		next = resp.NextPage
		page++
	}

	c.logger.Info("Ticket search complete",
		"query", query, "tickets", len(tickets), "pages", page)
	return tickets, nil
}
