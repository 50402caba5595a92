package zendesk

import (
	"context"
	"fmt"
)

// commentsPage is one page of a ticket's comment thread.
type commentsPage struct {
	Comments []Comment `json:"comments"`
	NextPage string    `json:"next_page"`
}

// ListComments returns the full comment thread for a ticket, preserving the
// server-returned order.
func (c *Client) ListComments(ctx context.Context, ticketID int64) ([]Comment, error) {
	next := fmt.Sprintf("/tickets/%d/comments.json", ticketID)

	var comments []Comment
	page := 0
	for next != "" {
		if page > 0 {
			if !sleepCtx(ctx, c.pagePause) {
				return nil, ctx.Err()
			}
		}

		var resp commentsPage
		if err := c.get(ctx, next, &resp); err != nil {
			return nil, fmt.Errorf("list comments for ticket %d: %w", ticketID, err)
		}

		comments = append(comments, resp.Comments...)
		next = resp.NextPage
		page++
	}

	return comments, nil
}
