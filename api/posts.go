package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/jrsteele09/go-market-client/posts"
)

const postsPath = "/posts"

// PostPage is one page of GET /posts.
type PostPage struct {
	Posts      []posts.Post
	Pagination Pagination
}

func (c *Client) ListPosts(ctx context.Context, page, limit int) (*PostPage, error) {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	req := request{method: http.MethodGet, path: postsPath, query: q, authed: true}
	env, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	var items []posts.Post
	if err := decodeData(env, req.method, req.path, &items); err != nil {
		return nil, err
	}
	out := &PostPage{Posts: items}
	if env.Pagination != nil {
		out.Pagination = *env.Pagination
	}
	return out, nil
}
