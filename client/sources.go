package client

import (
	"context"
	"strconv"

	"github.com/jrsteele09/go-market-client/api"
	"github.com/jrsteele09/go-market-client/pager"
	"github.com/jrsteele09/go-market-client/posts"
	"github.com/jrsteele09/go-market-client/products"
	"github.com/pkg/errors"
)

// Extra filter keys understood by the product source.
const (
	FilterMinPrice = "minPrice"
	FilterMaxPrice = "maxPrice"
)

// ErrSearchUnsupported is returned when searching a resource without a
// search endpoint.
var ErrSearchUnsupported = errors.New("search is not supported for this resource")

type productSource struct {
	api *api.Client
}

var _ pager.Source[products.Product] = productSource{}

func (s productSource) Browse(ctx context.Context, f pager.Filter, page, limit int) (pager.Page[products.Product], error) {
	filter := products.Filter{Page: page, Limit: limit, SortBy: f.SortBy, Order: f.Order}
	if v, ok := f.Extra[FilterMinPrice]; ok {
		filter.MinPrice, _ = strconv.ParseFloat(v, 64)
	}
	if v, ok := f.Extra[FilterMaxPrice]; ok {
		filter.MaxPrice, _ = strconv.ParseFloat(v, 64)
	}

	res, err := s.api.ListProducts(ctx, filter)
	if err != nil {
		return pager.Page[products.Product]{}, err
	}
	return pager.Page[products.Product]{
		Items:       res.Products,
		Page:        page,
		HasNextPage: res.Pagination.HasNextPage,
	}, nil
}

func (s productSource) Search(ctx context.Context, query string) ([]products.Product, error) {
	return s.api.SearchProducts(ctx, query)
}

type postSource struct {
	api *api.Client
}

var _ pager.Source[posts.Post] = postSource{}

func (s postSource) Browse(ctx context.Context, _ pager.Filter, page, limit int) (pager.Page[posts.Post], error) {
	res, err := s.api.ListPosts(ctx, page, limit)
	if err != nil {
		return pager.Page[posts.Post]{}, err
	}
	return pager.Page[posts.Post]{Items: res.Posts, Page: page, HasNextPage: res.Pagination.HasNextPage}, nil
}

func (s postSource) Search(context.Context, string) ([]posts.Post, error) {
	return nil, ErrSearchUnsupported
}
