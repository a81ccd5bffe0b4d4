package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/jrsteele09/go-market-client/products"
	"github.com/pkg/errors"
)

const (
	productsPath       = "/products"
	searchProductsPath = "/products/search"
)

// ListProducts fetches one page of products.
func (c *Client) ListProducts(ctx context.Context, filter products.Filter) (*ProductPage, error) {
	req := request{method: http.MethodGet, path: productsPath, query: filter.Values(), authed: true}
	env, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	var items []products.Product
	if err := decodeData(env, req.method, req.path, &items); err != nil {
		return nil, err
	}
	page := &ProductPage{Products: items}
	if env.Pagination != nil {
		page.Pagination = *env.Pagination
	} else {
		page.Pagination = Pagination{CurrentPage: filter.Page, Limit: filter.Limit, TotalItems: len(items), TotalPages: 1}
	}
	return page, nil
}

// SearchProducts runs a free text search.
func (c *Client) SearchProducts(ctx context.Context, query string) ([]products.Product, error) {
	req := request{
		method: http.MethodGet,
		path:   searchProductsPath,
		query:  url.Values{"query": []string{query}},
		authed: true,
	}
	env, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	var items []products.Product
	if err := decodeData(env, req.method, req.path, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (c *Client) GetProduct(ctx context.Context, id string) (*products.Product, error) {
	req := request{method: http.MethodGet, path: productPath(id), authed: true}
	env, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	return decodeProduct(env, req)
}

// CreateProduct uploads a new listing as multipart form data.
func (c *Client) CreateProduct(ctx context.Context, draft products.Draft) (*products.Product, error) {
	form := newForm()
	form.field("title", draft.Title)
	form.field("description", draft.Description)
	form.field("price", strconv.FormatFloat(draft.Price, 'f', -1, 64))
	form.jsonField("location", draft.Location)
	for i, img := range draft.Images {
		form.file("images", i, img)
	}
	req, err := form.request(http.MethodPost, productsPath, true)
	if err != nil {
		return nil, err
	}
	env, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	return decodeProduct(env, req)
}

// UpdateProduct sends only the fields set in patch.
func (c *Client) UpdateProduct(ctx context.Context, id string, patch products.Patch) (*products.Product, error) {
	form := newForm()
	if patch.Title != nil {
		form.field("title", *patch.Title)
	}
	if patch.Description != nil {
		form.field("description", *patch.Description)
	}
	if patch.Price != nil {
		form.field("price", strconv.FormatFloat(*patch.Price, 'f', -1, 64))
	}
	if patch.Location != nil {
		form.jsonField("location", patch.Location)
	}
	for i, img := range patch.Images {
		form.file("images", i, img)
	}
	req, err := form.request(http.MethodPut, productPath(id), true)
	if err != nil {
		return nil, err
	}
	env, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	return decodeProduct(env, req)
}

// DeleteProduct removes a listing and returns the server's confirmation.
func (c *Client) DeleteProduct(ctx context.Context, id string) (string, error) {
	req := request{method: http.MethodDelete, path: productPath(id), authed: true}
	env, err := c.do(ctx, req)
	if err != nil {
		return "", err
	}
	var data messageData
	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := decodeData(env, req.method, req.path, &data); err != nil {
			return "", err
		}
	}
	return data.Message, nil
}

func productPath(id string) string {
	return productsPath + "/" + url.PathEscape(id)
}

func decodeProduct(env *envelope, req request) (*products.Product, error) {
	var p products.Product
	if err := decodeData(env, req.method, req.path, &p); err != nil {
		return nil, err
	}
	if p.ID == "" {
		return nil, errors.Wrapf(ErrMalformedResponse, "%s %s: product without id", req.method, req.path)
	}
	return &p, nil
}
