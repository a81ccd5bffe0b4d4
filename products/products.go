package products

import (
	"encoding/json"
	"net/url"
	"strconv"
	"time"
)

const (
	// Resource is the cache resource name shared by product listings and searches.
	Resource = "products"
	// ItemResource is the cache resource name for a single product.
	ItemResource = "product"
)

// Sort fields accepted by GET /products.
const (
	SortByCreatedAt = "createdAt"
	SortByPrice     = "price"
	SortByTitle     = "title"
)

const (
	OrderAsc  = "asc"
	OrderDesc = "desc"
)

type Image struct {
	ID  string `json:"_id,omitempty" yaml:"id,omitempty"`
	URL string `json:"url" yaml:"url"`
}

type Location struct {
	Name      string  `json:"name" yaml:"name" validate:"required"`
	Longitude float64 `json:"longitude" yaml:"longitude" validate:"longitude"`
	Latitude  float64 `json:"latitude" yaml:"latitude" validate:"latitude"`
}

// Product is a marketplace listing as returned by the API.
type Product struct {
	ID          string    `json:"_id" yaml:"id"`
	Title       string    `json:"title" yaml:"title"`
	Description string    `json:"description" yaml:"description"`
	Price       float64   `json:"price" yaml:"price"`
	Images      []Image   `json:"images,omitempty" yaml:"images,omitempty"`
	Location    *Location `json:"location,omitempty" yaml:"location,omitempty"`
	Owner       *Owner    `json:"user,omitempty" yaml:"owner,omitempty"`
	CreatedAt   time.Time `json:"createdAt,omitempty" yaml:"created_at,omitempty"`
}

// Owner is the listing's seller. The API sends either the user id or the
// populated user object.
type Owner struct {
	ID        string `json:"_id" yaml:"id"`
	Email     string `json:"email,omitempty" yaml:"email,omitempty"`
	FirstName string `json:"firstName,omitempty" yaml:"first_name,omitempty"`
	LastName  string `json:"lastName,omitempty" yaml:"last_name,omitempty"`
}

func (o *Owner) UnmarshalJSON(data []byte) error {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		*o = Owner{ID: id}
		return nil
	}
	type plain Owner
	return json.Unmarshal(data, (*plain)(o))
}

// Upload is a local image file attached to a create or update request.
type Upload struct {
	Path        string `validate:"required,file"`
	ContentType string // defaults to image/jpeg
	FileName    string // defaults to image_<index>.jpg
}

// Draft is the payload for creating a listing.
type Draft struct {
	Title       string   `validate:"required,max=200"`
	Description string   `validate:"required"`
	Price       float64  `validate:"gt=0"`
	Location    Location `validate:"required"`
	Images      []Upload `validate:"min=1,dive"`
}

// Patch carries the fields of an update; nil or empty fields are left unchanged.
type Patch struct {
	Title       *string   `validate:"omitempty,min=1,max=200"`
	Description *string   `validate:"omitempty,min=1"`
	Price       *float64  `validate:"omitempty,gt=0"`
	Location    *Location `validate:"omitempty"`
	Images      []Upload  `validate:"omitempty,dive"`
}

// Filter narrows GET /products. Zero values are omitted from the query.
type Filter struct {
	Page     int
	Limit    int
	MinPrice float64
	MaxPrice float64
	SortBy   string
	Order    string
}

// Values encodes the filter as query parameters.
func (f Filter) Values() url.Values {
	v := url.Values{}
	if f.Page > 0 {
		v.Set("page", strconv.Itoa(f.Page))
	}
	if f.Limit > 0 {
		v.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.MinPrice > 0 {
		v.Set("minPrice", strconv.FormatFloat(f.MinPrice, 'f', -1, 64))
	}
	if f.MaxPrice > 0 {
		v.Set("maxPrice", strconv.FormatFloat(f.MaxPrice, 'f', -1, 64))
	}
	if f.SortBy != "" {
		v.Set("sortBy", f.SortBy)
	}
	if f.Order != "" {
		v.Set("order", f.Order)
	}
	return v
}

// ID returns the identity key used to de-duplicate listings.
func ID(p Product) string {
	return p.ID
}
