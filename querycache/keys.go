package querycache

import (
	"net/url"
	"strings"
)

// Key builds the canonical key for a resource and its filter set. Parameters
// are sorted by name so equal filter sets always produce the same key.
func Key(resource string, params url.Values) string {
	if len(params) == 0 {
		return resource
	}
	return resource + "?" + params.Encode()
}

// ItemKey builds the key of a single item of a resource.
func ItemKey(resource, id string) string {
	return resource + "/" + id
}

// ResourceOf returns the resource name a key was built from.
func ResourceOf(key string) string {
	if i := strings.IndexAny(key, "/?"); i >= 0 {
		return key[:i]
	}
	return key
}

// ResourcePredicate matches every key of resource: lists, searches and items.
func ResourcePredicate(resource string) func(key string) bool {
	return func(key string) bool {
		return ResourceOf(key) == resource
	}
}

// ExactPredicate matches a single key.
func ExactPredicate(key string) func(string) bool {
	return func(k string) bool {
		return k == key
	}
}
