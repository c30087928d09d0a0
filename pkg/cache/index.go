package cache

// IndexBaseKey is the partition of the static image index.
const IndexBaseKey = "/index/static"

// NewIndexCache creates the cache of the static image index. It is keyed on
// the query string only and stores everything under IndexBaseKey.
func NewIndexCache(store Store, opts Options) *APICache {
	c := &APICache{
		engine:  newEngine("index", store, NewKeyDeriver(IndexKeyAttributes...), opts),
		baseKey: IndexBaseKey,
	}
	c.prepare = renderJSON
	return c
}
