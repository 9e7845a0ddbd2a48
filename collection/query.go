package collection

// Find returns every document matching filter, keyed by id.
func (c *Collection) Find(filter map[string]interface{}) (map[string]map[string]interface{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.indexes.Find(filter, c)
}

// FindOne returns the first document matching filter, if any. The second
// return value reports whether a match was found.
func (c *Collection) FindOne(filter map[string]interface{}) (string, map[string]interface{}, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, doc, err := c.indexes.FindOne(filter, c)
	if err != nil {
		return "", nil, false, err
	}
	return id, doc, doc != nil, nil
}

// FindIds returns the ids matching filter. Makes zero document reads when
// every filter key is secondary-indexed (spec.md §8 P7).
func (c *Collection) FindIds(filter map[string]interface{}) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.indexes.FindIds(filter, c)
}

// Count returns the number of documents matching filter, with the same
// zero-read guarantee as FindIds.
func (c *Collection) Count(filter map[string]interface{}) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.indexes.Count(filter, c)
}

// CreateIndex builds a secondary index over path, idempotently.
func (c *Collection) CreateIndex(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.indexes.CreateIndex(path, c)
}

// DropIndex removes a secondary index over path.
func (c *Collection) DropIndex(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.indexes.DropIndex(path)
}

// GetIndexes returns the dotted field paths currently indexed.
func (c *Collection) GetIndexes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.indexes.IndexedPaths()
}
