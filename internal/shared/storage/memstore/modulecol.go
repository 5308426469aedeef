package memstore

import (
	"context"
	"sync"

	"vyral-cms/internal/shared/storage"
)

// ============================================================================
// ModuleDataStore - 模块私有集合（内存版）
// ============================================================================

// ModuleCollection 返回模块私有集合的内存访问器
func (s *Store) ModuleCollection(slug, name string) storage.ModuleCollection {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.moduleCols == nil {
		s.moduleCols = make(map[string]*memCollection)
	}
	key := slug + "/" + name
	if c, ok := s.moduleCols[key]; ok {
		return c
	}
	c := &memCollection{}
	s.moduleCols[key] = c
	return c
}

type memCollection struct {
	mu   sync.RWMutex
	docs []map[string]interface{}
}

func (c *memCollection) InsertOne(ctx context.Context, doc map[string]interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make(map[string]interface{}, len(doc))
	for k, v := range doc {
		cp[k] = v
	}
	c.docs = append(c.docs, cp)
	return nil
}

func (c *memCollection) Count(ctx context.Context, filter map[string]interface{}) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var count int64
	for _, doc := range c.docs {
		if matchDoc(doc, filter) {
			count++
		}
	}
	return count, nil
}

func (c *memCollection) Find(ctx context.Context, filter map[string]interface{}, limit int) ([]map[string]interface{}, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := []map[string]interface{}{}
	for _, doc := range c.docs {
		if !matchDoc(doc, filter) {
			continue
		}
		cp := make(map[string]interface{}, len(doc))
		for k, v := range doc {
			cp[k] = v
		}
		result = append(result, cp)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func matchDoc(doc, filter map[string]interface{}) bool {
	for k, v := range filter {
		if doc[k] != v {
			return false
		}
	}
	return true
}
