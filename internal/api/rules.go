package api

import (
	"sync"

	"jsonapi-backend/internal/config"
	"jsonapi-backend/internal/jsonapi"
	"jsonapi-backend/internal/metadata"
	"jsonapi-backend/internal/validation"
)

type dataKey struct {
	entity string
	mode   validation.Mode
}

// ruleCache compiles the rules of each entity once.
type ruleCache struct {
	mu      sync.Mutex
	docs    map[dataKey]*jsonapi.CompiledDataRules
	queries map[string]*jsonapi.CompiledQueryRules
}

func newRuleCache() *ruleCache {
	return &ruleCache{
		docs:    make(map[dataKey]*jsonapi.CompiledDataRules),
		queries: make(map[string]*jsonapi.CompiledQueryRules),
	}
}

func (rc *ruleCache) data(reg *metadata.Registry, e *metadata.Entity, mode validation.Mode) *jsonapi.CompiledDataRules {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	k := dataKey{entity: e.Name, mode: mode}
	if r, ok := rc.docs[k]; ok {
		return r
	}
	r := jsonapi.CompileDataRules(jsonapi.EntityDataRules(reg, e, mode))
	rc.docs[k] = r
	return r
}

func (rc *ruleCache) query(reg *metadata.Registry, e *metadata.Entity, paging config.PagingConfig) *jsonapi.CompiledQueryRules {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if r, ok := rc.queries[e.Name]; ok {
		return r
	}
	r := jsonapi.CompileQueryRules(jsonapi.EntityQueryRules(reg, e, paging))
	rc.queries[e.Name] = r
	return r
}
