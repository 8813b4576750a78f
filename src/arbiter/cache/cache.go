// Package cache persists loaded corpora between runs so a rerun can skip the
// hosting API and the clones. A cache that cannot be read is a miss.
package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/recipe-arbiter/arbiter/src/arbiter/apperr"
	"github.com/recipe-arbiter/arbiter/src/arbiter/storage"
)

// ResponseType names one cached payload.
type ResponseType string

const (
	PublicRecipes     ResponseType = "public_recipes"
	DistRecipes       ResponseType = "dist_recipes"
	DistPublicRecipes ResponseType = "dist_public_recipes"
	PublicRepos       ResponseType = "public_repos"
)

// Cache stores JSON payloads keyed by response type. Entries never expire;
// reads only happen when the cache was opened for reuse.
type Cache struct {
	store storage.ObjectStorage
	reuse bool
	ns    string
	log   *slog.Logger
}

// New wraps store. With reuse false, Get always misses but Put still
// refreshes the stored entries.
func New(store storage.ObjectStorage, reuse bool, log *slog.Logger) *Cache {
	if log == nil {
		log = slog.Default()
	}
	return &Cache{store: store, reuse: reuse, log: log}
}

// Namespace returns a view of c whose keys live under ns, so payloads of
// the same type computed differently do not overwrite each other.
func (c *Cache) Namespace(ns string) *Cache {
	if c == nil {
		return nil
	}
	cp := *c
	cp.ns = ns
	return &cp
}

func (c *Cache) key(typ ResponseType) string {
	if c.ns == "" {
		return string(typ) + ".json"
	}
	return c.ns + "/" + string(typ) + ".json"
}

// Get decodes the entry for typ into v and reports whether it did. Missing,
// unreadable or malformed entries are all misses.
func (c *Cache) Get(ctx context.Context, typ ResponseType, v any) bool {
	if c == nil || c.store == nil || !c.reuse {
		return false
	}
	rc, err := c.store.Get(ctx, c.key(typ))
	if errors.Is(err, storage.ErrNotFound) {
		c.log.Debug("Cache miss", "type", typ)
		return false
	}
	if err != nil {
		c.log.Warn("Reading cache failed", "type", typ, "error", apperr.New(apperr.Cache, "read", err))
		return false
	}
	defer rc.Close()

	if err := json.NewDecoder(rc).Decode(v); err != nil {
		c.log.Warn("Decoding cache entry failed", "type", typ, "error", apperr.New(apperr.Cache, "decode", err))
		return false
	}
	c.log.Debug("Cache hit", "type", typ)
	return true
}

// Put replaces the entry for typ. Failures are logged and otherwise ignored.
func (c *Cache) Put(ctx context.Context, typ ResponseType, v any) {
	if c == nil || c.store == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		c.log.Warn("Encoding cache entry failed", "type", typ, "error", apperr.New(apperr.Cache, "encode", err))
		return
	}
	if err := c.store.Put(ctx, c.key(typ), bytes.NewReader(b), "application/json"); err != nil {
		c.log.Warn("Writing cache failed", "type", typ, "error", apperr.New(apperr.Cache, "write", err))
	}
}
