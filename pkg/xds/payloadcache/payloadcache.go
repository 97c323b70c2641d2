// Package payloadcache memoizes the marshalled form of resources that
// recur across many node-group snapshots (a shared cluster definition,
// say), so it is serialized to an anypb.Any once rather than once per
// group.
package payloadcache

import (
	lru "github.com/hashicorp/golang-lru"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/anypb"
)

type key struct {
	typeURL string
	name    string
	version string
}

// Cache is a bounded, size-limited memoization layer. It never affects
// correctness — a miss simply marshals — only the cost of doing so.
type Cache struct {
	lru *lru.Cache
}

// New builds a Cache holding at most size entries.
func New(size int) (*Cache, error) {
	l, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: l}, nil
}

// Marshal returns the anypb.Any for msg, consulting the cache first.
// The cache key is (typeURL, name, version): the same resource name at
// two different versions is cached separately, and two different
// resources sharing a version string never collide.
func (c *Cache) Marshal(typeURL, name, version string, msg proto.Message) (*anypb.Any, error) {
	k := key{typeURL: typeURL, name: name, version: version}
	if v, ok := c.lru.Get(k); ok {
		return v.(*anypb.Any), nil
	}

	any, err := anypb.New(msg)
	if err != nil {
		return nil, err
	}
	c.lru.Add(k, any)
	return any, nil
}

// Len reports the number of entries currently cached.
func (c *Cache) Len() int {
	return c.lru.Len()
}
