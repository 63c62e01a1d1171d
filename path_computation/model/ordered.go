package model

import (
	"sort"
)

// Ordered is a map that iterates in ascending key order.
type Ordered[V any] struct {
	items map[string]V
	keys  []string
}

type (
	NodeMap = Ordered[*Node]
	LinkMap = Ordered[*Link]
)

func NewNodeMap() *NodeMap { return newOrdered[*Node]() }
func NewLinkMap() *LinkMap { return newOrdered[*Link]() }

func newOrdered[V any]() *Ordered[V] {
	return &Ordered[V]{items: make(map[string]V)}
}

func (m *Ordered[V]) Put(key string, v V) {
	if _, ok := m.items[key]; !ok {
		i := sort.SearchStrings(m.keys, key)
		m.keys = append(m.keys, "")
		copy(m.keys[i+1:], m.keys[i:])
		m.keys[i] = key
	}
	m.items[key] = v
}

func (m *Ordered[V]) Get(key string) (V, bool) {
	v, ok := m.items[key]
	return v, ok
}

func (m *Ordered[V]) Delete(key string) {
	if _, ok := m.items[key]; !ok {
		return
	}
	delete(m.items, key)
	i := sort.SearchStrings(m.keys, key)
	m.keys = append(m.keys[:i], m.keys[i+1:]...)
}

func (m *Ordered[V]) Len() int {
	return len(m.keys)
}

// Keys returns a copy of the keys in ascending order.
func (m *Ordered[V]) Keys() []string {
	return append([]string(nil), m.keys...)
}

// Each visits entries in ascending key order.
func (m *Ordered[V]) Each(fn func(key string, v V)) {
	for _, k := range m.Keys() {
		fn(k, m.items[k])
	}
}
