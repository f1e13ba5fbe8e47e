package id

import "github.com/google/uuid"

// UUIDGenerator issues random v4 ids, optionally prefixed ("ord_", "pay_").
type UUIDGenerator struct {
	prefix string
}

func NewUUIDGenerator() UUIDGenerator { return UUIDGenerator{} }

func NewPrefixed(prefix string) UUIDGenerator { return UUIDGenerator{prefix: prefix} }

func (g UUIDGenerator) NewID() string { return g.prefix + uuid.NewString() }
