// Package uuid provides the UUID implementation of scrape.IDGenerator.
package uuid

import guuid "github.com/google/uuid"

// Generator produces random UUIDs.
type Generator struct{}

// New constructs a Generator.
func New() *Generator {
	return &Generator{}
}

// NewID returns a new UUIDv4 string.
func (g *Generator) NewID() string {
	return guuid.NewString()
}
