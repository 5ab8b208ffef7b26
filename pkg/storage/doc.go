// Package storage defines the persistence contract for finished agent runs
// and the sentinel errors shared by its adapters (memory, postgres).
package storage
