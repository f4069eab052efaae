// Package storage provides the sealed record layer that backs the credential slot.
package storage

import "errors"

var (
	// ErrNotFound is returned when no record exists under the requested key.
	ErrNotFound = errors.New("record not found")
	// ErrBucketNotFound is returned when the bucket has never been written.
	ErrBucketNotFound = errors.New("bucket not found")
)

// Repository defines the interface for sealed record storage. Records are
// addressed by bucket and key; writes are last-write-wins.
type Repository interface {
	Get(bucket string, key string) (*Envelope, error)
	Put(bucket string, key string, envelope *Envelope) error
	Delete(bucket string, key string) error
}
