// Package models defines the domain types for Cadence.
package models

import "time"

// SourceFile is a lightweight description of a recording found under the
// import root, returned by list operations.
type SourceFile struct {
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}
