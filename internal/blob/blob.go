// Package blob is the facade over the snapshot blob backends. Packages
// outside internal/blob depend on blob.Store, never on the infra adapters.
package blob

import (
	"context"

	"valsync/internal/blob/core"
	"valsync/internal/infra/blob/fs"
	"valsync/internal/infra/blob/memory"
	infraS3 "valsync/internal/infra/blob/s3"
)

type (
	// Driver identifies a blob backend.
	Driver = core.Driver
	// PutOptions configures a blob write.
	PutOptions = core.PutOptions
	// Info describes stored blob metadata.
	Info = core.Info
	// Store is the interface of every blob backend.
	Store = core.Store
	// S3Config configures the S3 backend.
	S3Config = infraS3.Config
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

var (
	ErrNotFound   = core.ErrNotFound
	ErrExists     = core.ErrExists
	ErrInvalidKey = core.ErrInvalidKey
)

// NewFilesystem returns a store rooted at root.
func NewFilesystem(root string) (Store, error) { return fs.New(root) }

// NewMemory returns an in-memory store.
func NewMemory() Store { return memory.New() }

// NewS3 returns an S3 backed store.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) { return infraS3.New(ctx, cfg) }

// NewMockS3ForTests returns an S3 store over a fake transport for tests in
// other packages.
func NewMockS3ForTests(prefix string) Store { return infraS3.NewMockForTests(prefix) }
