package blob

import (
	"context"
	"fmt"
	"os"

	infraS3 "valsync/internal/infra/blob/s3"
)

// Environment variables read by Open.
const (
	EnvDriver = "VALSYNC_BLOB_DRIVER"
	EnvFSRoot = "VALSYNC_BLOB_FS_ROOT"
)

// Open selects a Store from the environment.
//
//	VALSYNC_BLOB_DRIVER: fs|s3|memory (default fs)
//	VALSYNC_BLOB_FS_ROOT: directory root when driver=fs
//	VALSYNC_BLOB_S3_*: see internal/infra/blob/s3
func Open(ctx context.Context) (Store, error) {
	driver := Driver(os.Getenv(EnvDriver))
	if driver == "" {
		driver = DriverFilesystem
	}
	switch driver {
	case DriverFilesystem:
		return NewFilesystem(os.Getenv(EnvFSRoot))
	case DriverS3:
		return infraS3.OpenFromEnv(ctx)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", driver)
	}
}
