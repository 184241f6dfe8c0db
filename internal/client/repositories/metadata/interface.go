// Package metadata keeps the device-wide facts that live beside the data
// tables: which schema version wrote the file and which device owns it.
package metadata

import "context"

type Repository interface {
	// SchemaVersion returns ok=false for a file that was never stamped.
	SchemaVersion(ctx context.Context) (v int64, ok bool, err error)
	SetSchemaVersion(ctx context.Context, v int64) error

	// DeviceID returns "" until an id has been assigned.
	DeviceID(ctx context.Context) (string, error)
	SetDeviceID(ctx context.Context, id string) error
}
