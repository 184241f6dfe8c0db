// Package services implements the device-side use cases behind the CLI:
// editing jobs, drafts, contacts and photos. Every mutation is written
// locally first and queued for the backend in the same transaction, so the
// caller sees it succeed immediately. Each service registers the queue
// handlers that deliver its actions.
package services
