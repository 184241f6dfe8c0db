// Package client talks to the fieldseal backend on behalf of a device.
//
// Client is the transport-agnostic contract used by the sync queue handlers,
// the conflict checker and the sealing service. GRPCClient implements it over
// the EvidenceSync gRPC service: it attaches the device credentials to every
// call through an interceptor and maps gRPC status codes onto the sentinel
// errors in package common, so callers only ever match with errors.Is.
//
// # Error classes
//
//   - common.ErrTransientNetwork: Unavailable, DeadlineExceeded,
//     ResourceExhausted, Aborted, Internal, Unknown and non-status errors.
//     The sync queue retries these with backoff.
//   - common.ErrValidation: InvalidArgument, NotFound, PermissionDenied,
//     Unauthenticated and unrecognised FailedPrecondition. Never retried.
//   - common.ErrAlreadySealed, common.ErrSealedJobImmutable: FailedPrecondition
//     carrying the matching message.
package client
