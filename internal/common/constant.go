// Package common contains shared constants and sentinel errors used across
// fieldseal components.
package common

// DeviceTokenHeaderName is the gRPC metadata key used to carry the device
// token on outbound requests.
const DeviceTokenHeaderName = "device_token"

// DeviceIDHeaderName carries the stable id of the calling device.
const DeviceIDHeaderName = "device_id"
