// Package types defines core domain types shared across zisk-dev packages.
//
//nolint:revive // types is a common Go package naming convention
package types

// Version is the canonical zisk-dev version.
// The CLI, the envelope writer and the notification payloads all report
// this value.
const Version = "0.4.0"

// EventContractVersion is the version stamped on operation notifications.
// It moves in lockstep with Version.
const EventContractVersion = Version
