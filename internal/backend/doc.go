// Package backend declares the collaborator the cache layer talks to: a
// database that can be connected to, watched for change events, and that
// exposes an auth capability.
//
// The interfaces are deliberately narrow. Connection handshakes, sign-in,
// password reset and token refresh all happen behind them; this module
// only sequences the calls and applies what comes back.
//
// Package memory provides an in-process implementation used by tests and
// the treesync CLI.
package backend
