// Package session keeps the device's secure broker session up.
//
// The Connector retries a Session until it connects, then subscribes to the
// inbound topic. Unlike the network join there is no attempt cap: Connect
// returns only on success or when the context is cancelled.
package session
