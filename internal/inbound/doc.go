// Package inbound echoes messages received on the device's inbound topic.
package inbound
