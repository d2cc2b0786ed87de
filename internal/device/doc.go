// Package device runs the agent's main loop.
//
// Each Tick keeps the network and the secure session up, drains inbound
// messages and publishes telemetry when the publish period has elapsed.
// All loop state lives on the Device value.
package device
