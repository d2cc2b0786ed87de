// Package telemetry builds and publishes the device's synthetic readings.
//
// Each publish draws a fresh Sample, encodes it in the device's fixed JSON
// layout and hands it to the transport without waiting for delivery.
package telemetry
