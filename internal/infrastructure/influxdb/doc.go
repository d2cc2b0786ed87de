// Package influxdb copies accepted telemetry samples into an InfluxDB v2
// bucket.
//
// The mirror sits behind the MQTT publisher as a telemetry.Sink and never
// blocks it. Open pings the server once; an unreachable server leaves the
// mirror paused rather than failing startup. Watch re-pings on an interval
// and resumes or pauses writes as the server comes and goes. Samples
// recorded while paused are counted and discarded.
//
// Each sample becomes one point in the "telemetry" measurement, tagged with
// vehicle_id and device_model, with integer temperature and humidity
// fields. Points are batched by the client library; write failures arrive
// through SetOnError.
package influxdb
