package telemetry

import (
	"fmt"
	"math/rand/v2"

	"github.com/nerrad567/mkr-telemetry/internal/infrastructure/config"
)

// Sample is one telemetry reading.
type Sample struct {
	DeviceModel string
	Temperature int
	Humidity    int
	VehicleID   string
}

// Encode renders s in the layout downstream consumers parse byte for byte,
// including the space before the first comma.
func Encode(s Sample) []byte {
	return fmt.Appendf(nil,
		`{"deviceModel": "%s" ,"temperature": %d,"humidity": %d,"vehicleId": "%s"}`,
		s.DeviceModel, s.Temperature, s.Humidity, s.VehicleID,
	)
}

// Generator draws samples with uniformly distributed readings.
//
// Not safe for concurrent use.
type Generator struct {
	rng         *rand.Rand
	deviceModel string
	vehicleID   string
	temperature config.RangeConfig
	humidity    config.RangeConfig
}

// NewGenerator returns a Generator for cfg. A nil src seeds a PCG source
// from the runtime's random state.
func NewGenerator(cfg config.TelemetryConfig, src rand.Source) *Generator {
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return &Generator{
		rng:         rand.New(src),
		deviceModel: cfg.DeviceModel,
		vehicleID:   cfg.VehicleID,
		temperature: cfg.Temperature,
		humidity:    cfg.Humidity,
	}
}

// Next returns a fresh sample. Readings fall in [Min, Max) of their range.
func (g *Generator) Next() Sample {
	return Sample{
		DeviceModel: g.deviceModel,
		Temperature: g.draw(g.temperature),
		Humidity:    g.draw(g.humidity),
		VehicleID:   g.vehicleID,
	}
}

func (g *Generator) draw(r config.RangeConfig) int {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + g.rng.IntN(r.Max-r.Min)
}
