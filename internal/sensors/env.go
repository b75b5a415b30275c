package sensors

import (
	"github.com/relabs-tech/navkf/internal/airspeed"
	"github.com/relabs-tech/navkf/internal/env"
)

// ReadLeftEnv reads the LEFT BMP sensor (temp + pressure).
// TODO: replace stub with real BMP driver calls.
func ReadLeftEnv() (env.Sample, error) {
	return env.Sample{
		Source:      "left",
		Temperature: 0,
		Pressure:    0,
	}, nil
}

// ReadRightEnv reads the RIGHT BMP sensor (temp + pressure).
// TODO: replace stub with real BMP driver calls.
func ReadRightEnv() (env.Sample, error) {
	return env.Sample{
		Source:      "right",
		Temperature: 0,
		Pressure:    0,
	}, nil
}

// ReadAirspeed reads the differential-pressure pitot sensor.
// TODO: replace stub with real pitot driver calls.
func ReadAirspeed() (airspeed.Sample, error) {
	return airspeed.Sample{
		Source:         "pitot",
		DiffPressurePa: 0,
	}, nil
}
