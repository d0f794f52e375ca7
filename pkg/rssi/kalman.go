package rssi

// Default process/measurement variances for the one-dimensional Kalman
// filter applied to RSSI samples. RSSI in free space is noisy but the true
// signal strength changes slowly relative to the sampling rate, so the
// process variance is kept small relative to the measurement variance.
const (
	defaultProcessVariance     = 0.008
	defaultMeasurementVariance = 4.0
)

// KalmanFilter is a one-dimensional Kalman filter with no control input:
// the predicted estimate is always the prior estimate, and only the error
// covariance grows between measurements.
type KalmanFilter struct {
	processVariance     float64
	measurementVariance float64

	estimate        float64
	errorCovariance float64
	initialized     bool
}

// NewKalmanFilter returns a filter with the default process/measurement
// variance constants.
func NewKalmanFilter() *KalmanFilter {
	return &KalmanFilter{
		processVariance:     defaultProcessVariance,
		measurementVariance: defaultMeasurementVariance,
	}
}

// Update feeds one raw sample and returns the smoothed estimate.
func (f *KalmanFilter) Update(raw float64) float64 {
	if !f.initialized {
		f.estimate = raw
		f.errorCovariance = 1
		f.initialized = true
		return f.estimate
	}

	predictedCovariance := f.errorCovariance + f.processVariance
	gain := predictedCovariance / (predictedCovariance + f.measurementVariance)

	f.estimate += gain * (raw - f.estimate)
	f.errorCovariance = (1 - gain) * predictedCovariance

	return f.estimate
}

// Reset discards accumulated filter state, keeping the configured
// variances.
func (f *KalmanFilter) Reset() {
	f.estimate = 0
	f.errorCovariance = 0
	f.initialized = false
}
