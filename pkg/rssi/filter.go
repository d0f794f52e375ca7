// Package rssi implements the smoothing filters and log-distance path loss
// model applied to raw RSSI samples by the device governor.
package rssi

// Filter smooths a stream of raw RSSI samples (dBm). Update is called once
// per sample and returns the smoothed estimate; Reset discards any
// accumulated state.
type Filter interface {
	Update(raw float64) float64
	Reset()
}

// Kind is a closed enum of the filter implementations this package ships,
// used in place of the reflective class-token lookup the original source
// performed.
type Kind int

const (
	KindNone Kind = iota
	KindKalman
	KindMovingAverage
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindKalman:
		return "kalman"
	case KindMovingAverage:
		return "moving_average"
	default:
		return "unknown"
	}
}

// Factory constructs a fresh Filter instance. Replacing a device's filter
// discards prior filter state by constructing a new instance.
type Factory func() Filter

// passthroughFilter implements Filter without any smoothing, used for
// KindNone.
type passthroughFilter struct{}

func (passthroughFilter) Update(raw float64) float64 { return raw }
func (passthroughFilter) Reset()                     {}

// NewFactory resolves a Kind to its Factory. Unknown kinds fall back to
// KindNone rather than erroring, since a misconfigured filter kind should
// degrade to raw readings, not break the device governor.
func NewFactory(kind Kind) Factory {
	switch kind {
	case KindKalman:
		return func() Filter { return NewKalmanFilter() }
	case KindMovingAverage:
		return func() Filter { return NewMovingAverageFilter() }
	default:
		return func() Filter { return passthroughFilter{} }
	}
}
