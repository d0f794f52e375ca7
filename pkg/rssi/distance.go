package rssi

import "math"

// DefaultPropagationExponent is the default signal-propagation exponent n
// used by the log-distance path loss model.
const DefaultPropagationExponent = 2.0

// EstimateDistance applies the log-distance path loss model
// d = 10^((txPower-rssi)/(10*n)).
//
// txPower is the measured TX power if set, else the device's advertised
// TX power, else 0 — the caller resolves that precedence before calling
// this function. If txPower is 0, the reading is unavailable and this
// function returns 0 as the sentinel, regardless of rssi.
//
// exponent defaults to DefaultPropagationExponent when <= 0; the
// recommended range [2.0, 4.0] is not enforced.
func EstimateDistance(txPower, rssi int16, exponent float64) float64 {
	if txPower == 0 {
		return 0
	}
	if exponent <= 0 {
		exponent = DefaultPropagationExponent
	}
	return math.Pow(10, float64(txPower-rssi)/(10*exponent))
}
