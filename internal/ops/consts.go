package ops

import "math"

var (
	sqrt2Pi    = math.Sqrt(2 * math.Pi)
	halfLog2Pi = float32(0.5 * math.Log(2*math.Pi))
)
