package dataset

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/born/tensor"
)

// Blobs generates n points in dim dimensions around one centre per class. Centres sit
// on the diagonal, 4 apart, and points scatter with standard deviation spread. Labels
// cycle through the classes so every prefix is balanced.
func Blobs(n, classes, dim int, spread float64, seed int64) (*Dataset, error) {
	if n <= 0 || classes < 2 || dim <= 0 || spread < 0 {
		return nil, fmt.Errorf("invalid blobs n=%d classes=%d dim=%d spread=%v", n, classes, dim, spread)
	}
	rng := rand.New(rand.NewSource(seed))

	samples := make([][]float32, n)
	labels := make([]int32, n)
	for i := range samples {
		class := i % classes
		centre := 2 * float64(2*class-(classes-1))
		samples[i] = make([]float32, dim)
		for j := range samples[i] {
			samples[i][j] = float32(centre + rng.NormFloat64()*spread)
		}
		labels[i] = int32(class)
	}
	return New(samples, labels, tensor.Shape{dim})
}
