package encode

import (
	"math"
	"math/rand/v2"

	"github.com/lamim/tunekit/pkg/models"
)

// Split shuffles examples with a seeded PCG source and holds out
// ceil(testRatio * n) of them for test. The same seed always gives the same split.
// A ratio of zero or less returns every example as train, in order.
func Split(examples []models.EncodedExample, testRatio float64, seed uint64) (train, test []models.EncodedExample) {
	n := len(examples)
	if testRatio <= 0 || n == 0 {
		return append([]models.EncodedExample(nil), examples...), nil
	}

	nTest := int(math.Ceil(testRatio * float64(n)))
	if nTest >= n {
		// Keep at least one training example
		nTest = n - 1
	}

	rng := rand.New(rand.NewPCG(seed, seed))
	perm := rng.Perm(n)

	test = make([]models.EncodedExample, 0, nTest)
	train = make([]models.EncodedExample, 0, n-nTest)
	for i, idx := range perm {
		if i < nTest {
			test = append(test, examples[idx])
		} else {
			train = append(train, examples[idx])
		}
	}
	return train, test
}
