package classifier

import "math"

// forward runs x through the dense layers with ReLU between them and returns the logits.
// Dropout is the identity at inference time.
func forward(layers []Layer, x []float32) []float64 {
	act := make([]float64, len(x))
	for i, v := range x {
		act[i] = float64(v)
	}

	for li := range layers {
		l := &layers[li]
		next := make([]float64, l.OutputDim())
		for o, row := range l.Weight {
			sum := float64(l.Bias[o])
			for i, w := range row {
				sum += float64(w) * act[i]
			}
			if li < len(layers)-1 && sum < 0 {
				sum = 0
			}
			next[o] = sum
		}
		act = next
	}
	return act
}

// softmax converts logits into probabilities in place, shifted by the max for stability.
func softmax(logits []float64) []float64 {
	maxLogit := math.Inf(-1)
	for _, v := range logits {
		if v > maxLogit {
			maxLogit = v
		}
	}

	var sum float64
	for i, v := range logits {
		logits[i] = math.Exp(v - maxLogit)
		sum += logits[i]
	}
	for i := range logits {
		logits[i] /= sum
	}
	return logits
}

// argmax returns the index and value of the largest element; ties go to the lowest index.
func argmax(values []float64) (int, float64) {
	best, bestVal := 0, values[0]
	for i, v := range values[1:] {
		if v > bestVal {
			best, bestVal = i+1, v
		}
	}
	return best, bestVal
}
