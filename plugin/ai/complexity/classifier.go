// Package complexity grades inputs as simple, medium or complex with a
// linear softmax classifier over embedding vectors. The router uses the
// grade to size the candidate set and to skip reranking for cheap inputs.
package complexity

import (
	"encoding/json"
	"math"
	"math/rand"

	"github.com/pkg/errors"
)

// Label is a complexity grade.
type Label string

const (
	LabelSimple  Label = "SIMPLE"
	LabelMedium  Label = "MEDIUM"
	LabelComplex Label = "COMPLEX"
)

// labels is the fixed class order of the weight matrix rows.
var labels = []Label{LabelSimple, LabelMedium, LabelComplex}

// Sample is one labeled training example.
type Sample struct {
	Vector []float32
	Label  Label
}

// Classifier is a linear softmax model: logits = W·x + b. It is not safe
// for concurrent mutation; train before serving, or swap instances.
type Classifier struct {
	Dims    int         `json:"dims"`
	Weights [][]float64 `json:"weights"` // [class][dim]
	Bias    []float64   `json:"bias"`    // [class]
}

// NewClassifier creates an untrained classifier for the given embedding
// dimensionality with small random weights.
func NewClassifier(dims int) *Classifier {
	c := &Classifier{
		Dims:    dims,
		Weights: make([][]float64, len(labels)),
		Bias:    make([]float64, len(labels)),
	}
	rng := rand.New(rand.NewSource(1))
	for i := range c.Weights {
		row := make([]float64, dims)
		for j := range row {
			row[j] = (rng.Float64() - 0.5) * 0.01
		}
		c.Weights[i] = row
	}
	return c
}

// Train runs batch gradient descent minimizing cross-entropy loss and
// returns the final average loss.
func (c *Classifier) Train(samples []Sample, epochs int, learningRate float64) (float64, error) {
	if len(samples) == 0 {
		return 0, errors.New("no training samples")
	}
	for _, s := range samples {
		if len(s.Vector) != c.Dims {
			return 0, errors.Errorf("sample dimension %d does not match model dimension %d", len(s.Vector), c.Dims)
		}
		if classIndex(s.Label) < 0 {
			return 0, errors.Errorf("unknown label %q", s.Label)
		}
	}

	n := float64(len(samples))
	var loss float64
	for epoch := 0; epoch < epochs; epoch++ {
		gradW := make([][]float64, len(labels))
		for i := range gradW {
			gradW[i] = make([]float64, c.Dims)
		}
		gradB := make([]float64, len(labels))
		loss = 0

		for _, s := range samples {
			probs := c.softmax(s.Vector)
			target := classIndex(s.Label)
			loss += -math.Log(math.Max(probs[target], 1e-12))

			// d(loss)/d(logit_k) = p_k - 1{k == target}
			for k := range labels {
				delta := probs[k]
				if k == target {
					delta -= 1
				}
				for j, x := range s.Vector {
					gradW[k][j] += delta * float64(x)
				}
				gradB[k] += delta
			}
		}

		for k := range labels {
			for j := range c.Weights[k] {
				c.Weights[k][j] -= learningRate * gradW[k][j] / n
			}
			c.Bias[k] -= learningRate * gradB[k] / n
		}
	}
	return loss / n, nil
}

// Predict returns the most probable label and the full class distribution
// keyed by label.
func (c *Classifier) Predict(vector []float32) (Label, map[Label]float64, error) {
	if len(vector) != c.Dims {
		return "", nil, errors.Errorf("vector dimension %d does not match model dimension %d", len(vector), c.Dims)
	}
	probs := c.softmax(vector)
	best := 0
	for k := 1; k < len(probs); k++ {
		if probs[k] > probs[best] {
			best = k
		}
	}
	dist := make(map[Label]float64, len(labels))
	for k, label := range labels {
		dist[label] = probs[k]
	}
	return labels[best], dist, nil
}

// softmax computes class probabilities with max-subtraction for numeric
// stability.
func (c *Classifier) softmax(vector []float32) []float64 {
	logits := make([]float64, len(labels))
	for k := range labels {
		z := c.Bias[k]
		for j, x := range vector {
			z += c.Weights[k][j] * float64(x)
		}
		logits[k] = z
	}

	maxLogit := logits[0]
	for _, z := range logits[1:] {
		if z > maxLogit {
			maxLogit = z
		}
	}
	var sum float64
	probs := make([]float64, len(logits))
	for k, z := range logits {
		probs[k] = math.Exp(z - maxLogit)
		sum += probs[k]
	}
	for k := range probs {
		probs[k] /= sum
	}
	return probs
}

// Marshal serializes the trained model.
func (c *Classifier) Marshal() ([]byte, error) {
	data, err := json.Marshal(c)
	return data, errors.Wrap(err, "failed to marshal classifier")
}

// Unmarshal loads a model serialized by Marshal.
func Unmarshal(data []byte) (*Classifier, error) {
	c := &Classifier{}
	if err := json.Unmarshal(data, c); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal classifier")
	}
	if c.Dims <= 0 || len(c.Weights) != len(labels) || len(c.Bias) != len(labels) {
		return nil, errors.New("malformed classifier data")
	}
	return c, nil
}

func classIndex(label Label) int {
	for i, l := range labels {
		if l == label {
			return i
		}
	}
	return -1
}
