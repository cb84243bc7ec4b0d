package complexity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func separableSamples() []Sample {
	return []Sample{
		{Vector: []float32{1, 0, 0}, Label: LabelSimple},
		{Vector: []float32{0.9, 0.1, 0}, Label: LabelSimple},
		{Vector: []float32{0.8, 0, 0.1}, Label: LabelSimple},
		{Vector: []float32{0, 1, 0}, Label: LabelMedium},
		{Vector: []float32{0.1, 0.9, 0}, Label: LabelMedium},
		{Vector: []float32{0, 0.8, 0.1}, Label: LabelMedium},
		{Vector: []float32{0, 0, 1}, Label: LabelComplex},
		{Vector: []float32{0.1, 0, 0.9}, Label: LabelComplex},
		{Vector: []float32{0, 0.1, 0.8}, Label: LabelComplex},
	}
}

func TestClassifier_TrainAndPredict(t *testing.T) {
	c := NewClassifier(3)
	loss, err := c.Train(separableSamples(), 500, 0.5)
	require.NoError(t, err)
	assert.Less(t, loss, 0.5)

	for _, s := range separableSamples() {
		label, probs, err := c.Predict(s.Vector)
		require.NoError(t, err)
		assert.Equal(t, s.Label, label, "vector %v", s.Vector)
		assert.Greater(t, probs[s.Label], 0.5)
	}
}

func TestClassifier_ProbabilitiesSumToOne(t *testing.T) {
	c := NewClassifier(3)
	_, probs, err := c.Predict([]float32{0.2, 0.5, 0.3})
	require.NoError(t, err)
	require.Len(t, probs, 3)
	sum := 0.0
	for _, p := range probs {
		assert.GreaterOrEqual(t, p, 0.0)
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestClassifier_LargeLogitsStayFinite(t *testing.T) {
	c := NewClassifier(2)
	// Blow up the weights so naive softmax would overflow.
	c.Weights = [][]float64{{1000, 0}, {0, 1000}, {500, 500}}
	c.Bias = []float64{0, 0, 0}

	_, probs, err := c.Predict([]float32{1, 1})
	require.NoError(t, err)
	sum := 0.0
	for _, p := range probs {
		require.False(t, p != p, "probability is NaN")
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestClassifier_Validation(t *testing.T) {
	c := NewClassifier(3)

	t.Run("EmptyTrainingSet", func(t *testing.T) {
		_, err := c.Train(nil, 10, 0.1)
		assert.Error(t, err)
	})

	t.Run("DimensionMismatch", func(t *testing.T) {
		_, err := c.Train([]Sample{{Vector: []float32{1, 2}, Label: LabelSimple}}, 10, 0.1)
		assert.Error(t, err)
	})

	t.Run("UnknownLabel", func(t *testing.T) {
		_, err := c.Train([]Sample{{Vector: []float32{1, 2, 3}, Label: "HUGE"}}, 10, 0.1)
		assert.Error(t, err)
	})

	t.Run("PredictDimensionMismatch", func(t *testing.T) {
		_, _, err := c.Predict([]float32{1})
		assert.Error(t, err)
	})
}

func TestClassifier_MarshalRoundtrip(t *testing.T) {
	c := NewClassifier(3)
	_, err := c.Train(separableSamples(), 200, 0.5)
	require.NoError(t, err)

	data, err := c.Marshal()
	require.NoError(t, err)

	restored, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, c.Dims, restored.Dims)

	for _, s := range separableSamples() {
		want, _, err := c.Predict(s.Vector)
		require.NoError(t, err)
		got, _, err := restored.Predict(s.Vector)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestUnmarshal_Invalid(t *testing.T) {
	t.Run("BadJSON", func(t *testing.T) {
		_, err := Unmarshal([]byte("not json"))
		assert.Error(t, err)
	})

	t.Run("ZeroDims", func(t *testing.T) {
		_, err := Unmarshal([]byte(`{"dims":0,"weights":[[],[],[]],"bias":[0,0,0]}`))
		assert.Error(t, err)
	})

	t.Run("WrongClassCount", func(t *testing.T) {
		_, err := Unmarshal([]byte(`{"dims":2,"weights":[[1,2]],"bias":[0]}`))
		assert.Error(t, err)
	})
}
