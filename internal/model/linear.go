package model

import (
	"errors"
	"math"
)

// LinearModel is an ordinary least-squares regression over the feature
// vector: rate = intercept + coefficients · features.
type LinearModel struct {
	Coefficients []float64 `json:"coefficients"`
	Intercept    float64   `json:"intercept"`
}

// Predict evaluates the fitted linear function at the given feature vector.
func (m *LinearModel) Predict(features []float64) float64 {
	v := m.Intercept
	for i, c := range m.Coefficients {
		if i < len(features) {
			v += c * features[i]
		}
	}
	return v
}

// ridge is a tiny regularization term on the normal equations. Feature
// columns are constant whenever a sensor is absent and defaulted, which
// would otherwise make the system singular.
const ridge = 1e-8

// fitLinear solves the least-squares normal equations with an intercept term.
func fitLinear(X [][]float64, y []float64) (*LinearModel, error) {
	if len(X) == 0 || len(X) != len(y) {
		return nil, errors.New("empty or mismatched training data")
	}
	p := len(X[0]) + 1 // +1 for the intercept column

	// Build A = Xᵀ·X and b = Xᵀ·y with an implicit leading 1s column.
	a := make([][]float64, p)
	for i := range a {
		a[i] = make([]float64, p)
	}
	b := make([]float64, p)

	row := make([]float64, p)
	for r, features := range X {
		row[0] = 1
		copy(row[1:], features)
		for i := 0; i < p; i++ {
			for j := 0; j < p; j++ {
				a[i][j] += row[i] * row[j]
			}
			b[i] += row[i] * y[r]
		}
	}

	for i := 1; i < p; i++ {
		a[i][i] += ridge
	}

	coef, err := solveLinearSystem(a, b)
	if err != nil {
		return nil, err
	}
	return &LinearModel{Intercept: coef[0], Coefficients: coef[1:]}, nil
}

// solveLinearSystem performs Gaussian elimination with partial pivoting on
// A·x = b, mutating its arguments.
func solveLinearSystem(a [][]float64, b []float64) ([]float64, error) {
	n := len(a)

	for col := 0; col < n; col++ {
		pivot := col
		for r := col + 1; r < n; r++ {
			if math.Abs(a[r][col]) > math.Abs(a[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(a[pivot][col]) < 1e-12 {
			return nil, errors.New("singular design matrix")
		}
		a[col], a[pivot] = a[pivot], a[col]
		b[col], b[pivot] = b[pivot], b[col]

		for r := col + 1; r < n; r++ {
			factor := a[r][col] / a[col][col]
			for c := col; c < n; c++ {
				a[r][c] -= factor * a[col][c]
			}
			b[r] -= factor * b[col]
		}
	}

	x := make([]float64, n)
	for i := n - 1; i >= 0; i-- {
		sum := b[i]
		for j := i + 1; j < n; j++ {
			sum -= a[i][j] * x[j]
		}
		x[i] = sum / a[i][i]
	}
	return x, nil
}
