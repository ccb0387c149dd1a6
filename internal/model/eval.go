package model

import "math/rand"

// r2Score computes the coefficient of determination of predictions against
// observed values. 1.0 is a perfect fit; a model no better than predicting
// the mean scores 0 or below.
func r2Score(observed, predicted []float64) float64 {
	n := len(observed)
	if n == 0 {
		return 0
	}

	mean := 0.0
	for _, v := range observed {
		mean += v
	}
	mean /= float64(n)

	var ssRes, ssTot float64
	for i, v := range observed {
		d := v - predicted[i]
		ssRes += d * d
		m := v - mean
		ssTot += m * m
	}
	if ssTot == 0 {
		if ssRes == 0 {
			return 1
		}
		return 0
	}
	return 1 - ssRes/ssTot
}

// meanSquaredError is the error-magnitude companion metric to r2Score.
func meanSquaredError(observed, predicted []float64) float64 {
	n := len(observed)
	if n == 0 {
		return 0
	}
	var sum float64
	for i, v := range observed {
		d := v - predicted[i]
		sum += d * d
	}
	return sum / float64(n)
}

// trainTestSplit shuffles the rows with a fixed seed and splits them into
// train and held-out sets. The fixed seed keeps training reproducible.
func trainTestSplit(X [][]float64, y []float64, testFrac float64, seed int64) (XTrain, XTest [][]float64, yTrain, yTest []float64) {
	n := len(X)
	perm := rand.New(rand.NewSource(seed)).Perm(n)

	testN := int(float64(n) * testFrac)
	if testN < 1 {
		testN = 1
	}

	for i, idx := range perm {
		if i < testN {
			XTest = append(XTest, X[idx])
			yTest = append(yTest, y[idx])
		} else {
			XTrain = append(XTrain, X[idx])
			yTrain = append(yTrain, y[idx])
		}
	}
	return XTrain, XTest, yTrain, yTest
}
