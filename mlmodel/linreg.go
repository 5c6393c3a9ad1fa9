package mlmodel

import "errors"

var ErrSingularMatrix = errors.New("mlmodel: singular design matrix")

// LinearRegression is an ordinary least squares model over a fixed number of
// features, fitted via the normal equations. Fields are exported for gob.
type LinearRegression struct {
	Weights   []float64
	Intercept float64
}

// Fit solves min ||Xw + b - y||^2. X is row-major, one sample per row.
func (m *LinearRegression) Fit(X [][]float64, y []float64) error {
	if len(X) == 0 || len(X) != len(y) {
		return errors.New("mlmodel: empty or mismatched training data")
	}
	d := len(X[0])

	// Augmented system over [X | 1].
	dim := d + 1
	ata := make([][]float64, dim)
	atb := make([]float64, dim)
	for i := range ata {
		ata[i] = make([]float64, dim)
	}
	for r, row := range X {
		if len(row) != d {
			return errors.New("mlmodel: ragged training data")
		}
		for i := 0; i < dim; i++ {
			xi := 1.0
			if i < d {
				xi = row[i]
			}
			atb[i] += xi * y[r]
			for j := 0; j < dim; j++ {
				xj := 1.0
				if j < d {
					xj = row[j]
				}
				ata[i][j] += xi * xj
			}
		}
	}

	sol, err := solve(ata, atb)
	if err != nil {
		return err
	}
	m.Weights = sol[:d]
	m.Intercept = sol[d]
	return nil
}

// Predict evaluates the fitted model at x. Panics are avoided by treating a
// short input as zero-padded.
func (m *LinearRegression) Predict(x []float64) float64 {
	out := m.Intercept
	for i, w := range m.Weights {
		if i < len(x) {
			out += w * x[i]
		}
	}
	return out
}

// MSE is the mean squared error of the model over the given samples.
func (m *LinearRegression) MSE(X [][]float64, y []float64) float64 {
	if len(X) == 0 {
		return 0
	}
	sum := 0.0
	for i, row := range X {
		diff := m.Predict(row) - y[i]
		sum += diff * diff
	}
	return sum / float64(len(X))
}

// solve performs Gaussian elimination with partial pivoting on a |x| = b.
func solve(a [][]float64, b []float64) ([]float64, error) {
	n := len(a)
	for col := 0; col < n; col++ {
		pivot := col
		for r := col + 1; r < n; r++ {
			if abs(a[r][col]) > abs(a[pivot][col]) {
				pivot = r
			}
		}
		if abs(a[pivot][col]) < 1e-12 {
			return nil, ErrSingularMatrix
		}
		a[col], a[pivot] = a[pivot], a[col]
		b[col], b[pivot] = b[pivot], b[col]

		for r := col + 1; r < n; r++ {
			f := a[r][col] / a[col][col]
			for c := col; c < n; c++ {
				a[r][c] -= f * a[col][c]
			}
			b[r] -= f * b[col]
		}
	}

	x := make([]float64, n)
	for r := n - 1; r >= 0; r-- {
		sum := b[r]
		for c := r + 1; c < n; c++ {
			sum -= a[r][c] * x[c]
		}
		x[r] = sum / a[r][r]
	}
	return x, nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// FitLine fits a degree-1 least squares line over index-vs-value and returns
// slope and intercept. Fewer than two points yield a flat line.
func FitLine(values []float64) (slope, intercept float64) {
	n := float64(len(values))
	if len(values) < 2 {
		if len(values) == 1 {
			return 0, values[0]
		}
		return 0, 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, v := range values {
		x := float64(i)
		sumX += x
		sumY += v
		sumXY += x * v
		sumXX += x * x
	}
	den := n*sumXX - sumX*sumX
	if den == 0 {
		return 0, sumY / n
	}
	slope = (n*sumXY - sumX*sumY) / den
	intercept = (sumY - slope*sumX) / n
	return slope, intercept
}
