package mlmodel

import (
	"errors"
	"math"
	"math/rand"
	"sort"
)

const (
	// DefaultTrees matches the ensemble size used at training time.
	DefaultTrees = 100
	// DefaultSeed keeps fits reproducible across retrains on identical data.
	DefaultSeed = 42

	maxSampleSize = 256
)

// IsoNode is one node of an isolation tree. Fields are exported for gob.
type IsoNode struct {
	Feature int
	Split   float64
	Left    *IsoNode
	Right   *IsoNode
	Size    int
}

// IsolationForest isolates outliers by random axis-aligned splits: anomalous
// points need fewer splits to isolate, so their expected path length is
// shorter. Score is normalized to (0, 1); Threshold is set at fit time from
// the contamination fraction.
type IsolationForest struct {
	Trees      []*IsoNode
	SampleSize int
	Threshold  float64
}

// FitIsolationForest trains a forest on X with the expected outlier fraction
// given by contamination.
func FitIsolationForest(X [][]float64, contamination float64, nTrees int, seed int64) (*IsolationForest, error) {
	if len(X) == 0 {
		return nil, errors.New("mlmodel: empty training data")
	}
	if nTrees <= 0 {
		nTrees = DefaultTrees
	}

	rng := rand.New(rand.NewSource(seed))
	psi := len(X)
	if psi > maxSampleSize {
		psi = maxSampleSize
	}
	heightLimit := int(math.Ceil(math.Log2(float64(psi) + 1)))

	f := &IsolationForest{
		Trees:      make([]*IsoNode, 0, nTrees),
		SampleSize: psi,
	}
	for t := 0; t < nTrees; t++ {
		sample := subsample(X, psi, rng)
		f.Trees = append(f.Trees, buildTree(sample, 0, heightLimit, rng))
	}

	// Threshold at the (1 - contamination) quantile of training scores, so
	// roughly the contamination fraction of the training set is flagged.
	scores := make([]float64, len(X))
	for i, x := range X {
		scores[i] = f.Score(x)
	}
	sort.Float64s(scores)
	idx := int(math.Ceil(float64(len(scores)) * (1 - contamination)))
	if idx >= len(scores) {
		idx = len(scores) - 1
	}
	if idx < 0 {
		idx = 0
	}
	f.Threshold = scores[idx]
	return f, nil
}

// Score returns the anomaly score for x; values close to 1 are outliers.
func (f *IsolationForest) Score(x []float64) float64 {
	if len(f.Trees) == 0 {
		return 0
	}
	total := 0.0
	for _, t := range f.Trees {
		total += pathLength(t, x, 0)
	}
	avg := total / float64(len(f.Trees))
	return math.Pow(2, -avg/avgPathLength(f.SampleSize))
}

// Predict follows the sklearn convention: -1 for outliers, 1 for inliers.
func (f *IsolationForest) Predict(x []float64) int {
	if f.Score(x) >= f.Threshold {
		return -1
	}
	return 1
}

// Decision is positive for inliers and negative for outliers, with magnitude
// growing with distance from the threshold.
func (f *IsolationForest) Decision(x []float64) float64 {
	return f.Threshold - f.Score(x)
}

func subsample(X [][]float64, psi int, rng *rand.Rand) [][]float64 {
	if psi >= len(X) {
		return X
	}
	idx := rng.Perm(len(X))[:psi]
	out := make([][]float64, psi)
	for i, j := range idx {
		out[i] = X[j]
	}
	return out
}

func buildTree(X [][]float64, depth, limit int, rng *rand.Rand) *IsoNode {
	if len(X) <= 1 || depth >= limit {
		return &IsoNode{Feature: -1, Size: len(X)}
	}

	nFeatures := len(X[0])
	feature := rng.Intn(nFeatures)
	lo, hi := X[0][feature], X[0][feature]
	for _, row := range X {
		if row[feature] < lo {
			lo = row[feature]
		}
		if row[feature] > hi {
			hi = row[feature]
		}
	}
	if lo == hi {
		// Constant along the chosen feature; try the others before giving up.
		found := false
		for off := 1; off < nFeatures; off++ {
			cand := (feature + off) % nFeatures
			clo, chi := X[0][cand], X[0][cand]
			for _, row := range X {
				if row[cand] < clo {
					clo = row[cand]
				}
				if row[cand] > chi {
					chi = row[cand]
				}
			}
			if clo != chi {
				feature, lo, hi = cand, clo, chi
				found = true
				break
			}
		}
		if !found {
			return &IsoNode{Feature: -1, Size: len(X)}
		}
	}

	split := lo + rng.Float64()*(hi-lo)
	var left, right [][]float64
	for _, row := range X {
		if row[feature] < split {
			left = append(left, row)
		} else {
			right = append(right, row)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return &IsoNode{Feature: -1, Size: len(X)}
	}
	return &IsoNode{
		Feature: feature,
		Split:   split,
		Left:    buildTree(left, depth+1, limit, rng),
		Right:   buildTree(right, depth+1, limit, rng),
	}
}

func pathLength(node *IsoNode, x []float64, depth int) float64 {
	if node.Feature < 0 {
		return float64(depth) + avgPathLength(node.Size)
	}
	v := 0.0
	if node.Feature < len(x) {
		v = x[node.Feature]
	}
	if v < node.Split {
		return pathLength(node.Left, x, depth+1)
	}
	return pathLength(node.Right, x, depth+1)
}

// avgPathLength is c(n): the average path length of an unsuccessful BST
// search over n points, used to normalize scores.
func avgPathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	if n == 2 {
		return 1
	}
	fn := float64(n)
	return 2*(math.Log(fn-1)+0.5772156649) - 2*(fn-1)/fn
}
