package models

import (
	"fmt"
	"math"
	"sort"
)

// Classifier maps one reduced feature vector to an encoded class label.
// Implementations are read-only after loading.
type Classifier interface {
	Name() string
	NInputs() int
	Predict(x []float64) (int, error)
}

// TreeNode is one node of a fitted decision tree. Leaves have Left == -1 and
// carry per-class weights in Value, aligned with the forest's Classes.
type TreeNode struct {
	Left      int       `msgpack:"left" json:"left"`
	Right     int       `msgpack:"right" json:"right"`
	Feature   int       `msgpack:"feature" json:"feature"`
	Threshold float64   `msgpack:"threshold" json:"threshold"`
	Value     []float64 `msgpack:"value,omitempty" json:"value,omitempty"`
}

type Tree struct {
	Nodes []TreeNode `msgpack:"nodes" json:"nodes"`
}

// leaf walks the tree: x[feature] <= threshold goes left. Features are
// rounded to float32 first, the precision the trees were fit at.
func (t *Tree) leaf(x []float64) (*TreeNode, error) {
	if len(t.Nodes) == 0 {
		return nil, fmt.Errorf("empty tree")
	}
	i := 0
	for steps := 0; steps <= len(t.Nodes); steps++ {
		n := &t.Nodes[i]
		if n.Left < 0 {
			return n, nil
		}
		if n.Feature < 0 || n.Feature >= len(x) {
			return nil, fmt.Errorf("node %d splits on feature %d of %d", i, n.Feature, len(x))
		}
		if float64(float32(x[n.Feature])) <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
		if i < 0 || i >= len(t.Nodes) {
			return nil, fmt.Errorf("node index %d out of range", i)
		}
	}
	return nil, fmt.Errorf("tree has a cycle")
}

// RandomForest averages the normalised leaf class distributions of its trees
// and picks the most probable class; the lowest class index wins ties.
type RandomForest struct {
	Classes  []int  `msgpack:"classes" json:"classes"`
	Features int    `msgpack:"n_features" json:"n_features"`
	Trees    []Tree `msgpack:"trees" json:"trees"`
}

func (f *RandomForest) Name() string { return "RandomForest" }
func (f *RandomForest) NInputs() int { return f.Features }

func (f *RandomForest) Predict(x []float64) (int, error) {
	if len(f.Trees) == 0 || len(f.Classes) == 0 {
		return 0, fmt.Errorf("random forest: not fitted")
	}
	proba := make([]float64, len(f.Classes))
	for ti := range f.Trees {
		n, err := f.Trees[ti].leaf(x)
		if err != nil {
			return 0, fmt.Errorf("random forest tree %d: %w", ti, err)
		}
		if len(n.Value) != len(f.Classes) {
			return 0, fmt.Errorf("random forest tree %d: leaf has %d values for %d classes", ti, len(n.Value), len(f.Classes))
		}
		var total float64
		for _, v := range n.Value {
			total += v
		}
		if total == 0 {
			total = 1
		}
		for c, v := range n.Value {
			proba[c] += v / total
		}
	}
	return f.Classes[argmax(proba)], nil
}

// KNN votes among the K nearest training points under the Minkowski metric.
// Weights is "uniform" or "distance". Equal distances keep training order;
// vote ties go to the smallest class code.
type KNN struct {
	K       int         `msgpack:"n_neighbors" json:"n_neighbors"`
	Weights string      `msgpack:"weights" json:"weights"`
	P       float64     `msgpack:"p" json:"p"`
	X       [][]float64 `msgpack:"fit_x" json:"fit_x"`
	Y       []int       `msgpack:"fit_y" json:"fit_y"`
}

func (k *KNN) Name() string { return "KNN" }

func (k *KNN) NInputs() int {
	if len(k.X) == 0 {
		return 0
	}
	return len(k.X[0])
}

func (k *KNN) distance(a, b []float64) float64 {
	p := k.P
	if p <= 0 {
		p = 2
	}
	var sum float64
	for i := range a {
		d := math.Abs(a[i] - b[i])
		if p == 2 {
			sum += d * d
		} else {
			sum += math.Pow(d, p)
		}
	}
	if p == 2 {
		return math.Sqrt(sum)
	}
	return math.Pow(sum, 1/p)
}

func (k *KNN) Predict(x []float64) (int, error) {
	if len(k.X) == 0 || len(k.X) != len(k.Y) {
		return 0, fmt.Errorf("knn: %d points, %d labels", len(k.X), len(k.Y))
	}
	if len(x) != k.NInputs() {
		return 0, fmt.Errorf("knn: got %d features, expected %d", len(x), k.NInputs())
	}
	type neighbour struct {
		idx  int
		dist float64
	}
	all := make([]neighbour, len(k.X))
	for i, p := range k.X {
		all[i] = neighbour{idx: i, dist: k.distance(x, p)}
	}
	sort.SliceStable(all, func(a, b int) bool { return all[a].dist < all[b].dist })

	n := k.K
	if n <= 0 || n > len(all) {
		n = len(all)
	}
	nearest := all[:n]

	votes := map[int]float64{}
	exact := false
	if k.Weights == "distance" {
		for _, nb := range nearest {
			if nb.dist == 0 {
				exact = true
				break
			}
		}
	}
	for _, nb := range nearest {
		w := 1.0
		if k.Weights == "distance" {
			switch {
			case exact && nb.dist == 0:
				w = 1
			case exact:
				w = 0
			default:
				w = 1 / nb.dist
			}
		}
		votes[k.Y[nb.idx]] += w
	}

	codes := make([]int, 0, len(votes))
	for c := range votes {
		codes = append(codes, c)
	}
	sort.Ints(codes)
	best := codes[0]
	for _, c := range codes[1:] {
		if votes[c] > votes[best] {
			best = c
		}
	}
	return best, nil
}

// BoostNode is one node of a gradient-boosted regression tree. A feature
// value below Threshold goes to Yes, otherwise No; NaN follows Missing.
type BoostNode struct {
	Leaf      bool    `msgpack:"leaf" json:"leaf"`
	Value     float64 `msgpack:"value" json:"value"`
	Feature   int     `msgpack:"feature" json:"feature"`
	Threshold float64 `msgpack:"threshold" json:"threshold"`
	Yes       int     `msgpack:"yes" json:"yes"`
	No        int     `msgpack:"no" json:"no"`
	Missing   int     `msgpack:"missing" json:"missing"`
}

type BoostTree struct {
	Class int         `msgpack:"class" json:"class"`
	Nodes []BoostNode `msgpack:"nodes" json:"nodes"`
}

func (t *BoostTree) score(x []float64) (float64, error) {
	if len(t.Nodes) == 0 {
		return 0, fmt.Errorf("empty tree")
	}
	i := 0
	for steps := 0; steps <= len(t.Nodes); steps++ {
		n := &t.Nodes[i]
		if n.Leaf {
			return n.Value, nil
		}
		if n.Feature < 0 || n.Feature >= len(x) {
			return 0, fmt.Errorf("node %d splits on feature %d of %d", i, n.Feature, len(x))
		}
		v := x[n.Feature]
		switch {
		case math.IsNaN(v):
			i = n.Missing
		case float32(v) < float32(n.Threshold):
			i = n.Yes
		default:
			i = n.No
		}
		if i < 0 || i >= len(t.Nodes) {
			return 0, fmt.Errorf("node index %d out of range", i)
		}
	}
	return 0, fmt.Errorf("tree has a cycle")
}

// Objectives understood by GradientBoosting.
const (
	ObjectiveSoftprob = "multi:softprob"
	ObjectiveSoftmax  = "multi:softmax"
	ObjectiveLogistic = "binary:logistic"
)

// GradientBoosting sums per-class tree margins and predicts the class with
// the largest margin. For binary:logistic there is a single margin and class
// 1 is predicted when the probability exceeds 0.5.
type GradientBoosting struct {
	Objective string      `msgpack:"objective" json:"objective"`
	NumClass  int         `msgpack:"num_class" json:"num_class"`
	BaseScore float64     `msgpack:"base_score" json:"base_score"`
	Features  int         `msgpack:"n_features" json:"n_features"`
	Trees     []BoostTree `msgpack:"trees" json:"trees"`
}

func (g *GradientBoosting) Name() string { return "XGBoost" }
func (g *GradientBoosting) NInputs() int { return g.Features }

func (g *GradientBoosting) Predict(x []float64) (int, error) {
	switch g.Objective {
	case ObjectiveLogistic:
		bs := g.BaseScore
		if bs <= 0 || bs >= 1 {
			bs = 0.5
		}
		margin := math.Log(bs / (1 - bs))
		for ti := range g.Trees {
			s, err := g.Trees[ti].score(x)
			if err != nil {
				return 0, fmt.Errorf("gradient boosting tree %d: %w", ti, err)
			}
			margin += s
		}
		if margin > 0 {
			return 1, nil
		}
		return 0, nil
	case ObjectiveSoftprob, ObjectiveSoftmax, "":
		if g.NumClass < 2 {
			return 0, fmt.Errorf("gradient boosting: num_class %d", g.NumClass)
		}
		margins := make([]float64, g.NumClass)
		for c := range margins {
			margins[c] = g.BaseScore
		}
		for ti := range g.Trees {
			t := &g.Trees[ti]
			if t.Class < 0 || t.Class >= g.NumClass {
				return 0, fmt.Errorf("gradient boosting tree %d: class %d of %d", ti, t.Class, g.NumClass)
			}
			s, err := t.score(x)
			if err != nil {
				return 0, fmt.Errorf("gradient boosting tree %d: %w", ti, err)
			}
			margins[t.Class] += s
		}
		return argmax(margins), nil
	default:
		return 0, fmt.Errorf("gradient boosting: unsupported objective %q", g.Objective)
	}
}

// argmax returns the first index of the maximum.
func argmax(v []float64) int {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}
