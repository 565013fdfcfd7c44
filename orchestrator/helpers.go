package orchestrator

import "fmt"

// Majority returns the most frequent label. Among tied labels the one seen
// first in labels wins.
func Majority(labels []string) (string, error) {
	if len(labels) == 0 {
		return "", ErrNoPredictions
	}
	counts := make(map[string]int, len(labels))
	order := make([]string, 0, len(labels))
	for _, l := range labels {
		if counts[l] == 0 {
			order = append(order, l)
		}
		counts[l]++
	}
	best := order[0]
	for _, l := range order[1:] {
		if counts[l] > counts[best] {
			best = l
		}
	}
	return best, nil
}

// Aggregate votes per classifier and then across the concatenation of all
// classifiers' labels in ensemble order.
func Aggregate(b PredictionBatch) (AggregatedResult, error) {
	if len(b.Models) == 0 || len(b.Labels) != len(b.Models) || b.Segments() == 0 {
		return AggregatedResult{}, ErrNoPredictions
	}
	n := b.Segments()
	res := AggregatedResult{ByModel: make(map[string]string, len(b.Models)), Segments: n}
	all := make([]string, 0, n*len(b.Models))
	for i, name := range b.Models {
		labels := b.Labels[i]
		if len(labels) != n {
			return AggregatedResult{}, fmt.Errorf("%s labelled %d segments, expected %d", name, len(labels), n)
		}
		m, err := Majority(labels)
		if err != nil {
			return AggregatedResult{}, err
		}
		res.ByModel[name] = m
		all = append(all, labels...)
	}
	overall, err := Majority(all)
	if err != nil {
		return AggregatedResult{}, err
	}
	res.Overall = overall
	return res, nil
}
