package test

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// HistogramSampleCount returns the number of observations recorded by the histogram series called
// name whose labels match every entry of labels. Series that are missing count as zero.
func HistogramSampleCount(g prometheus.Gatherer, name string, labels map[string]string) (uint64, error) {
	families, err := g.Gather()
	if err != nil {
		return 0, err
	}

	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		if mf.GetType() != dto.MetricType_HISTOGRAM {
			return 0, fmt.Errorf("metric %s is a %s, not a histogram", name, mf.GetType())
		}

		var count uint64
		for _, m := range mf.GetMetric() {
			if matchLabels(m, labels) {
				count += m.GetHistogram().GetSampleCount()
			}
		}
		return count, nil
	}
	return 0, nil
}

func matchLabels(m *dto.Metric, labels map[string]string) bool {
	matched := 0
	for _, lp := range m.GetLabel() {
		if v, ok := labels[lp.GetName()]; ok {
			if v != lp.GetValue() {
				return false
			}
			matched++
		}
	}
	return matched == len(labels)
}
