package detector

import "sort"

// percentile calcula o p-ésimo percentil com interpolação linear entre as
// posições vizinhas, mesma convenção do numpy. Ordena values no lugar.
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sort.Float64s(values)

	pos := float64(len(values)-1) * p / 100
	lo := int(pos)
	if lo >= len(values)-1 {
		return values[len(values)-1]
	}
	frac := pos - float64(lo)
	return values[lo] + (values[lo+1]-values[lo])*frac
}
