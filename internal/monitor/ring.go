package monitor

import "ecg_go/internal/models"

// sampleRing guarda as últimas amostras para a camada de observação
type sampleRing struct {
	data []models.SamplePoint
	head int
	size int
}

func newSampleRing(capacity int) *sampleRing {
	if capacity <= 0 {
		capacity = 1
	}
	return &sampleRing{data: make([]models.SamplePoint, capacity)}
}

func (r *sampleRing) push(p models.SamplePoint) {
	r.data[r.head] = p
	r.head = (r.head + 1) % len(r.data)
	if r.size < len(r.data) {
		r.size++
	}
}

// recent retorna as n amostras mais recentes em ordem cronológica
func (r *sampleRing) recent(n int) []models.SamplePoint {
	if n <= 0 || n > r.size {
		n = r.size
	}
	out := make([]models.SamplePoint, n)
	start := (r.head - n + len(r.data)) % len(r.data)
	for i := 0; i < n; i++ {
		out[i] = r.data[(start+i)%len(r.data)]
	}
	return out
}
