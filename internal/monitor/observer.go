package monitor

import "ecg_go/internal/models"

// Observer recebe os eventos publicados pela goroutine de ingestão.
// As chamadas são síncronas: implementações não devem bloquear.
type Observer interface {
	OnPeak(ev models.PeakEvent)
	OnRate(ev models.RateUpdate)
	OnStatus(st models.MonitorStatus)
}

// ObserverFuncs adapta funções avulsas para Observer; campos nil são ignorados
type ObserverFuncs struct {
	Peak   func(models.PeakEvent)
	Rate   func(models.RateUpdate)
	Status func(models.MonitorStatus)
}

// OnPeak implementa Observer
func (o ObserverFuncs) OnPeak(ev models.PeakEvent) {
	if o.Peak != nil {
		o.Peak(ev)
	}
}

// OnRate implementa Observer
func (o ObserverFuncs) OnRate(ev models.RateUpdate) {
	if o.Rate != nil {
		o.Rate(ev)
	}
}

// OnStatus implementa Observer
func (o ObserverFuncs) OnStatus(st models.MonitorStatus) {
	if o.Status != nil {
		o.Status(st)
	}
}
