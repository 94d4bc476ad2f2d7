package discovery

import (
	"strings"
	"testing"
)

func TestDefaultInstanceName(t *testing.T) {
	s := NewDiscoveryService(8080, "")
	if !strings.HasSuffix(s.GetInstanceName(), "-ecg") {
		t.Errorf("instanceName = %q", s.GetInstanceName())
	}
	if s.GetPort() != 8080 || s.IsRunning() {
		t.Errorf("port = %d running = %v", s.GetPort(), s.IsRunning())
	}

	// Stop sem Start não faz nada
	s.Stop()
}

func TestTXTRecords(t *testing.T) {
	s := NewDiscoveryService(9000, "bancada-1", "source=tcp")
	s.serverIP = "10.0.0.5"

	txt := strings.Join(s.txtRecords(), ";")
	for _, want := range []string{"ip=10.0.0.5", "name=ecg-monitor", "version=1.0", "source=tcp"} {
		if !strings.Contains(txt, want) {
			t.Errorf("TXT %q sem %q", txt, want)
		}
	}
	if s.GetInstanceName() != "bancada-1" {
		t.Errorf("instanceName = %q", s.GetInstanceName())
	}
}
