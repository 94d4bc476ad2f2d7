package discovery

import (
	"fmt"
	"net"
	"os"
	"sync"

	"github.com/grandcat/zeroconf"

	"ecg_go/pkg/logger"
)

const (
	// ServiceName é o nome do serviço para descoberta na rede
	ServiceName = "ecg-monitor"

	// ServiceDomain é o domínio para descoberta na rede
	ServiceDomain = "local."

	// ServiceType define o tipo de serviço
	ServiceType = "_ecgmonitor._tcp"

	// Version vai no registro TXT
	Version = "1.0"
)

// DiscoveryService anuncia o monitor na rede local via mDNS
type DiscoveryService struct {
	server       *zeroconf.Server
	mutex        sync.Mutex
	instanceName string
	port         int
	metadata     []string
	running      bool
	serverIP     string
}

// NewDiscoveryService cria um novo serviço de descoberta.
// instanceName vazio usa "<hostname>-ecg".
func NewDiscoveryService(port int, instanceName string, metadata ...string) *DiscoveryService {
	if instanceName == "" {
		hostname, _ := os.Hostname()
		instanceName = fmt.Sprintf("%s-ecg", hostname)
	}

	return &DiscoveryService{
		port:         port,
		instanceName: instanceName,
		metadata:     metadata,
	}
}

// Start registra o serviço via zeroconf
func (s *DiscoveryService) Start() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.running {
		return nil
	}

	ip, err := LocalIP()
	if err != nil {
		return fmt.Errorf("erro ao obter IP local: %w", err)
	}
	s.serverIP = ip

	server, err := zeroconf.Register(
		s.instanceName,
		ServiceType,
		ServiceDomain,
		s.port,
		s.txtRecords(),
		nil, // todas as interfaces
	)
	if err != nil {
		return fmt.Errorf("erro ao registrar serviço de descoberta: %w", err)
	}

	s.server = server
	s.running = true

	logger.Infof("Serviço de descoberta iniciado em %s:%d (mDNS: %s.%s)",
		ip, s.port, s.instanceName, ServiceType)
	return nil
}

func (s *DiscoveryService) txtRecords() []string {
	txt := []string{
		"version=" + Version,
		"ip=" + s.serverIP,
		"name=" + ServiceName,
		"ws=/ws",
		"api=/api",
	}
	return append(txt, s.metadata...)
}

// Stop remove o anúncio
func (s *DiscoveryService) Stop() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.running {
		return
	}

	if s.server != nil {
		s.server.Shutdown()
		s.server = nil
	}
	s.running = false

	logger.Info("Serviço de descoberta parado")
}

// GetServerIP retorna o IP anunciado
func (s *DiscoveryService) GetServerIP() string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.serverIP
}

// GetPort retorna a porta do servidor
func (s *DiscoveryService) GetPort() int {
	return s.port
}

// GetInstanceName retorna o nome da instância do serviço
func (s *DiscoveryService) GetInstanceName() string {
	return s.instanceName
}

// IsRunning verifica se o serviço está em execução
func (s *DiscoveryService) IsRunning() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.running
}

// LocalIP obtém o primeiro endereço IPv4 que não é de loopback
func LocalIP() (string, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "", err
	}

	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
			if ipnet.IP.To4() != nil {
				return ipnet.IP.String(), nil
			}
		}
	}

	return "", fmt.Errorf("não foi possível determinar o endereço IP local")
}
