package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"net"
	"os"
	osSignal "os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"ecg_go/internal/protocol"
	"ecg_go/internal/signal"
	"ecg_go/pkg/logger"
)

type options struct {
	addr      string
	mode      string
	broker    string
	dataTopic string
	cmdTopic  string
	hr        float64
	noise     float64
	width     int
	n         int
	fs        int
	autoStart bool
	corrupt   float64
}

func main() {
	var opts options
	flag.StringVar(&opts.addr, "addr", ":9750", "endereço TCP de escuta")
	flag.StringVar(&opts.mode, "mode", "tcp", "transporte: tcp ou mqtt")
	flag.StringVar(&opts.broker, "broker", "tcp://localhost:1883", "broker MQTT")
	flag.StringVar(&opts.dataTopic, "data-topic", "ecg/device/raw", "tópico MQTT de dados")
	flag.StringVar(&opts.cmdTopic, "cmd-topic", "ecg/device/cmd", "tópico MQTT de comandos")
	flag.Float64Var(&opts.hr, "hr", 72, "frequência cardíaca simulada (BPM)")
	flag.Float64Var(&opts.noise, "noise", 0.02, "amplitude do ruído")
	flag.IntVar(&opts.width, "width", 2, "bytes por amostra (1 = 8 bits, 2 = 12 bits)")
	flag.IntVar(&opts.n, "n", protocol.DefaultSamplesPerPacket, "amostras por pacote")
	flag.IntVar(&opts.fs, "fs", 250, "taxa de amostragem (Hz)")
	flag.BoolVar(&opts.autoStart, "autostart", false, "transmite sem esperar START")
	flag.Float64Var(&opts.corrupt, "corrupt", 0, "probabilidade de inserir um byte espúrio por pacote")
	flag.Parse()

	logger.Init()

	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 1)
	osSignal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()

	var err error
	switch opts.mode {
	case "tcp":
		err = serveTCP(ctx, opts)
	case "mqtt":
		err = serveMQTT(ctx, opts)
	default:
		err = fmt.Errorf("modo desconhecido: %q", opts.mode)
	}
	if err != nil {
		logger.Fatal("Simulador encerrado com erro", err)
	}
	logger.Info("Simulador encerrado")
}

// device gera pacotes no formato do firmware
type device struct {
	enc     *protocol.Encoder
	sim     *signal.ECGSim
	adc     signal.ADC
	format  protocol.Format
	corrupt float64
	rnd     *rand.Rand
	started time.Time
	sent    uint64
	running atomic.Bool
	startMu sync.Mutex
}

func newDevice(opts options) (*device, error) {
	format := protocol.Format{
		SampleWidth:      opts.width,
		SamplesPerPacket: opts.n,
		SampleIntervalMs: 1000 / float64(opts.fs),
	}
	enc, err := protocol.NewEncoder(format)
	if err != nil {
		return nil, err
	}
	bits := 12
	if opts.width == 1 {
		bits = 8
	}
	d := &device{
		enc:     enc,
		sim:     signal.NewECGSim(float64(opts.fs), opts.hr, opts.noise),
		adc:     signal.NewADC(bits),
		format:  format,
		corrupt: opts.corrupt,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if opts.autoStart {
		d.start()
	}
	return d, nil
}

func (d *device) start() {
	d.startMu.Lock()
	d.started = time.Now()
	d.startMu.Unlock()
	d.running.Store(true)
}

func (d *device) stop() {
	d.running.Store(false)
}

// command trata uma linha recebida do monitor
func (d *device) command(line string) {
	switch strings.ToUpper(strings.TrimSpace(line)) {
	case "START":
		logger.Info("START recebido")
		d.start()
	case "STOP":
		logger.Info("STOP recebido")
		d.stop()
	case "":
	default:
		logger.Warnf("Comando desconhecido: %q", line)
	}
}

// period é o intervalo entre pacotes
func (d *device) period() time.Duration {
	ms := float64(d.format.SamplesPerPacket) * d.format.SampleIntervalMs
	return time.Duration(ms * float64(time.Millisecond))
}

// nextPacket gera o próximo pacote; nil quando parado
func (d *device) nextPacket() ([]byte, error) {
	if !d.running.Load() {
		return nil, nil
	}
	d.startMu.Lock()
	elapsed := time.Since(d.started).Milliseconds()
	d.startMu.Unlock()

	samples := d.adc.Generate(d.sim, d.format.SamplesPerPacket)
	pkt, err := d.enc.Encode(d.enc.NextSeq(), uint32(elapsed), samples)
	if err != nil {
		return nil, err
	}
	d.sent++

	if d.corrupt > 0 && d.rnd.Float64() < d.corrupt {
		pkt = append([]byte{byte(d.rnd.Intn(256))}, pkt...)
	}
	return pkt, nil
}

func serveTCP(ctx context.Context, opts options) error {
	ln, err := net.Listen("tcp", opts.addr)
	if err != nil {
		return fmt.Errorf("erro ao escutar em %s: %w", opts.addr, err)
	}
	logger.Infof("Simulador TCP em %s (%.0f BPM, %d bytes/amostra, %d amostras/pacote)",
		ln.Addr(), opts.hr, opts.width, opts.n)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		go handleConn(ctx, conn, opts)
	}
}

func handleConn(ctx context.Context, conn net.Conn, opts options) {
	defer conn.Close()
	logger.Infof("Monitor conectado de %s", conn.RemoteAddr())

	dev, err := newDevice(opts)
	if err != nil {
		logger.Error("Formato inválido", err)
		return
	}

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		defer cancel()
		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			dev.command(scanner.Text())
		}
	}()

	ticker := time.NewTicker(dev.period())
	defer ticker.Stop()

	for {
		select {
		case <-connCtx.Done():
			logger.Infof("Conexão com %s encerrada após %d pacotes", conn.RemoteAddr(), dev.sent)
			return
		case <-ticker.C:
			pkt, err := dev.nextPacket()
			if err != nil {
				logger.Error("Erro ao gerar pacote", err)
				return
			}
			if pkt == nil {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(time.Second))
			if _, err := conn.Write(pkt); err != nil {
				logger.Warnf("Erro ao enviar pacote: %v", err)
				return
			}
		}
	}
}

func serveMQTT(ctx context.Context, opts options) error {
	dev, err := newDevice(opts)
	if err != nil {
		return err
	}

	mqttOpts := mqtt.NewClientOptions().
		AddBroker(opts.broker).
		SetClientID(fmt.Sprintf("ecg-simulator-%d", time.Now().UnixNano())).
		SetAutoReconnect(true).
		SetConnectTimeout(5 * time.Second)
	mqttOpts.SetOnConnectHandler(func(c mqtt.Client) {
		token := c.Subscribe(opts.cmdTopic, 1, func(_ mqtt.Client, msg mqtt.Message) {
			dev.command(string(msg.Payload()))
		})
		if token.Wait() && token.Error() != nil {
			logger.Error("Erro ao assinar tópico de comandos", token.Error())
		}
	})

	client := mqtt.NewClient(mqttOpts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("erro ao conectar ao broker %s: %w", opts.broker, token.Error())
	}
	defer client.Disconnect(250)

	logger.Infof("Simulador MQTT em %s (dados: %s, comandos: %s)", opts.broker, opts.dataTopic, opts.cmdTopic)

	ticker := time.NewTicker(dev.period())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Infof("%d pacotes publicados", dev.sent)
			return nil
		case <-ticker.C:
			pkt, err := dev.nextPacket()
			if err != nil {
				return err
			}
			if pkt == nil {
				continue
			}
			client.Publish(opts.dataTopic, 0, false, pkt)
		}
	}
}
