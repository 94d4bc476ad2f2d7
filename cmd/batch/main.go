package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"ecg_go/internal/batch"
	"ecg_go/internal/config"
	"ecg_go/pkg/logger"
	"ecg_go/pkg/utils"
)

func main() {
	var (
		configPath = flag.String("config", "", "arquivo de configuração JSON (opcional)")
		inPath     = flag.String("in", "", "CSV com as amostras gravadas")
		column     = flag.String("column", batch.DefaultColumn, "coluna das amostras")
		outPath    = flag.String("out", "batch_processed_outputs.csv", "CSV de saída dos picos (vazio desativa)")
		fs         = flag.Int("fs", 0, "taxa de amostragem (Hz); 0 usa a configuração")
		window     = flag.Duration("window", 0, "janela da média de BPM; 0 usa a configuração")
		flushPeak  = flag.Bool("flush", false, "confirma um pico pendente no fim do arquivo")
		verbose    = flag.Bool("v", false, "lista todos os picos")
	)
	flag.Parse()

	logger.Init()
	logger.SetIncludeSource(false)

	if *inPath == "" {
		fmt.Fprintln(os.Stderr, "uso: batch -in amostras.csv [-out picos.csv]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.LoadFile(*configPath)
		if err != nil {
			logger.Fatal("Erro ao carregar configuração", err)
		}
		cfg = loaded
	}

	det := cfg.Detector
	if *fs > 0 {
		det.SampleRate = *fs
	}
	if *flushPeak {
		det.FlushPendingOnStop = true
	}
	rateWindow := cfg.Monitor.RateWindow.Duration
	if *window > 0 {
		rateWindow = *window
	}

	file, err := os.Open(*inPath)
	if err != nil {
		logger.Fatal("Erro ao abrir arquivo de entrada", err)
	}
	samples, err := batch.ReadColumn(file, *column)
	file.Close()
	if err != nil {
		logger.Fatal("Erro ao ler amostras", err)
	}
	logger.Infof("%d amostras lidas de %s (coluna %q)", len(samples), *inPath, *column)

	start := time.Now()
	res, err := batch.Run(samples, det, rateWindow)
	if err != nil {
		logger.Fatal("Erro no processamento", err)
	}

	logger.Infof("Sinal de %s processado em %s", utils.FormatDuration(res.Duration), time.Since(start).Round(time.Millisecond))
	logger.Infof("Limiar calibrado: %.2f", res.Threshold)
	logger.Infof("Picos detectados: %d", len(res.Peaks))
	if *verbose {
		for _, p := range res.Peaks {
			logger.Infof("  índice=%d valor=%.0f bpm=%.1f", p.Index, p.Value, p.BPM)
		}
	}
	logger.Infof("Histórico de BPM: %s", formatHistory(res.BPMHistory))
	logger.Infof("BPM médio (%s): %.1f", rateWindow, res.WindowedBPM)

	if *outPath != "" {
		if err := batch.WritePeaks(*outPath, res.Peaks); err != nil {
			logger.Fatal("Erro ao gravar picos", err)
		}
		logger.Infof("Picos gravados em %s", *outPath)
	}
}

func formatHistory(history []float64) string {
	parts := make([]string, len(history))
	for i, v := range history {
		parts[i] = fmt.Sprintf("%.1f", v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
