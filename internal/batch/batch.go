// Package batch reprocessa uma gravação CSV com o mesmo detector e estimador
// usados na aquisição ao vivo.
package batch

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"ecg_go/internal/detector"
	"ecg_go/internal/rate"
	"ecg_go/internal/recorder"
	"ecg_go/pkg/utils"
)

// ErrColumnNotFound indica que a coluna pedida não existe no cabeçalho
var ErrColumnNotFound = errors.New("coluna não encontrada")

// DefaultColumn é a coluna de amostras dos arquivos gravados pelo recorder
const DefaultColumn = "Sample"

// Result é o resultado de um processamento
type Result struct {
	Samples     int
	Peaks       []recorder.PeakRow
	BPMHistory  []float64
	WindowedBPM float64
	Threshold   float64
	Duration    time.Duration // duração do sinal em tempo de amostra
}

// ReadColumn lê uma coluna numérica de um CSV. A primeira linha é tratada
// como cabeçalho quando não é numérica; sem cabeçalho usa a primeira coluna.
func ReadColumn(r io.Reader, column string) ([]float64, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("erro ao ler CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	idx := 0
	start := 0
	if !isNumericRow(records[0]) {
		start = 1
		idx = -1
		for i, name := range records[0] {
			if strings.EqualFold(strings.TrimSpace(name), column) {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("%w: %q em %v", ErrColumnNotFound, column, records[0])
		}
	}

	values := make([]float64, 0, len(records)-start)
	for line, rec := range records[start:] {
		if idx >= len(rec) {
			return nil, fmt.Errorf("linha %d: esperadas %d colunas, encontradas %d", line+start+1, idx+1, len(rec))
		}
		field := strings.TrimSpace(rec[idx])
		if field == "" {
			continue
		}
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return nil, fmt.Errorf("linha %d: valor inválido %q: %w", line+start+1, field, err)
		}
		values = append(values, v)
	}
	return values, nil
}

func isNumericRow(rec []string) bool {
	if len(rec) == 0 {
		return false
	}
	_, err := strconv.ParseFloat(strings.TrimSpace(rec[0]), 64)
	return err == nil
}

// Run passa as amostras pelo detector na ordem. O timestamp de cada pico é
// índice/fs em segundos, e a média em janela é avaliada na última amostra.
// Na aquisição ao vivo o pico recebe o tempo da amostra que o confirmou,
// algumas amostras depois do índice (enquanto a janela integrada esvazia),
// então um pico rente ao início da janela pode entrar lá e ficar de fora aqui.
func Run(samples []float64, cfg detector.Config, window time.Duration) (*Result, error) {
	det, err := detector.New(cfg)
	if err != nil {
		return nil, err
	}
	fs := float64(cfg.SampleRate)
	est := rate.NewEstimator(cfg.SampleRate, window)

	res := &Result{Samples: len(samples)}
	add := func(p detector.Peak) {
		row := recorder.PeakRow{Index: p.Index, Value: p.Value}
		if bpm, ok := est.AddPeak(p.Index, float64(p.Index)/fs); ok {
			row.BPM = utils.RoundTo(bpm, 1)
		}
		res.Peaks = append(res.Peaks, row)
	}

	for _, v := range samples {
		if p, ok := det.Process(v); ok {
			add(p)
		}
	}
	if p, ok := det.Flush(); ok {
		add(p)
	}

	if len(samples) > 0 {
		res.WindowedBPM = est.WindowedBPM(float64(len(samples)-1) / fs)
	}
	res.BPMHistory = est.History()
	res.Threshold = det.Threshold()
	res.Duration = time.Duration(float64(len(samples)) / fs * float64(time.Second))
	return res, nil
}

// WritePeaks grava os picos no formato do arquivo de picos do recorder
func WritePeaks(path string, peaks []recorder.PeakRow) error {
	out, err := recorder.NewCSVLogger(path, recorder.PeakHeader, len(peaks)+1)
	if err != nil {
		return err
	}
	for _, p := range peaks {
		out.Log(recorder.FormatPeak(p))
	}
	return out.Close()
}
