package recorder

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ecg_go/pkg/utils"
)

// Metadata descreve uma gravação
type Metadata struct {
	FileName    string
	StartedAt   time.Time
	Duration    time.Duration
	SampleRate  int
	SampleWidth int
	Samples     int64
	Peaks       int
	Sensor      string
	Transport   string
	Notes       []string
}

// ExpectedSamples retorna quantas amostras a duração deveria produzir
func (m Metadata) ExpectedSamples() int64 {
	return int64(m.Duration.Seconds() * float64(m.SampleRate))
}

func (m Metadata) adcResolution() string {
	if m.SampleWidth == 1 {
		return "8-bit (0-255)"
	}
	return "12-bit (0-4095)"
}

// String formata o conteúdo do arquivo de metadados
func (m Metadata) String() string {
	rule := strings.Repeat("=", 50)

	var b strings.Builder
	fmt.Fprintf(&b, "ECG RECORDING METADATA\n%s\n\n", rule)
	b.WriteString("Recording Information:\n")
	fmt.Fprintf(&b, "- File Name: %s\n", m.FileName)
	fmt.Fprintf(&b, "- Date/Time: %s\n", utils.FormatDateTime(m.StartedAt))
	fmt.Fprintf(&b, "- Duration: %s\n", utils.FormatDuration(m.Duration))
	fmt.Fprintf(&b, "- Sampling Rate: %d Hz\n", m.SampleRate)
	fmt.Fprintf(&b, "- Total Expected Samples: %d\n", m.ExpectedSamples())
	fmt.Fprintf(&b, "- Total Received Samples: %d\n", m.Samples)
	fmt.Fprintf(&b, "- Detected R-peaks: %d\n\n", m.Peaks)

	b.WriteString("Dataset Details:\n")
	fmt.Fprintf(&b, "- Sensor: %s\n", m.Sensor)
	fmt.Fprintf(&b, "- Data Transport: %s\n", m.Transport)
	fmt.Fprintf(&b, "- ADC Resolution: %s\n\n", m.adcResolution())

	fmt.Fprintf(&b, "%s\n\nUser Notes:\n", rule)
	if len(m.Notes) == 0 {
		b.WriteString("  (No additional user notes provided)\n")
	}
	for _, note := range m.Notes {
		fmt.Fprintf(&b, "  %s\n", note)
	}
	fmt.Fprintf(&b, "\n%s\nEnd of metadata file\n", rule)
	return b.String()
}

// WriteMetadata grava o arquivo de metadados no diretório da gravação
func WriteMetadata(dir, name string, m Metadata) (string, error) {
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(m.String()), 0644); err != nil {
		return "", fmt.Errorf("erro ao gravar metadados: %w", err)
	}
	return path, nil
}
