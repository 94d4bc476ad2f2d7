package utils

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// RoundTo arredonda um valor para o número de casas decimais indicado
func RoundTo(value float64, decimals int) float64 {
	if math.IsInf(value, 0) || math.IsNaN(value) {
		return value
	}
	p := math.Pow(10, float64(decimals))
	return math.Round(value*p) / p
}

// Float32ToBytes converte um valor float32 para bytes (IEEE 754, big endian como no S7)
func Float32ToBytes(val float32) []byte {
	bytes := make([]byte, 4)
	binary.BigEndian.PutUint32(bytes, math.Float32bits(val))
	return bytes
}

// BytesToFloat32 converte bytes (IEEE 754, big endian) para float32
func BytesToFloat32(bytes []byte) float32 {
	return math.Float32frombits(binary.BigEndian.Uint32(bytes))
}

// Int16ToBytes converte um valor int16 para bytes
func Int16ToBytes(val int16) []byte {
	bytes := make([]byte, 2)
	binary.BigEndian.PutUint16(bytes, uint16(val))
	return bytes
}

// Int32ToBytes converte um valor int32 para bytes
func Int32ToBytes(val int32) []byte {
	bytes := make([]byte, 4)
	binary.BigEndian.PutUint32(bytes, uint32(val))
	return bytes
}

// FormatFloat formata um float com precisão específica, sem zeros à direita
func FormatFloat(value float64, precision int) string {
	format := "%." + strconv.Itoa(precision) + "f"
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf(format, value), "0"), ".")
}

// HexDump formata os primeiros n bytes em hexadecimal para depuração
func HexDump(data []byte, n int) string {
	if n > len(data) {
		n = len(data)
	}
	var sb strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&sb, "%02X ", data[i])
	}
	return strings.TrimSpace(sb.String())
}
