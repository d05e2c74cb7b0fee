package stats

import "fmt"

var byteUnits = []string{"Bytes", "KB", "MB", "GB"}

// FormatBytes renders n with base-1024 units and two decimals, e.g. 1536 is
// "1.50 KB". Values past the GB range stay in GB.
func FormatBytes(n int64) string {
	if n == 0 {
		return "0 Bytes"
	}
	abs := n
	if abs < 0 {
		abs = -abs
	}
	i := 0
	div := int64(1)
	for i < len(byteUnits)-1 && abs >= div*1024 {
		div *= 1024
		i++
	}
	return fmt.Sprintf("%.2f %s", float64(n)/float64(div), byteUnits[i])
}
