package minidump

import (
	"fmt"
	"strings"
)

// Hexdump formats data as rows of 16 bytes, each prefixed by its address
// (start plus the row offset) and followed by the printable ASCII bytes.
func Hexdump(data []byte, start uint64) string {
	const width = 16
	var sb strings.Builder
	for off := 0; off < len(data); off += width {
		row := data[off:min(off+width, len(data))]
		fmt.Fprintf(&sb, "%016x  ", start+uint64(off))
		for k := 0; k < width; k++ {
			if k == width/2 {
				sb.WriteByte(' ')
			}
			if k < len(row) {
				fmt.Fprintf(&sb, "%02x ", row[k])
			} else {
				sb.WriteString("   ")
			}
		}
		sb.WriteString(" |")
		for _, c := range row {
			if 0x20 <= c && c < 0x7f {
				sb.WriteByte(c)
			} else {
				sb.WriteByte('.')
			}
		}
		sb.WriteString("|\n")
	}
	return sb.String()
}
