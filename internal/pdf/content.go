package pdf

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/font"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/color"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/draw"
	"golang.org/x/text/encoding/charmap"
)

const (
	helveticaResource = "FFHelv"
	dingbatsResource  = "FFZaDb"

	helvetica = "Helvetica"
	dingbats  = "ZapfDingbats"

	// check mark glyph in ZapfDingbats.
	checkGlyph = "4"

	lineSpacing = 1.15
)

// winAnsi transcodes s to WinAnsiEncoding bytes. Runes outside the code
// page become '?' and are counted in replaced.
func winAnsi(s string) (out []byte, replaced int) {
	out = make([]byte, 0, len(s))
	for _, r := range s {
		if r < 0x80 {
			out = append(out, byte(r))
			continue
		}
		if b, ok := charmap.Windows1252.EncodeRune(r); ok {
			out = append(out, b)
			continue
		}
		out = append(out, '?')
		replaced++
	}
	return out, replaced
}

func encode(s string) []byte {
	b, _ := winAnsi(s)
	return b
}

// textWidth is the advance width of WinAnsi-encoded b in Helvetica at size.
func textWidth(b []byte, size float64) float64 {
	return font.TextWidth(string(b), helvetica, 1) * size
}

// escapeLiteral writes b as the body of a PDF literal string. Bytes outside
// printable ASCII are written as octal escapes.
func escapeLiteral(b []byte) string {
	var sb strings.Builder
	for _, c := range b {
		switch c {
		case '\\', '(', ')':
			sb.WriteByte('\\')
			sb.WriteByte(c)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		case '\t':
			sb.WriteString(`\t`)
		default:
			if c < 0x20 || c > 0x7e {
				fmt.Fprintf(&sb, `\%03o`, c)
			} else {
				sb.WriteByte(c)
			}
		}
	}
	return sb.String()
}

func num(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}

// wrapText splits text into lines no wider than width at fontSize.
// Explicit newlines are kept; a single word wider than the line is left
// whole and clipped when drawn.
func wrapText(text string, width, fontSize float64) [][]byte {
	var lines [][]byte
	for _, para := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			lines = append(lines, nil)
			continue
		}
		line := encode(words[0])
		for _, word := range words[1:] {
			enc := encode(word)
			candidate := append(append(append([]byte{}, line...), ' '), enc...)
			if textWidth(candidate, fontSize) <= width {
				line = candidate
				continue
			}
			lines = append(lines, line)
			line = enc
		}
		lines = append(lines, line)
	}
	return lines
}

// textOps renders text inside r with Helvetica at fontSize, clipped to r.
// Boxes shorter than two lines center a single baseline vertically;
// taller boxes flow from the top.
func textOps(r Rect, text string, fontSize float64) []byte {
	lines := wrapText(text, r.Width(), fontSize)
	lead := fontSize * lineSpacing

	var b bytes.Buffer
	fmt.Fprintf(&b, "q\n%s %s %s %s re W n\n", num(r.LLX), num(r.LLY), num(r.Width()), num(r.Height()))
	b.WriteString("BT\n")
	fmt.Fprintf(&b, "/%s %s Tf\n0 g\n", helveticaResource, num(fontSize))

	var y float64
	if r.Height() < 2*lead {
		y = r.LLY + (r.Height()-0.7*fontSize)/2
	} else {
		y = r.URY - fontSize
	}
	fmt.Fprintf(&b, "%s %s Td\n", num(r.LLX), num(y))
	for i, line := range lines {
		if i > 0 {
			fmt.Fprintf(&b, "0 %s Td\n", num(-lead))
		}
		fmt.Fprintf(&b, "(%s) Tj\n", escapeLiteral(line))
	}
	b.WriteString("ET\nQ\n")
	return b.Bytes()
}

// checkOps centers a ZapfDingbats check mark in r.
func checkOps(r Rect) []byte {
	size := math.Min(r.Width(), r.Height()) * 0.8
	cx, cy := r.Center()
	x := cx - font.TextWidth(checkGlyph, dingbats, 1)*size/2
	y := cy - 0.35*size

	var b bytes.Buffer
	b.WriteString("q\nBT\n")
	fmt.Fprintf(&b, "/%s %s Tf\n0 g\n", dingbatsResource, num(size))
	fmt.Fprintf(&b, "%s %s Td\n(%s) Tj\n", num(x), num(y), checkGlyph)
	b.WriteString("ET\nQ\n")
	return b.Bytes()
}

// circleOps fills a black circle of radius rad centered at (cx, cy).
func circleOps(cx, cy, rad float64) []byte {
	var b bytes.Buffer
	fill := color.Black
	draw.DrawCircle(&b, cx, cy, rad, color.Black, &fill)
	b.WriteString("\n")
	return b.Bytes()
}
