package services

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"strings"

	"github.com/skip2/go-qrcode"
)

// ESC/POS Commands
const (
	ESC byte = 0x1B
	GS  byte = 0x1D
	NL  byte = 0x0A
)

// escposDoc accumulates ESC/POS commands for one ticket
type escposDoc struct {
	buffer     bytes.Buffer
	paperWidth int // mm, 58 or 80
}

func newEscposDoc(paperWidth int) *escposDoc {
	if paperWidth != 58 {
		paperWidth = 80
	}
	return &escposDoc{paperWidth: paperWidth}
}

// columns returns the characters per line in the normal font
func (d *escposDoc) columns() int {
	if d.paperWidth == 58 {
		return 32
	}
	return 48
}

// dots returns the printable width at 203 DPI
func (d *escposDoc) dots() int {
	if d.paperWidth == 58 {
		return 288
	}
	return 384
}

func (d *escposDoc) init() {
	d.buffer.Write([]byte{ESC, '@'})
	// Code page 850 (Multilingual Latin 1)
	d.buffer.Write([]byte{ESC, 't', 2})
}

// removeDiacritics maps accented characters to ASCII for printers with
// limited character sets
func removeDiacritics(text string) string {
	replacements := map[rune]rune{
		'á': 'a', 'Á': 'A',
		'é': 'e', 'É': 'E',
		'í': 'i', 'Í': 'I',
		'ó': 'o', 'Ó': 'O',
		'ú': 'u', 'Ú': 'U',
		'ü': 'u', 'Ü': 'U',
		'ñ': 'n', 'Ñ': 'N',
		'ç': 'c', 'Ç': 'C',
		'¿': '?', '¡': '!',
		'€': 'E', '₹': 'R',
	}

	var b strings.Builder
	for _, r := range text {
		switch {
		case r < 128:
			b.WriteRune(r)
		case replacements[r] != 0:
			b.WriteRune(replacements[r])
		default:
			b.WriteRune(' ')
		}
	}
	return b.String()
}

func (d *escposDoc) write(text string) {
	d.buffer.WriteString(removeDiacritics(text))
}

func (d *escposDoc) writeLine(text string) {
	d.write(text)
	d.lineFeed()
}

func (d *escposDoc) lineFeed() {
	d.buffer.WriteByte(NL)
}

func (d *escposDoc) setAlign(align string) {
	var a byte
	switch align {
	case "center":
		a = 1
	case "right":
		a = 2
	}
	d.buffer.Write([]byte{ESC, 'a', a})
}

func (d *escposDoc) setEmphasize(on bool) {
	var e byte
	if on {
		e = 1
	}
	d.buffer.Write([]byte{ESC, 'E', e})
}

// setSize sets character magnification, 1 to 8 in each direction
func (d *escposDoc) setSize(width, height byte) {
	d.buffer.Write([]byte{GS, '!', ((width - 1) << 4) | (height - 1)})
}

func (d *escposDoc) separator() {
	d.writeLine(strings.Repeat("=", d.columns()))
}

func (d *escposDoc) cut() {
	d.buffer.Write([]byte{GS, 'V', 66, 0})
}

// printQRCode renders data as a bitmap QR code
func (d *escposDoc) printQRCode(data string, size int) error {
	qr, err := qrcode.New(data, qrcode.Medium)
	if err != nil {
		return fmt.Errorf("failed to generate QR code: %w", err)
	}
	return d.printImage(qr.Image(size))
}

// printImage writes img as a GS v 0 raster bitmap, scaled down to the paper width
func (d *escposDoc) printImage(img image.Image) error {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width == 0 || height == 0 {
		return fmt.Errorf("empty image")
	}

	if maxWidth := d.dots(); width > maxWidth {
		ratio := float64(width) / float64(maxWidth)
		newHeight := int(float64(height) / ratio)
		resized := image.NewRGBA(image.Rect(0, 0, maxWidth, newHeight))
		for y := 0; y < newHeight; y++ {
			for x := 0; x < maxWidth; x++ {
				resized.Set(x, y, img.At(bounds.Min.X+int(float64(x)*ratio), bounds.Min.Y+int(float64(y)*ratio)))
			}
		}
		img = resized
		bounds = img.Bounds()
		width, height = bounds.Dx(), bounds.Dy()
	}

	widthBytes := (width + 7) / 8

	d.lineFeed()
	// GS v 0 m xL xH yL yH d1...dk
	d.buffer.Write([]byte{
		GS, 'v', '0', 0,
		byte(widthBytes % 256), byte(widthBytes / 256),
		byte(height % 256), byte(height / 256),
	})

	for y := 0; y < height; y++ {
		for x := 0; x < width; x += 8 {
			var b byte
			for bit := 0; bit < 8; bit++ {
				px := x + bit
				if px < width && isDark(img.At(bounds.Min.X+px, bounds.Min.Y+y)) {
					b |= 1 << uint(7-bit)
				}
			}
			d.buffer.WriteByte(b)
		}
	}

	d.lineFeed()
	return nil
}

// isDark thresholds a pixel by luminance; transparent pixels count as white
func isDark(c color.Color) bool {
	r, g, b, a := c.RGBA()
	if a < 0x8000 {
		return false
	}
	gray := (299*(r>>8) + 587*(g>>8) + 114*(b>>8)) / 1000
	return gray < 128
}

func (d *escposDoc) Bytes() []byte {
	return d.buffer.Bytes()
}
