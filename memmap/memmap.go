// Package memmap draws which owner holds each physical frame.
package memmap

import (
	"fmt"
	"image/color"
	"io"
	"math"

	"github.com/fogleman/gg"
	"github.com/pkg/errors"

	"github.com/aryanA101a/svm-go/vm"
)

type Options struct {
	Columns int // frames per row
	Cell    int // cell edge in pixels
	Labels  bool
}

func DefaultOptions() Options {
	return Options{Columns: 16, Cell: 24, Labels: true}
}

var (
	freeColor    = color.RGBA{0xdd, 0xdd, 0xdd, 0xff}
	kernelColor  = color.RGBA{0x46, 0x82, 0xb4, 0xff}
	unknownColor = color.RGBA{0xd0, 0x20, 0x20, 0xff}
)

// OwnerColor is the fill used for a frame owner as reported by
// vm.Kernel.FrameOwners.
func OwnerColor(owner int64) color.RGBA {
	switch owner {
	case vm.OwnerFree:
		return freeColor
	case vm.OwnerKernel:
		return kernelColor
	case vm.OwnerUnknown:
		return unknownColor
	}
	// spread process hues by the golden angle
	h := math.Mod(float64(owner)*137.508, 360)
	return hsv(h, 0.55, 0.85)
}

// Render lays the frames out row by row, frame 0 top left.
func Render(owners []int64, opt Options) *gg.Context {
	if opt.Columns <= 0 {
		opt.Columns = 16
	}
	if opt.Cell <= 0 {
		opt.Cell = 24
	}
	rows := (len(owners) + opt.Columns - 1) / opt.Columns
	if rows == 0 {
		rows = 1
	}
	cell := float64(opt.Cell)
	dc := gg.NewContext(opt.Columns*opt.Cell, rows*opt.Cell)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	for i, owner := range owners {
		x := float64(i%opt.Columns) * cell
		y := float64(i/opt.Columns) * cell
		dc.DrawRectangle(x, y, cell, cell)
		dc.SetColor(OwnerColor(owner))
		dc.Fill()

		dc.DrawRectangle(x, y, cell, cell)
		dc.SetRGB(1, 1, 1)
		dc.SetLineWidth(1)
		dc.Stroke()

		if opt.Labels && owner >= 0 {
			dc.SetRGB(0, 0, 0)
			dc.DrawStringAnchored(fmt.Sprint(owner), x+cell/2, y+cell/2, 0.5, 0.5)
		}
	}
	return dc
}

func WritePNG(w io.Writer, owners []int64, opt Options) error {
	return errors.Wrap(Render(owners, opt).EncodePNG(w), "encode frame map")
}

func SavePNG(path string, owners []int64, opt Options) error {
	return errors.Wrapf(Render(owners, opt).SavePNG(path), "save frame map to %s", path)
}

func hsv(h, s, v float64) color.RGBA {
	c := v * s
	x := c * (1 - math.Abs(math.Mod(h/60, 2)-1))
	m := v - c
	var r, g, b float64
	switch {
	case h < 60:
		r, g, b = c, x, 0
	case h < 120:
		r, g, b = x, c, 0
	case h < 180:
		r, g, b = 0, c, x
	case h < 240:
		r, g, b = 0, x, c
	case h < 300:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}
	return color.RGBA{
		R: uint8(math.Round((r + m) * 255)),
		G: uint8(math.Round((g + m) * 255)),
		B: uint8(math.Round((b + m) * 255)),
		A: 0xff,
	}
}
