package memmap

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/aryanA101a/svm-go/vm"
)

func TestOwnerColor(t *testing.T) {
	if OwnerColor(vm.OwnerFree) == OwnerColor(vm.OwnerKernel) {
		t.Errorf("free and kernel frames share a color")
	}
	seen := map[[3]uint8]int64{}
	for owner := int64(0); owner < 8; owner++ {
		c := OwnerColor(owner)
		key := [3]uint8{c.R, c.G, c.B}
		if prev, dup := seen[key]; dup {
			t.Errorf("processes %d and %d share a color", prev, owner)
		}
		seen[key] = owner
	}
}

func TestWritePNG(t *testing.T) {
	owners := []int64{vm.OwnerKernel, vm.OwnerFree, 0, 1, vm.OwnerUnknown}
	opt := Options{Columns: 4, Cell: 10}

	var buf bytes.Buffer
	if err := WritePNG(&buf, owners, opt); err != nil {
		t.Fatalf("WritePNG: %v", err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("png.Decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 40 || b.Dy() != 20 {
		t.Fatalf("expected a 40x20 image, got %v", b)
	}
	for i, owner := range owners {
		x := (i%opt.Columns)*opt.Cell + 3
		y := (i/opt.Columns)*opt.Cell + 3
		r, g, b, _ := img.At(x, y).RGBA()
		want := OwnerColor(owner)
		if uint8(r>>8) != want.R || uint8(g>>8) != want.G || uint8(b>>8) != want.B {
			t.Errorf("frame %d: pixel (%d,%d) is %02x%02x%02x, expected %02x%02x%02x",
				i, x, y, r>>8, g>>8, b>>8, want.R, want.G, want.B)
		}
	}
}
