package assets

import (
	"image"
	"testing"
)

func TestNeedleModelImage(t *testing.T) {
	img, err := NeedleModelImage()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := img.Bounds(); got != image.Rect(0, 0, 48, 48) {
		t.Fatalf("bounds = %v", got)
	}
	r, _, _, _ := img.At(24, 24).RGBA()
	if r != 0 {
		t.Fatalf("center should be dark, got %d", r)
	}
	r, _, _, _ = img.At(0, 0).RGBA()
	if r != 0xffff {
		t.Fatalf("corner should be white, got %d", r)
	}
}
