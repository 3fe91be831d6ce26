package assets

import (
	"bytes"
	_ "embed"
	"image"
	"image/png"

	"github.com/pkg/errors"
)

// NeedleModelPNG contains the raw PNG bytes of the default needle-tip model: a dark
// disc on a white background.
//
//go:embed needle_model.png
var NeedleModelPNG []byte

// NeedleModelImage decodes the embedded PNG into an image.Image.
func NeedleModelImage() (image.Image, error) {
	if len(NeedleModelPNG) == 0 {
		return nil, errors.New("embedded needle_model.png is empty")
	}
	img, err := png.Decode(bytes.NewReader(NeedleModelPNG))
	if err != nil {
		return nil, errors.Wrap(err, "decode needle_model.png")
	}
	return img, nil
}
