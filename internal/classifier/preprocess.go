package classifier

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/nfnt/resize"

	"github.com/Brownie44l1/lesion-api/internal/model"
)

const channels = 3

// scaleToInput resizes img to size x size. Images already at the target size
// are returned untouched so that no filtering is applied to them.
func scaleToInput(img image.Image, size int, interp resize.InterpolationFunction) (image.Image, error) {
	if img == nil {
		return nil, errors.New("nil image")
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("image has zero area (%dx%d)", b.Dx(), b.Dy())
	}
	if b.Dx() == size && b.Dy() == size {
		return img, nil
	}
	return resize.Resize(uint(size), uint(size), img, interp), nil
}

// tensorShape returns the input shape for a single square image.
func tensorShape(size int, layout Layout) []int64 {
	s := int64(size)
	if layout == LayoutNHWC {
		return []int64{1, s, s, channels}
	}
	return []int64{1, channels, s, s}
}

// toTensor normalizes a size x size image into a float tensor. Pixels are
// visited row-major; channel c of pixel (x, y) lands at c*H*W + y*W + x for
// NCHW and at (y*W + x)*3 + c for NHWC. Alpha is ignored.
func toTensor(img image.Image, size int, layout Layout) model.Tensor {
	b := img.Bounds()
	plane := size * size
	data := make([]float32, channels*plane)

	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			r := (float32(c.R) - imageMean) / imageStd
			g := (float32(c.G) - imageMean) / imageStd
			bl := (float32(c.B) - imageMean) / imageStd

			pixel := y*size + x
			if layout == LayoutNHWC {
				base := pixel * channels
				data[base] = r
				data[base+1] = g
				data[base+2] = bl
				continue
			}
			data[pixel] = r
			data[plane+pixel] = g
			data[2*plane+pixel] = bl
		}
	}

	return model.Tensor{Shape: tensorShape(size, layout), Data: data}
}
