// Package frame converts between flattened pixel observations and Go
// images.
//
// Flattened frames are stored in row-major (height, width, channels)
// order with values in [0, 255]. Only 1 (grayscale) and 3 (RGB) channels
// are supported.
package frame

import (
	"fmt"
	"image"
	"image/color"
)

// ToImage converts a flattened frame of the given shape to an image.
// Grayscale frames are returned as *image.Gray and RGB frames as
// *image.RGBA.
func ToImage(data []float64, shape []int) (image.Image, error) {
	if len(shape) != 3 {
		return nil, fmt.Errorf("toimage: frames must have shape (h, w, c)"+
			"\n\twant(3 dims)\n\thave(%v)", shape)
	}
	h, w, c := shape[0], shape[1], shape[2]
	if len(data) != h*w*c {
		return nil, fmt.Errorf("toimage: invalid frame size\n\twant(%v)"+
			"\n\thave(%v)", h*w*c, len(data))
	}

	switch c {
	case 1:
		img := image.NewGray(image.Rect(0, 0, w, h))
		for i, v := range data {
			img.Pix[i] = toByte(v)
		}
		return img, nil

	case 3:
		img := image.NewRGBA(image.Rect(0, 0, w, h))
		for i := 0; i < h*w; i++ {
			img.Pix[4*i] = toByte(data[3*i])
			img.Pix[4*i+1] = toByte(data[3*i+1])
			img.Pix[4*i+2] = toByte(data[3*i+2])
			img.Pix[4*i+3] = 0xff
		}
		return img, nil
	}

	return nil, fmt.Errorf("toimage: unsupported number of channels %v", c)
}

// FromRGB flattens an image into an RGB frame of shape (h, w, 3)
func FromRGB(img image.Image) []float64 {
	bounds := img.Bounds()
	h, w := bounds.Dy(), bounds.Dx()
	data := make([]float64, 0, h*w*3)

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
			data = append(data, float64(c.R), float64(c.G), float64(c.B))
		}
	}
	return data
}

// FromGray flattens a grayscale image into a frame of shape (h, w, 1)
func FromGray(img *image.Gray) []float64 {
	bounds := img.Bounds()
	data := make([]float64, 0, bounds.Dx()*bounds.Dy())

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		row := img.Pix[img.PixOffset(bounds.Min.X, y):]
		for x := 0; x < bounds.Dx(); x++ {
			data = append(data, float64(row[x]))
		}
	}
	return data
}

// toByte clips a pixel value to a byte
func toByte(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	}
	return uint8(v + 0.5)
}
