package frame

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRGBRoundTrip(t *testing.T) {
	data := []float64{
		255, 0, 0, 0, 255, 0,
		0, 0, 255, 10, 20, 30,
	}
	img, err := ToImage(data, []int{2, 2, 3})
	require.NoError(t, err)
	require.IsType(t, &image.RGBA{}, img)

	assert.Equal(t, data, FromRGB(img))
}

func TestGray(t *testing.T) {
	data := []float64{0, 64, 128, 300, -4, 255}
	img, err := ToImage(data, []int{2, 3, 1})
	require.NoError(t, err)

	gray, ok := img.(*image.Gray)
	require.True(t, ok)
	assert.Equal(t, []float64{0, 64, 128, 255, 0, 255}, FromGray(gray))
}

func TestToImageErrors(t *testing.T) {
	_, err := ToImage(make([]float64, 4), []int{2, 2})
	assert.Error(t, err)

	_, err = ToImage(make([]float64, 5), []int{2, 2, 1})
	assert.Error(t, err)

	_, err = ToImage(make([]float64, 8), []int{2, 2, 2})
	assert.Error(t, err)
}
