package preprocess

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"

	"github.com/nfnt/resize"
)

const (
	// InputSize is the square resolution the classifier was trained on.
	InputSize = 224
	// Channels is RGB.
	Channels = 3
	// MaxPixels caps the declared size of an upload. Decoders allocate the
	// full pixel buffer from the header before reading any pixel data.
	MaxPixels = 40_000_000
)

// ErrDecode marks uploads that could not be decoded as JPEG or PNG.
var ErrDecode = errors.New("cannot decode image")

// Decode turns uploaded bytes into an RGB image. It returns the format
// name reported by the decoder.
func Decode(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: empty upload", ErrDecode)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, "", fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrDecode, cfg.Width, cfg.Height, MaxPixels)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return nil, "", fmt.Errorf("%w: zero-sized image", ErrDecode)
	}
	return toRGB(img), format, nil
}

// Preprocess runs the full pipeline on uploaded bytes.
func Preprocess(data []byte) (*Tensor, error) {
	img, _, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return FromImage(img), nil
}

// FromImage resizes img to InputSize x InputSize, adds the batch axis and
// scales intensities to [0,1]. No cropping or mean subtraction.
func FromImage(img image.Image) *Tensor {
	resized := resize.Resize(InputSize, InputSize, img, resize.Bicubic)

	t := &Tensor{
		Shape: InputShape,
		Data:  intensities(resized),
	}
	for i, v := range t.Data {
		t.Data[i] = v / 255.0
	}
	return t
}

// intensities returns the HWC pixel values of img in [0,255].
func intensities(img image.Image) []float32 {
	b := img.Bounds()
	out := make([]float32, 0, b.Dx()*b.Dy()*Channels)

	if rgba, ok := img.(*image.RGBA); ok {
		for y := b.Min.Y; y < b.Max.Y; y++ {
			row := rgba.Pix[rgba.PixOffset(b.Min.X, y):]
			for x := 0; x < b.Dx(); x++ {
				p := row[x*4 : x*4+3]
				out = append(out, float32(p[0]), float32(p[1]), float32(p[2]))
			}
		}
		return out
	}

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
			out = append(out, float32(c.R), float32(c.G), float32(c.B))
		}
	}
	return out
}

// toRGB flattens any decoded image into opaque 8-bit RGB. Alpha is
// discarded, not composited, and the straight colour values are kept.
func toRGB(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			dst.SetRGBA(x-b.Min.X, y-b.Min.Y, color.RGBA{R: c.R, G: c.G, B: c.B, A: 0xff})
		}
	}
	return dst
}
