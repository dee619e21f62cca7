package scene

import (
	"fmt"
	"image"
	_ "image/png"
	"os"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// Texture holds a decoded intensity map sampled at hit points. Texels are
// luminance values normalized to [0, 1].
type Texture struct {
	width  int
	height int
	texels []float32
}

func NewTextureFromImage(img image.Image) *Texture {
	b := img.Bounds()
	t := &Texture{
		width:  b.Dx(),
		height: b.Dy(),
		texels: make([]float32, b.Dx()*b.Dy()),
	}
	for y := 0; y < t.height; y++ {
		for x := 0; x < t.width; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			// Rec. 601 luma over 16-bit channels
			luma := 0.299*float32(r) + 0.587*float32(g) + 0.114*float32(bl)
			t.texels[y*t.width+x] = luma / 65535.0
		}
	}
	return t
}

// LoadTexture decodes an intensity texture from disk. PNG, BMP and TIFF
// are registered.
func LoadTexture(path string) (*Texture, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open texture: %w", err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode texture %s: %w", path, err)
	}
	return NewTextureFromImage(img), nil
}

// NewUniformTexture returns a single-texel texture, useful in tests.
func NewUniformTexture(value float32) *Texture {
	return &Texture{width: 1, height: 1, texels: []float32{value}}
}

// Sample bilinearly interpolates the intensity at (u, v) in [0, 1]^2.
// Coordinates outside the unit square are clamped.
func (t *Texture) Sample(u, v float32) float32 {
	fx := clamp01(u) * float32(t.width-1)
	fy := clamp01(v) * float32(t.height-1)
	x0, y0 := int(fx), int(fy)
	x1, y1 := x0+1, y0+1
	if x1 >= t.width {
		x1 = t.width - 1
	}
	if y1 >= t.height {
		y1 = t.height - 1
	}
	ax := fx - float32(x0)
	ay := fy - float32(y0)

	top := lerp(t.texels[y0*t.width+x0], t.texels[y0*t.width+x1], ax)
	bot := lerp(t.texels[y1*t.width+x0], t.texels[y1*t.width+x1], ax)
	return lerp(top, bot, ay)
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func lerp(a, b, t float32) float32 { return a + (b-a)*t }
