// internal/enhance/enhance.go

// Package enhance normalizes meal photos before they are sent to the
// vision model. Every step is a pure function of the pixel data, so the
// same input always yields byte-identical output.
package enhance

import (
	"image"
	"math"

	"golang.org/x/image/draw"
)

const (
	// Size is the square edge, in pixels, the vision model receives.
	Size = 768

	// WhiteBalanceGain scales the chroma shift toward neutral.
	WhiteBalanceGain = 1.1

	// Gamma is applied to every RGB channel after equalization.
	Gamma = 1.1

	neutral = 128.0
)

var gammaLUT = buildGammaLUT(Gamma)

// Enhance resizes src to Size×Size, removes color casts, equalizes
// luminance and applies gamma correction, in that order.
func Enhance(src image.Image) *image.RGBA {
	dst := resize(src)
	whiteBalance(dst)
	equalizeLuma(dst)
	applyGamma(dst)
	return dst
}

// resize stretches src to the model resolution; aspect ratio is not kept.
func resize(src image.Image) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, Size, Size))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xff
	}
	return dst
}

// whiteBalance shifts the a and b channels of 8-bit L*a*b* toward neutral
// in proportion to their mean offset and the pixel's lightness.
func whiteBalance(img *image.RGBA) {
	n := len(img.Pix) / 4
	if n == 0 {
		return
	}
	ls := make([]uint8, n)
	as := make([]uint8, n)
	bs := make([]uint8, n)

	var sumA, sumB float64
	for i := 0; i < n; i++ {
		p := img.Pix[i*4 : i*4+3]
		ls[i], as[i], bs[i] = rgbToLab(p[0], p[1], p[2])
		sumA += float64(as[i])
		sumB += float64(bs[i])
	}
	avgA := sumA / float64(n)
	avgB := sumB / float64(n)

	for i := 0; i < n; i++ {
		weight := float64(ls[i]) / 255.0 * WhiteBalanceGain
		a := clamp8(float64(as[i]) - (avgA-neutral)*weight)
		b := clamp8(float64(bs[i]) - (avgB-neutral)*weight)
		img.Pix[i*4], img.Pix[i*4+1], img.Pix[i*4+2] = labToRGB(ls[i], a, b)
	}
}

// equalizeLuma equalizes the Y channel of YCrCb and leaves chroma alone.
func equalizeLuma(img *image.RGBA) {
	n := len(img.Pix) / 4
	if n == 0 {
		return
	}
	ys := make([]uint8, n)
	crs := make([]uint8, n)
	cbs := make([]uint8, n)

	var hist [256]int
	for i := 0; i < n; i++ {
		p := img.Pix[i*4 : i*4+3]
		ys[i], crs[i], cbs[i] = rgbToYCrCb(p[0], p[1], p[2])
		hist[ys[i]]++
	}

	lut := equalizeLUT(hist, n)
	for i := 0; i < n; i++ {
		img.Pix[i*4], img.Pix[i*4+1], img.Pix[i*4+2] = yCrCbToRGB(lut[ys[i]], crs[i], cbs[i])
	}
}

// equalizeLUT builds the histogram equalization mapping: the first
// occupied bin maps to 0 and the cumulative count is stretched to 255.
func equalizeLUT(hist [256]int, total int) [256]uint8 {
	var lut [256]uint8
	i := 0
	for i < 256 && hist[i] == 0 {
		i++
	}
	if i == 256 {
		return lut
	}
	if hist[i] == total {
		for j := range lut {
			lut[j] = uint8(i)
		}
		return lut
	}

	scale := 255.0 / float64(total-hist[i])
	sum := 0
	for i++; i < 256; i++ {
		sum += hist[i]
		lut[i] = clamp8(float64(sum) * scale)
	}
	return lut
}

func applyGamma(img *image.RGBA) {
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = gammaLUT[img.Pix[i]]
		img.Pix[i+1] = gammaLUT[img.Pix[i+1]]
		img.Pix[i+2] = gammaLUT[img.Pix[i+2]]
	}
}

// buildGammaLUT maps v to (v/255)^gamma rescaled to 8 bits, truncating.
func buildGammaLUT(gamma float64) [256]uint8 {
	var lut [256]uint8
	for v := range lut {
		lut[v] = uint8(math.Pow(float64(v)/255.0, gamma) * 255.0)
	}
	return lut
}

// rgbToLab converts sRGB to 8-bit L*a*b* (D65): L is scaled to 0..255 and
// a, b are offset by 128.
func rgbToLab(r, g, b uint8) (uint8, uint8, uint8) {
	rl, gl, bl := linearize(r), linearize(g), linearize(b)

	x := (0.412453*rl + 0.357580*gl + 0.180423*bl) / 0.950456
	y := 0.212671*rl + 0.715160*gl + 0.072169*bl
	z := (0.019334*rl + 0.119193*gl + 0.950227*bl) / 1.088754

	fx, fy, fz := labF(x), labF(y), labF(z)
	var l float64
	if y > 0.008856 {
		l = 116.0*math.Cbrt(y) - 16.0
	} else {
		l = 903.3 * y
	}
	a := 500.0 * (fx - fy)
	bb := 200.0 * (fy - fz)

	return clamp8(l * 255.0 / 100.0), clamp8(a + neutral), clamp8(bb + neutral)
}

func labToRGB(l8, a8, b8 uint8) (uint8, uint8, uint8) {
	l := float64(l8) * 100.0 / 255.0
	a := float64(a8) - neutral
	b := float64(b8) - neutral

	fy := (l + 16.0) / 116.0
	fx := fy + a/500.0
	fz := fy - b/200.0

	var y float64
	if l > 7.9996 {
		y = fy * fy * fy
	} else {
		y = l / 903.3
	}
	x := labFInv(fx) * 0.950456
	z := labFInv(fz) * 1.088754

	rl := 3.240479*x - 1.537150*y - 0.498535*z
	gl := -0.969256*x + 1.875991*y + 0.041556*z
	bl := 0.055648*x - 0.204043*y + 1.057311*z

	return delinearize(rl), delinearize(gl), delinearize(bl)
}

func labF(t float64) float64 {
	if t > 0.008856 {
		return math.Cbrt(t)
	}
	return 7.787*t + 16.0/116.0
}

func labFInv(f float64) float64 {
	if c := f * f * f; c > 0.008856 {
		return c
	}
	return (f - 16.0/116.0) / 7.787
}

func linearize(v uint8) float64 {
	c := float64(v) / 255.0
	if c <= 0.04045 {
		return c / 12.92
	}
	return math.Pow((c+0.055)/1.055, 2.4)
}

func delinearize(c float64) uint8 {
	switch {
	case c <= 0:
		return 0
	case c >= 1:
		return 255
	case c <= 0.0031308:
		return clamp8(c * 12.92 * 255.0)
	}
	return clamp8((1.055*math.Pow(c, 1/2.4) - 0.055) * 255.0)
}

func rgbToYCrCb(r, g, b uint8) (uint8, uint8, uint8) {
	y := 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
	cr := (float64(r)-y)*0.713 + neutral
	cb := (float64(b)-y)*0.564 + neutral
	return clamp8(y), clamp8(cr), clamp8(cb)
}

func yCrCbToRGB(y8, cr8, cb8 uint8) (uint8, uint8, uint8) {
	y := float64(y8)
	cr := float64(cr8) - neutral
	cb := float64(cb8) - neutral
	return clamp8(y + 1.403*cr), clamp8(y - 0.714*cr - 0.344*cb), clamp8(y + 1.773*cb)
}

// clamp8 rounds v to the nearest integer and saturates it to 0..255.
func clamp8(v float64) uint8 {
	v = math.Round(v)
	switch {
	case math.IsNaN(v) || v <= 0:
		return 0
	case v >= 255:
		return 255
	}
	return uint8(v)
}
