package preprocess

import (
	"errors"
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// MinWidth is the width small photos are upscaled to.
const MinWidth = 1000

const (
	maxSkewDegrees   = 10.0
	skewStepDegrees  = 0.5
	minApplySkew     = 0.5
	deskewSampleSide = 400
)

var errEmptyImage = errors.New("empty image")

// Grayscale converts to 8-bit luma.
func Grayscale(img image.Image) (image.Image, error) {
	b := img.Bounds()
	if b.Empty() {
		return nil, errEmptyImage
	}
	if g, ok := img.(*image.Gray); ok {
		return g, nil
	}
	gray := image.NewGray(b)
	draw.Draw(gray, b, img, b.Min, draw.Src)
	return gray, nil
}

// StretchContrast maps the 1st..99th luma percentiles onto 0..255.
// Flat images are returned unchanged.
func StretchContrast(img image.Image) (image.Image, error) {
	g, err := toGray(img)
	if err != nil {
		return nil, err
	}
	var hist [256]int
	for _, v := range g.Pix {
		hist[v]++
	}
	total := len(g.Pix)
	lo := percentile(hist, total, 0.01)
	hi := percentile(hist, total, 0.99)
	if hi <= lo {
		return g, nil
	}
	var lut [256]uint8
	scale := 255.0 / float64(hi-lo)
	for i := range lut {
		v := (float64(i) - float64(lo)) * scale
		lut[i] = uint8(math.Max(0, math.Min(255, math.Round(v))))
	}
	out := image.NewGray(g.Bounds())
	for i, v := range g.Pix {
		out.Pix[i] = lut[v]
	}
	return out, nil
}

func percentile(hist [256]int, total int, p float64) int {
	target := int(math.Ceil(float64(total) * p))
	seen := 0
	for i, n := range hist {
		seen += n
		if seen >= target {
			return i
		}
	}
	return 255
}

// Deskew estimates the text angle by maximizing the variance of the row
// projection profile of a binarized sample, then rotates the full image.
func Deskew(img image.Image) (image.Image, error) {
	g, err := toGray(img)
	if err != nil {
		return nil, err
	}
	angle := EstimateSkew(g)
	if math.Abs(angle) < minApplySkew {
		return g, nil
	}
	return Rotate(g, -angle), nil
}

// EstimateSkew returns the dominant text-line angle in degrees.
func EstimateSkew(g *image.Gray) float64 {
	sample := downscale(g, deskewSampleSide)
	dark := binarize(sample)
	if len(dark) == 0 {
		return 0
	}
	b := sample.Bounds()
	cx, cy := float64(b.Dx())/2, float64(b.Dy())/2

	best, bestScore := 0.0, -1.0
	for deg := -maxSkewDegrees; deg <= maxSkewDegrees+1e-9; deg += skewStepDegrees {
		rad := deg * math.Pi / 180
		sin, cos := math.Sin(rad), math.Cos(rad)
		rows := make(map[int]int, b.Dy())
		for _, p := range dark {
			x, y := float64(p.X)-cx, float64(p.Y)-cy
			rows[int(math.Round(y*cos-x*sin))]++
		}
		score := sumSquares(rows)
		if score > bestScore {
			best, bestScore = deg, score
		}
	}
	return best
}

// Rotate turns img by deg degrees around its centre, keeping its bounds and
// filling uncovered pixels with white.
func Rotate(g *image.Gray, deg float64) *image.Gray {
	b := g.Bounds()
	out := image.NewGray(b)
	draw.Draw(out, b, image.NewUniform(color.Gray{Y: 255}), image.Point{}, draw.Src)

	rad := deg * math.Pi / 180
	sin, cos := math.Sin(rad), math.Cos(rad)
	cx := float64(b.Min.X) + float64(b.Dx())/2
	cy := float64(b.Min.Y) + float64(b.Dy())/2
	// src -> dst: translate to origin, rotate, translate back
	m := f64.Aff3{
		cos, -sin, cx - cos*cx + sin*cy,
		sin, cos, cy - sin*cx - cos*cy,
	}
	draw.BiLinear.Transform(out, m, g, b, draw.Over, nil)
	return out
}

// Upscale enlarges images narrower than minWidth, keeping the aspect ratio.
func Upscale(img image.Image, minWidth int) (image.Image, error) {
	b := img.Bounds()
	if b.Empty() {
		return nil, errEmptyImage
	}
	if b.Dx() >= minWidth {
		return img, nil
	}
	h := int(math.Round(float64(b.Dy()) * float64(minWidth) / float64(b.Dx())))
	dst := image.NewGray(image.Rect(0, 0, minWidth, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst, nil
}

func toGray(img image.Image) (*image.Gray, error) {
	out, err := Grayscale(img)
	if err != nil {
		return nil, err
	}
	return out.(*image.Gray), nil
}

func downscale(g *image.Gray, side int) *image.Gray {
	b := g.Bounds()
	longest := max(b.Dx(), b.Dy())
	if longest <= side {
		return g
	}
	f := float64(side) / float64(longest)
	dst := image.NewGray(image.Rect(0, 0, max(1, int(float64(b.Dx())*f)), max(1, int(float64(b.Dy())*f))))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), g, b, draw.Src, nil)
	return dst
}

// binarize returns dark pixel coordinates using the mean luma as threshold.
func binarize(g *image.Gray) []image.Point {
	if len(g.Pix) == 0 {
		return nil
	}
	sum := 0
	for _, v := range g.Pix {
		sum += int(v)
	}
	threshold := uint8(sum / len(g.Pix) * 85 / 100)
	b := g.Bounds()
	var dark []image.Point
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if g.GrayAt(x, y).Y < threshold {
				dark = append(dark, image.Point{X: x - b.Min.X, Y: y - b.Min.Y})
			}
		}
	}
	return dark
}

// sumSquares peaks when dark pixels concentrate in few rows.
func sumSquares(rows map[int]int) float64 {
	var sq float64
	for _, n := range rows {
		sq += float64(n) * float64(n)
	}
	return sq
}
