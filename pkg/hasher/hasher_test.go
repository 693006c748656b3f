package hasher

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func solid(w, h int, c color.Color) *image.NRGBA {
	return imaging.New(w, h, c)
}

func gradient(w, h int, inverted bool) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(x * 255 / (w - 1))
			if inverted {
				v = 255 - v
			}
			img.SetNRGBA(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return img
}

func TestCompute_BlackImage(t *testing.T) {
	h := Compute(solid(8, 8, color.Black))

	// 所有系数都是 0，每一位都等于均值
	assert.Equal(t, Hash{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}, h)
	assert.Equal(t, "//////////8=", h.String())
}

func TestCompute_Deterministic(t *testing.T) {
	img := gradient(40, 30, false)

	first := Compute(img)
	second := Compute(img)
	third := Compute(imaging.Clone(img))

	assert.Equal(t, first, second)
	assert.Equal(t, first, third)
	assert.Equal(t, first.String(), third.String())
}

func TestCompute_DifferentContent(t *testing.T) {
	a := Compute(gradient(64, 64, false))
	b := Compute(gradient(64, 64, true))

	assert.NotEqual(t, a, b)
	assert.Positive(t, a.Distance(b))
}

func TestCompute_ScaledCopyIsClose(t *testing.T) {
	small := Compute(gradient(64, 64, false))
	large := Compute(gradient(256, 256, false))

	assert.LessOrEqual(t, small.Distance(large), 4)
}

func TestHash_StringLength(t *testing.T) {
	h := Compute(gradient(20, 20, false))
	assert.Len(t, h.String(), 12)
}

func TestParse(t *testing.T) {
	h := Compute(gradient(32, 16, true))

	parsed, err := Parse(h.String())
	require.NoError(t, err)
	assert.Equal(t, h, parsed)

	_, err = Parse("not base64!")
	assert.Error(t, err)

	_, err = Parse("AAAA")
	assert.Error(t, err)
}

func TestHash_Distance(t *testing.T) {
	var zero Hash
	ones := Hash{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
	one := Hash{0x80}

	assert.Equal(t, 0, zero.Distance(zero))
	assert.Equal(t, 64, zero.Distance(ones))
	assert.Equal(t, 1, zero.Distance(one))
	assert.Equal(t, uint64(0x8000000000000000), one.Uint64())
}

// halves 左右两半分别填充 left 和 right 的 16x16 图片，尺寸与工作网格一致，缩放不改变像素
func halves(left, right color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			if x < 8 {
				img.SetNRGBA(x, y, left)
			} else {
				img.SetNRGBA(x, y, right)
			}
		}
	}
	return img
}

func TestCompute_GoldenVerticalEdge(t *testing.T) {
	white := color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	black := color.NRGBA{A: 255}

	// 只有第 0 行系数非零：D[0][0]=4080, D[0][1]≈3679, D[0][3]≈-1242,
	// D[0][5]≈765, D[0][7]≈-568，均值约 104.9
	h := Compute(halves(white, black))
	assert.Equal(t, Hash{0xc4}, h)
	assert.Equal(t, "xAAAAAAAAAA=", h.String())
}

func TestCompute_GoldenColorEdge(t *testing.T) {
	red := color.NRGBA{R: 255, A: 255}
	green := color.NRGBA{G: 255, A: 255}

	// 亮度 54 | 182：D[0][0]=3776, D[0][1]≈-1847, D[0][3]≈624,
	// D[0][5]≈-384, D[0][7]≈285，均值约 38.3
	h := Compute(halves(red, green))
	assert.Equal(t, Hash{0x91}, h)
	assert.Equal(t, "kQAAAAAAAAA=", h.String())
}

func TestCompute_EmptyImage(t *testing.T) {
	assert.Equal(t, Hash{}, Compute(image.NewNRGBA(image.Rect(0, 0, 0, 0))))
	assert.Equal(t, Hash{}, Compute(image.NewGray(image.Rect(0, 0, 5, 0))))
}

func TestLuma(t *testing.T) {
	assert.Equal(t, uint8(54), luma(255, 0, 0))
	assert.Equal(t, uint8(182), luma(0, 255, 0))
	assert.Equal(t, uint8(18), luma(0, 0, 255))
	assert.Equal(t, uint8(255), luma(255, 255, 255))
	assert.Equal(t, uint8(0), luma(0, 0, 0))
}

func TestGrayscale(t *testing.T) {
	img := image.NewNRGBA(image.Rect(3, 3, 5, 4))
	img.SetNRGBA(3, 3, color.NRGBA{R: 255, A: 255})
	img.SetNRGBA(4, 3, color.NRGBA{R: 10, G: 200, B: 30, A: 0})

	gray := Grayscale(img)
	require.Equal(t, image.Rect(0, 0, 2, 1), gray.Bounds())
	assert.Equal(t, uint8(54), gray.GrayAt(0, 0).Y)
	// alpha 不参与计算：(2126*10 + 7152*200 + 722*30) / 10000 = 147
	assert.Equal(t, uint8(147), gray.GrayAt(1, 0).Y)
}

func TestDCTBasis(t *testing.T) {
	assert.InDelta(t, 0.5/math.Sqrt2, dctBasis.At(0, 0), 1e-12)
	assert.InDelta(t, 0.5/math.Sqrt2, dctBasis.At(0, 15), 1e-12)
	assert.InDelta(t, 0.5*math.Cos(math.Pi/32), dctBasis.At(1, 0), 1e-12)

	// 第 0 行乘 1/sqrt(2) 后所有行的模相同：C * C^T = 2I
	var prod mat.Dense
	prod.Mul(dctBasis, dctBasis.T())
	for i := 0; i < gridSize; i++ {
		for j := 0; j < gridSize; j++ {
			want := 0.0
			if i == j {
				want = 2
			}
			assert.InDelta(t, want, prod.At(i, j), 1e-9, "(%d,%d)", i, j)
		}
	}
}
