// Package hasher 计算图片的 64 位 DCT 感知指纹。
//
// 变换固定：按 Rec.709 权重转为灰度，Lanczos 缩放到 16x16，做二维 DCT-II，
// 取左上角 8x8 系数，与这 64 个系数的均值比较得到每一位，按行优先、高位在前打包。
package hasher

import (
	"encoding/base64"
	"fmt"
	"image"
	"math"
	"math/bits"

	"github.com/disintegration/imaging"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

const (
	// Size 指纹保留的系数块边长
	Size = 8
	// gridSize 缩放后的工作网格边长
	gridSize = Size * 2
)

// Hash 64 位感知指纹
type Hash [Size * Size / 8]byte

var dctBasis = newDCTBasis(gridSize)

// newDCTBasis 返回一维 DCT-II 矩阵：C[k][n] = s(k) * cos(pi*(2n+1)*k / 2N) / 2，
// 其中 s(0) = 1/sqrt(2)，其余为 1
func newDCTBasis(n int) *mat.Dense {
	c := mat.NewDense(n, n, nil)
	for k := 0; k < n; k++ {
		scale := 0.5
		if k == 0 {
			scale /= math.Sqrt2
		}
		for i := 0; i < n; i++ {
			c.Set(k, i, scale*math.Cos(math.Pi*float64(2*i+1)*float64(k)/float64(2*n)))
		}
	}
	return c
}

// luma 按 Rec.709 权重计算亮度，结果向下取整
func luma(r, g, b uint8) uint8 {
	return uint8((2126*uint32(r) + 7152*uint32(g) + 722*uint32(b)) / 10000)
}

// Grayscale 把图片转为 8 位灰度，忽略 alpha 通道
func Grayscale(img image.Image) *image.Gray {
	src := imaging.Clone(img)
	bounds := src.Bounds()
	gray := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	for y := 0; y < bounds.Dy(); y++ {
		row := src.Pix[y*src.Stride:]
		for x := 0; x < bounds.Dx(); x++ {
			p := row[x*4:]
			gray.Pix[y*gray.Stride+x] = luma(p[0], p[1], p[2])
		}
	}
	return gray
}

// Compute 计算 img 的指纹，相同像素内容总是得到相同指纹。
// 宽或高为 0 的图片没有像素可用，返回零值。
func Compute(img image.Image) Hash {
	var h Hash
	if img == nil || img.Bounds().Empty() {
		return h
	}

	small := imaging.Resize(Grayscale(img), gridSize, gridSize, imaging.Lanczos)
	if small.Bounds().Dx() != gridSize || small.Bounds().Dy() != gridSize {
		return h
	}

	pixels := mat.NewDense(gridSize, gridSize, nil)
	for y := 0; y < gridSize; y++ {
		for x := 0; x < gridSize; x++ {
			pixels.Set(y, x, float64(small.Pix[y*small.Stride+x*4]))
		}
	}

	// D = C * X * C^T，先按行再按列
	var tmp, coeffs mat.Dense
	tmp.Mul(dctBasis, pixels)
	coeffs.Mul(&tmp, dctBasis.T())

	low := make([]float64, 0, Size*Size)
	for y := 0; y < Size; y++ {
		for x := 0; x < Size; x++ {
			low = append(low, coeffs.At(y, x))
		}
	}
	mean := stat.Mean(low, nil)

	for i, c := range low {
		if c >= mean {
			h[i/8] |= 0x80 >> (i % 8)
		}
	}
	return h
}

// String 返回标准 base64 编码（带填充，12 个字符）
func (h Hash) String() string {
	return base64.StdEncoding.EncodeToString(h[:])
}

// Uint64 以大端整数形式返回指纹
func (h Hash) Uint64() uint64 {
	var v uint64
	for _, b := range h {
		v = v<<8 | uint64(b)
	}
	return v
}

// Distance 返回两个指纹不同的位数（汉明距离）
func (h Hash) Distance(other Hash) int {
	return bits.OnesCount64(h.Uint64() ^ other.Uint64())
}

// Parse 从 base64 形式解析指纹
func Parse(s string) (Hash, error) {
	var h Hash
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("decode fingerprint %q: %w", s, err)
	}
	if len(raw) != len(h) {
		return h, fmt.Errorf("decode fingerprint %q: got %d bytes, want %d", s, len(raw), len(h))
	}
	copy(h[:], raw)
	return h, nil
}
