package imagefile

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"io/fs"

	"github.com/disintegration/imaging"
	"github.com/h2non/filetype"
	"github.com/spf13/afero"

	// imaging 已注册 jpeg/png/gif/bmp/tiff，这里补充 webp
	_ "golang.org/x/image/webp"

	"github.com/moyu-x/image-fingerprint/pkg/logger"
)

// HeaderSize 文件类型检测所需的文件头部大小（字节）
const HeaderSize = 261

// ErrNotImage 文件内容不是可识别的图片格式
var ErrNotImage = errors.New("not a supported image")

// ErrEmptyImage 图片解码成功但宽或高为 0
var ErrEmptyImage = errors.New("image has no pixels")

// DecodeError 解码失败，携带出错的文件路径
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	cause := e.Err
	var pathErr *fs.PathError
	if errors.As(cause, &pathErr) {
		cause = pathErr.Err
	}
	return fmt.Sprintf("decode %s: %v", e.Path, cause)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decoder 通过文件头识别类型并解码图片
type Decoder struct {
	Fs afero.Fs
}

// NewDecoder 创建解码器，fs 为 nil 时使用本地文件系统
func NewDecoder(fs afero.Fs) *Decoder {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Decoder{Fs: fs}
}

// Decode 读取并解码 path 指向的图片
func (d *Decoder) Decode(path string) (image.Image, error) {
	file, err := d.Fs.Open(path)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	defer file.Close()

	// 读取文件头部用于类型检测
	head := make([]byte, HeaderSize)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, &DecodeError{Path: path, Err: err}
	}
	head = head[:n]

	kind, err := DetectType(head)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}

	logger.Get().Trace().Str("path", path).Str("mime", kind).Msg("检测到图片类型")

	img, err := imaging.Decode(io.MultiReader(bytes.NewReader(head), file))
	if err != nil {
		return nil, &DecodeError{Path: path, Err: fmt.Errorf("%s: %w", kind, err)}
	}

	// 0x0 的图片没有像素可供计算指纹，按解码失败处理
	if img.Bounds().Empty() {
		return nil, &DecodeError{Path: path, Err: fmt.Errorf("%s: %w", kind, ErrEmptyImage)}
	}
	return img, nil
}

// DetectType 根据文件头返回图片的 MIME 类型
// 非图片内容返回包装了 ErrNotImage 的错误
func DetectType(head []byte) (string, error) {
	if len(head) == 0 {
		return "", fmt.Errorf("%w (empty file)", ErrNotImage)
	}

	kind, err := filetype.Match(head)
	if err != nil {
		return "", fmt.Errorf("检测文件类型失败: %w", err)
	}

	if kind == filetype.Unknown {
		return "", fmt.Errorf("%w (unknown format)", ErrNotImage)
	}

	if kind.MIME.Type != "image" {
		return "", fmt.Errorf("%w (detected %s)", ErrNotImage, kind.MIME.Value)
	}

	return kind.MIME.Value, nil
}
