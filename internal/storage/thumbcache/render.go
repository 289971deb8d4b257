package thumbcache

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif" // регистрация декодера GIF
	"image/jpeg"
	_ "image/png" // регистрация декодера PNG
	"os"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff" // регистрация декодера TIFF
)

// Render декодирует изображение и строит превью Width x Height.
// Пропорции не сохраняются: изображение растягивается на весь кадр.
func Render(sourcePath string) ([]byte, error) {
	f, err := os.Open(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия исходного файла: %w", err)
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("ошибка декодирования изображения: %w", err)
	}

	dst := image.NewRGBA(image.Rect(0, 0, Width, Height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: Quality}); err != nil {
		return nil, fmt.Errorf("ошибка кодирования JPEG: %w", err)
	}
	return buf.Bytes(), nil
}
