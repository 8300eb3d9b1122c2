package vision

import (
	"fmt"
	"image"
	"image/color"
	"sync"

	"gocv.io/x/gocv"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// Text is one line drawn by a TextRenderer. At is the top-left corner.
type Text struct {
	Value string
	At    image.Point
	Color color.RGBA
	Size  float64
}

// TextRenderer draws Unicode text onto frames. OpenCV's Hershey fonts only
// cover ASCII, so display names such as "Иван" are drawn with Go fonts.
type TextRenderer struct {
	font *opentype.Font

	mu    sync.Mutex
	faces map[float64]font.Face
}

// NewTextRenderer parses the embedded Go Regular font.
func NewTextRenderer() (*TextRenderer, error) {
	f, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}
	return &TextRenderer{font: f, faces: map[float64]font.Face{}}, nil
}

func (t *TextRenderer) face(size float64) (font.Face, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if face, ok := t.faces[size]; ok {
		return face, nil
	}
	face, err := opentype.NewFace(t.font, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("creating %.0fpt face: %w", size, err)
	}
	t.faces[size] = face
	return face, nil
}

// Width returns the rendered width of s in pixels.
func (t *TextRenderer) Width(s string, size float64) int {
	face, err := t.face(size)
	if err != nil {
		return 0
	}
	return font.MeasureString(face, s).Ceil()
}

// Draw renders texts onto a BGR frame in place.
func (t *TextRenderer) Draw(frame *gocv.Mat, texts []Text) error {
	if len(texts) == 0 {
		return nil
	}
	src, err := frame.ToImage()
	if err != nil {
		return fmt.Errorf("converting frame: %w", err)
	}
	canvas := image.NewRGBA(src.Bounds())
	draw.Draw(canvas, canvas.Bounds(), src, src.Bounds().Min, draw.Src)

	for _, txt := range texts {
		face, err := t.face(txt.Size)
		if err != nil {
			return err
		}
		d := font.Drawer{
			Dst:  canvas,
			Src:  image.NewUniform(txt.Color),
			Face: face,
			Dot:  fixed.P(txt.At.X, txt.At.Y+face.Metrics().Ascent.Ceil()),
		}
		d.DrawString(txt.Value)
	}

	out, err := gocv.ImageToMatRGB(canvas)
	if err != nil {
		return fmt.Errorf("converting canvas: %w", err)
	}
	defer out.Close()
	out.CopyTo(frame)
	return nil
}

// Close releases the cached font faces.
func (t *TextRenderer) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for size, face := range t.faces {
		_ = face.Close()
		delete(t.faces, size)
	}
}
