package engine

import (
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"log/slog"

	"gocv.io/x/gocv"

	"github.com/kozaktomas/facecam/internal/model"
	"github.com/kozaktomas/facecam/internal/recognizer"
	"github.com/kozaktomas/facecam/internal/vision"
)

// ErrDecode is returned when uploaded bytes are not an image.
var ErrDecode = fmt.Errorf("%w: cannot decode image", vision.ErrInvalidImage)

// Recognition is the outcome of recognizing faces on a still image.
type Recognition struct {
	FacesFound     int      `json:"faces_found"`
	Results        []Result `json:"results"`
	ProcessedImage []byte   `json:"-"`
}

// ProcessedBase64 returns the annotated JPEG as standard base64.
func (r Recognition) ProcessedBase64() string {
	return base64.StdEncoding.EncodeToString(r.ProcessedImage)
}

// RecognizeImage detects and classifies every face on an encoded image and
// returns the results with an annotated JPEG. It fails with
// recognizer.ErrNotTrained before decoding when no model is loaded.
// Recognition stats are not affected.
func (r *Runtime) RecognizeImage(data []byte) (Recognition, error) {
	if err := r.requireModel(); err != nil {
		return Recognition{}, err
	}

	img, err := vision.Decode(data)
	if err != nil {
		return Recognition{}, ErrDecode
	}
	defer img.Close()

	gray, err := vision.Enhance(img)
	if err != nil {
		return Recognition{}, err
	}
	defer gray.Close()

	out := Recognition{Results: []Result{}}
	align := r.alignFaces.Load()
	for _, det := range r.detector.Detect(gray, r.requireEyes.Load()) {
		res, err := r.classify(gray, det, align)
		if err != nil {
			if errors.Is(err, recognizer.ErrNotTrained) {
				return Recognition{}, err
			}
			slog.Warn("skipping face", "bbox", det.Rect, "error", err)
			continue
		}
		out.Results = append(out.Results, res)
		drawStillResult(&img, res, det.Rect)
	}
	out.FacesFound = len(out.Results)

	if r.text != nil {
		texts := make([]vision.Text, 0, len(out.Results))
		for _, res := range out.Results {
			texts = append(texts, stillLabel(res))
		}
		if err := r.text.Draw(&img, texts); err != nil {
			slog.Warn("drawing labels failed", "error", err)
		}
	}

	out.ProcessedImage, err = vision.EncodeJPEG(img)
	if err != nil {
		return Recognition{}, fmt.Errorf("encoding result: %w", err)
	}
	return out, nil
}

// RecognizeBase64 decodes a base64 image and recognizes it.
func (r *Runtime) RecognizeBase64(encoded string) (Recognition, error) {
	if err := r.requireModel(); err != nil {
		return Recognition{}, err
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return Recognition{}, ErrDecode
	}
	return r.RecognizeImage(data)
}

func (r *Runtime) requireModel() error {
	if !r.classifier.Trained() {
		if r.classifier.Status() == model.StatusUnavailable {
			return recognizer.ErrBackendUnavailable
		}
		return recognizer.ErrNotTrained
	}
	return nil
}

func (r *Runtime) classify(gray gocv.Mat, det vision.Detection, align bool) (Result, error) {
	patch, err := vision.FacePatch(gray, det, align)
	if err != nil {
		return Result{}, err
	}
	defer patch.Close()

	m, err := r.classifier.Predict(patch)
	if err != nil {
		return Result{}, err
	}
	return newResult(det, m), nil
}

func drawStillResult(img *gocv.Mat, res Result, rect image.Rectangle) {
	c := colorRed
	if res.Recognized {
		c = colorGreen
	}
	gocv.Rectangle(img, rect, c, 2)
}

func stillLabel(res Result) vision.Text {
	t := vision.Text{
		Value: res.Name,
		At:    image.Pt(res.BBox.X, max(0, res.BBox.Y-24)),
		Color: colorRed,
		Size:  labelTextSize,
	}
	if res.Recognized {
		t.Value = fmt.Sprintf("%s (%.0f)", res.Name, res.Confidence)
		t.Color = colorGreen
	}
	return t
}
