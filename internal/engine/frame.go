package engine

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"time"

	"gocv.io/x/gocv"

	"github.com/kozaktomas/facecam/internal/activity"
	"github.com/kozaktomas/facecam/internal/collector"
	"github.com/kozaktomas/facecam/internal/constants"
	"github.com/kozaktomas/facecam/internal/facematch"
	"github.com/kozaktomas/facecam/internal/model"
	"github.com/kozaktomas/facecam/internal/recognizer"
	"github.com/kozaktomas/facecam/internal/vision"
)

var (
	colorBlue   = color.RGBA{0, 0, 255, 255}
	colorGreen  = color.RGBA{0, 255, 0, 255}
	colorYellow = color.RGBA{255, 255, 0, 255}
	colorRed    = color.RGBA{255, 0, 0, 255}
	colorGray   = color.RGBA{128, 128, 128, 255}
	colorWhite  = color.RGBA{255, 255, 255, 255}
	colorBlack  = color.RGBA{0, 0, 0, 255}
)

const (
	boxThickness   = 3
	labelHeight    = 35
	labelTextSize  = 16
	headerTextSize = 16
	footerTextSize = 14
)

// Result is the classification of one face.
type Result struct {
	Name         string         `json:"name"`
	Confidence   float64        `json:"confidence"`
	BBox         facematch.BBox `json:"bbox"`
	Recognized   bool           `json:"recognized"`
	Band         model.Band     `json:"band"`
	EyesDetected bool           `json:"eyes_detected"`
}

func newResult(det vision.Detection, m recognizer.Match) Result {
	return Result{
		Name:         m.Name,
		Confidence:   m.Confidence,
		BBox:         facematch.ToBBox(det.Rect),
		Recognized:   m.Recognized,
		Band:         m.Band,
		EyesDetected: det.EyesFound,
	}
}

// annotation is what gets drawn for one detection.
type annotation struct {
	rect      image.Rectangle
	box       color.RGBA
	label     string
	labelText color.RGBA
	extra     []vision.Text
}

// ProcessFrame runs one camera frame through the pipeline and draws the
// overlays onto it in place. While a collection session is active each
// detection becomes a sample; otherwise detections are classified and
// counted. A failure on one detection is drawn as an error badge and does
// not affect the others.
func (r *Runtime) ProcessFrame(frame *gocv.Mat) ([]Result, error) {
	if frame == nil || frame.Empty() {
		return nil, vision.ErrInvalidImage
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.frameCount++
	if !r.detector.HasFaceCascade() {
		if r.frameCount%constants.CascadeRetryFrames == 0 {
			r.reloadFaceCascade()
		}
		if !r.detector.HasFaceCascade() {
			return nil, r.drawTexts(frame, []vision.Text{{
				Value: "Face cascade not loaded - retrying...",
				At:    image.Pt(10, 30),
				Color: colorRed,
				Size:  headerTextSize,
			}})
		}
	}

	gray, err := vision.Enhance(*frame)
	if err != nil {
		return nil, err
	}
	defer gray.Close()

	detections := r.detector.Detect(gray, r.requireEyes.Load())
	annotations := make([]annotation, 0, len(detections))
	var results []Result
	for _, det := range detections {
		ann, res := r.handleDetection(gray, det)
		annotations = append(annotations, ann)
		if res != nil {
			results = append(results, *res)
		}
	}

	return results, r.render(frame, annotations)
}

// handleDetection collects or classifies one face. Panics from the native
// bindings are turned into an error badge.
func (r *Runtime) handleDetection(gray gocv.Mat, det vision.Detection) (ann annotation, res *Result) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("face processing panicked", "bbox", det.Rect, "panic", p)
			ann, res = errorAnnotation(det, fmt.Sprint(p)), nil
		}
	}()

	align := r.alignFaces.Load()

	if r.session.Active() {
		snap, err := r.session.Record(func(path string) error {
			patch, err := vision.FacePatch(gray, det, align)
			if err != nil {
				return err
			}
			defer patch.Close()
			return vision.WriteImage(path, patch)
		})
		switch {
		case err == nil:
			if !snap.Active {
				r.record(context.Background(), activity.EventCollectionCompleted)
			}
			return annotation{
				rect:      det.Rect,
				box:       colorBlue,
				label:     eyesLabel(fmt.Sprintf("Collecting %d/%d", snap.Count, snap.Max), det),
				labelText: colorWhite,
			}, nil
		case errors.Is(err, collector.ErrNotCollecting):
			// Stopped between Active and Record, classify instead.
		default:
			slog.Warn("saving sample failed", "error", err)
			return errorAnnotation(det, err.Error()), nil
		}
	}

	if !r.classifier.Trained() {
		return notTrainedAnnotation(det), nil
	}

	patch, err := vision.FacePatch(gray, det, align)
	if err != nil {
		return errorAnnotation(det, err.Error()), nil
	}
	defer patch.Close()

	m, err := r.classifier.Predict(patch)
	if errors.Is(err, recognizer.ErrNotTrained) {
		return notTrainedAnnotation(det), nil
	}
	if err != nil {
		slog.Warn("classifying face failed", "error", err)
		return errorAnnotation(det, err.Error()), nil
	}

	r.count(m)
	result := newResult(det, m)
	return bandAnnotation(det, m), &result
}

func bandAnnotation(det vision.Detection, m recognizer.Match) annotation {
	switch m.Band {
	case model.BandKnown:
		return annotation{
			rect:      det.Rect,
			box:       colorGreen,
			label:     eyesLabel(m.Name, det),
			labelText: colorBlack,
			extra: []vision.Text{{
				Value: fmt.Sprintf("Confidence: %.0f%%", max(0, 100-m.Confidence)),
				At:    image.Pt(det.Rect.Min.X, det.Rect.Max.Y+20),
				Color: colorGreen,
				Size:  footerTextSize,
			}},
		}
	case model.BandMaybe:
		return annotation{
			rect:      det.Rect,
			box:       colorYellow,
			label:     eyesLabel(m.Name+"?", det),
			labelText: colorBlack,
		}
	default:
		return annotation{
			rect:      det.Rect,
			box:       colorRed,
			label:     eyesLabel("UNKNOWN", det),
			labelText: colorWhite,
		}
	}
}

func notTrainedAnnotation(det vision.Detection) annotation {
	return annotation{
		rect:      det.Rect,
		box:       colorGray,
		label:     eyesLabel("Model not trained", det),
		labelText: colorWhite,
	}
}

func errorAnnotation(det vision.Detection, msg string) annotation {
	if runes := []rune(msg); len(runes) > 15 {
		msg = string(runes[:15])
	}
	return annotation{
		rect:      det.Rect,
		box:       colorRed,
		label:     "Error: " + msg,
		labelText: colorWhite,
	}
}

func eyesLabel(s string, det vision.Detection) string {
	if det.EyesFound {
		return s + " (eyes detected)"
	}
	return s + " (eyes not detected)"
}

// render draws boxes with OpenCV and all text in one pass.
func (r *Runtime) render(frame *gocv.Mat, annotations []annotation) error {
	var texts []vision.Text
	for _, a := range annotations {
		gocv.Rectangle(frame, a.rect, a.box, boxThickness)

		width := len(a.label) * labelTextSize / 2
		if r.text != nil {
			width = r.text.Width(a.label, labelTextSize)
		}
		x, y := a.rect.Min.X, a.rect.Min.Y
		gocv.Rectangle(frame, image.Rect(x, y-labelHeight, x+width+10, y), a.box, -1)

		texts = append(texts, vision.Text{Value: a.label, At: image.Pt(x+5, y-30), Color: a.labelText, Size: labelTextSize})
		texts = append(texts, a.extra...)
	}

	texts = append(texts, r.header()...)
	texts = append(texts, r.footer(frame.Rows())...)
	return r.drawTexts(frame, texts)
}

func (r *Runtime) header() []vision.Text {
	stats := r.Stats()
	lines := []string{
		fmt.Sprintf("Total faces: %d", stats.TotalFacesDetected),
		fmt.Sprintf("Known: %d", stats.KnownFaces),
		fmt.Sprintf("Unknown: %d", stats.UnknownFaces),
	}
	if stats.LastRecognized != "" {
		lines = append(lines, "Last: "+stats.LastRecognized)
	}
	texts := make([]vision.Text, 0, len(lines))
	for i, line := range lines {
		texts = append(texts, vision.Text{Value: line, At: image.Pt(10, 30+i*25), Color: colorWhite, Size: headerTextSize})
	}
	return texts
}

func (r *Runtime) footer(height int) []vision.Text {
	status := func(label string, ok bool, bad string) vision.Text {
		if ok {
			return vision.Text{Value: label + ": OK", Color: colorGreen, Size: footerTextSize}
		}
		return vision.Text{Value: label + ": " + bad, Color: colorRed, Size: footerTextSize}
	}
	texts := []vision.Text{
		status("Face cascade", r.detector.HasFaceCascade(), "ERROR"),
		status("Eye cascade", r.detector.HasEyeCascade(), "ERROR"),
		status("Model", r.classifier.Trained(), "NOT TRAINED"),
	}
	for i := range texts {
		texts[i].At = image.Pt(10, height-75+i*25)
	}
	return texts
}

// drawTexts renders text when a renderer is configured; without one the
// frame only carries the boxes.
func (r *Runtime) drawTexts(frame *gocv.Mat, texts []vision.Text) error {
	if r.text == nil {
		return nil
	}
	return r.text.Draw(frame, texts)
}

// reloadFaceCascade retries loading the face cascade from disk. Downloads are
// left to startup so a slow network never stalls the frame loop.
func (r *Runtime) reloadFaceCascade() {
	if r.cascades == nil {
		return
	}
	loader := *r.cascades
	loader.Dirs.Download = false

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := loader.Load(ctx, r.cfg.Detection.Cascades.Face)
	if err != nil {
		slog.Debug("face cascade still unavailable", "error", err)
		return
	}
	r.detector.SetFaceCascade(c)
	slog.Info("face cascade loaded")
}

// RenderFrame processes a frame and encodes the annotated result as JPEG.
func (r *Runtime) RenderFrame(frame *gocv.Mat) ([]byte, error) {
	if _, err := r.ProcessFrame(frame); err != nil {
		slog.Debug("frame processing failed", "error", err)
	}
	return vision.EncodeJPEG(*frame)
}
