package recognizer

import (
	"log/slog"
	"math/rand/v2"

	"github.com/kozaktomas/facecam/internal/constants"
	"github.com/kozaktomas/facecam/internal/dataset"
	"github.com/kozaktomas/facecam/internal/model"
)

// PersonAccuracy is the accuracy test result of one subject.
type PersonAccuracy struct {
	Name     string  `json:"name"`
	Correct  int     `json:"correct"`
	Total    int     `json:"total"`
	Accuracy float64 `json:"accuracy"`
}

// AccuracyReport summarizes an accuracy test. Accuracies are fractions in [0, 1].
type AccuracyReport struct {
	OverallAccuracy    float64                   `json:"overall_accuracy"`
	TotalTests         int                       `json:"total_tests"`
	CorrectPredictions int                       `json:"correct_predictions"`
	PerPerson          map[string]PersonAccuracy `json:"per_person"`
}

// Accuracy draws up to perPerson random samples from every subject directory,
// classifies them and counts how many were recognized as their own subject.
// Results are keyed by storage key. A nil rng draws from the global source.
func Accuracy(store *dataset.Store, c *Classifier, perPerson int, rng *rand.Rand) (AccuracyReport, error) {
	report := AccuracyReport{PerPerson: map[string]PersonAccuracy{}}
	if !c.Trained() {
		if c.Status() == model.StatusUnavailable {
			return report, ErrBackendUnavailable
		}
		return report, ErrNotTrained
	}

	if perPerson <= 0 {
		perPerson = constants.DefaultTestImagesPerPerson
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	keys, err := store.Keys()
	if err != nil {
		return report, err
	}

	for _, key := range keys {
		images, err := store.Images(key)
		if err != nil {
			return report, err
		}
		rng.Shuffle(len(images), func(i, j int) { images[i], images[j] = images[j], images[i] })
		images = images[:min(perPerson, len(images))]

		person := PersonAccuracy{Name: store.DisplayName(key)}
		for _, path := range images {
			ok, err := predictsSubject(c, path, key)
			if err != nil {
				slog.Warn("accuracy test sample skipped", "path", path, "error", err)
				continue
			}
			person.Total++
			if ok {
				person.Correct++
			}
		}
		if person.Total == 0 {
			continue
		}
		person.Accuracy = float64(person.Correct) / float64(person.Total)
		report.PerPerson[key] = person
		report.TotalTests += person.Total
		report.CorrectPredictions += person.Correct
	}

	if report.TotalTests > 0 {
		report.OverallAccuracy = float64(report.CorrectPredictions) / float64(report.TotalTests)
	}
	return report, nil
}

// predictsSubject loads a stored sample the way training does. Samples are
// already enhanced when collected.
func predictsSubject(c *Classifier, path, key string) (bool, error) {
	patch, err := readSample(path)
	if err != nil {
		return false, err
	}
	defer patch.Close()

	m, err := c.Predict(patch)
	if err != nil {
		return false, err
	}
	return m.Recognized && m.Key == key, nil
}
