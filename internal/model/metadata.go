package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"
)

// requiredKeys must all be present in a metadata file for it to load.
var requiredKeys = []string{
	"names",
	"original_names",
	"image_size",
	"confidence_threshold",
	"unknown_threshold",
	"training_date",
}

// Metadata describes a trained model: which storage key every label stands
// for and how each key is displayed.
type Metadata struct {
	Names               map[int]string    `json:"names"`
	OriginalNames       map[string]string `json:"original_names"`
	ImageSize           [2]int            `json:"image_size"`
	ConfidenceThreshold float64           `json:"confidence_threshold"`
	UnknownThreshold    float64           `json:"unknown_threshold"`
	TrainingDate        time.Time         `json:"training_date"`
	WeightsSHA256       string            `json:"weights_sha256,omitempty"`
}

// Key returns the storage key for a label.
func (m *Metadata) Key(label int) (string, bool) {
	key, ok := m.Names[label]
	return key, ok
}

// DisplayName returns the display name for a storage key, or the key itself.
func (m *Metadata) DisplayName(key string) string {
	if name, ok := m.OriginalNames[key]; ok && name != "" {
		return name
	}
	return key
}

// Keys returns the storage keys in label order.
func (m *Metadata) Keys() []string {
	labels := slices.Sorted(maps.Keys(m.Names))
	keys := make([]string, 0, len(labels))
	for _, l := range labels {
		keys = append(keys, m.Names[l])
	}
	return keys
}

// DisplayNames returns display names in label order.
func (m *Metadata) DisplayNames() []string {
	keys := m.Keys()
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		names = append(names, m.DisplayName(k))
	}
	return names
}

// Covers reports whether the label set equals the given set of subject keys.
// A model that does not cover the non-empty subject directories is stale.
func (m *Metadata) Covers(keys []string) bool {
	if len(keys) != len(m.Names) {
		return false
	}
	have := make(map[string]struct{}, len(m.Names))
	for _, k := range m.Names {
		have[k] = struct{}{}
	}
	for _, k := range keys {
		if _, ok := have[k]; !ok {
			return false
		}
	}
	return true
}

// Thresholds returns the cutoffs stored with the model.
func (m *Metadata) Thresholds() Thresholds {
	return Thresholds{Confidence: m.ConfidenceThreshold, Unknown: m.UnknownThreshold}
}

// decodeMetadata parses a metadata file and checks every required key.
func decodeMetadata(data []byte) (*Metadata, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	for _, key := range requiredKeys {
		if _, ok := raw[key]; !ok {
			return nil, fmt.Errorf("missing key %q", key)
		}
	}

	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding metadata: %w", err)
	}
	if len(m.Names) == 0 {
		return nil, errors.New("no labels")
	}
	if m.OriginalNames == nil {
		m.OriginalNames = map[string]string{}
	}
	return &m, nil
}
