package config

import (
	_ "embed"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kozaktomas/facecam/internal/constants"
)

//go:embed detection.yaml
var detectionYAML []byte

type Config struct {
	Paths       PathsConfig
	Recognition RecognitionConfig
	Camera      CameraConfig
	Cascades    CascadeDirs
	Activity    ActivityConfig
	Database    DatabaseConfig
	Log         LogConfig
	Detection   DetectionConfig
}

type PathsConfig struct {
	DataDir      string // root for everything below (default ./data)
	DatasetDir   string // one directory per subject
	ModelFile    string // LBPH weights (XML)
	MetadataFile string // label and name mappings (JSON)
}

type RecognitionConfig struct {
	Backend             string // "lbph" or "none"
	ConfidenceThreshold float64
	UnknownThreshold    float64
	RequireEyes         bool
	AlignFaces          bool
	MaxImages           int // samples per collection session
}

type CameraConfig struct {
	Index  int // -1 probes the first working device
	Width  int
	Height int
	FPS    int
}

type CascadeDirs struct {
	Dir       string // local cascade directory, downloads land here
	OpenCVDir string // OpenCV's bundled haarcascades directory, optional
	Download  bool
}

type ActivityConfig struct {
	File          string
	RetentionDays int
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL, optional
	MaxOpenConns int    // Maximum open connections (default 5)
	MaxIdleConns int    // Maximum idle connections (default 2)
}

type LogConfig struct {
	Format string // "text" or "json"
	Level  string
}

type DetectionConfig struct {
	Passes   []PassConfig `yaml:"passes"`
	Eye      EyeConfig    `yaml:"eye"`
	Aspect   AspectConfig `yaml:"aspect"`
	Cascades CascadeFiles `yaml:"cascades"`
}

type PassConfig struct {
	Name         string  `yaml:"name"`
	ScaleFactor  float64 `yaml:"scale_factor"`
	MinNeighbors int     `yaml:"min_neighbors"`
	MinSize      int     `yaml:"min_size"`
	MaxSize      int     `yaml:"max_size"` // 0 means unbounded
}

type EyeConfig struct {
	ScaleFactor  float64 `yaml:"scale_factor"`
	MinNeighbors int     `yaml:"min_neighbors"`
	MinSize      int     `yaml:"min_size"`
}

type AspectConfig struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

type CascadeFiles struct {
	Face CascadeSource `yaml:"face"`
	Eye  CascadeSource `yaml:"eye"`
}

type CascadeSource struct {
	File string `yaml:"file"`
	URL  string `yaml:"url"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a positive float.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

// envBool accepts anything strconv.ParseBool does.
func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := strings.TrimSpace(os.Getenv(key)); s != "" {
		return s
	}
	return defaultVal
}

// cameraIndex returns CAMERA_INDEX, or -1 when unset so the stream probes devices.
func cameraIndex() int {
	s := os.Getenv("CAMERA_INDEX")
	if s == "" {
		return -1
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return n
	}
	return -1
}

// LoadDetection parses the embedded cascade pass table.
func LoadDetection() DetectionConfig {
	var det DetectionConfig
	if err := yaml.Unmarshal(detectionYAML, &det); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded detection.yaml: " + err.Error())
	}
	return det
}

func Load() *Config {
	dataDir := envString("DATA_DIR", "data")

	return &Config{
		Paths: PathsConfig{
			DataDir:      dataDir,
			DatasetDir:   envString("DATASET_DIR", filepath.Join(dataDir, "datasets")),
			ModelFile:    envString("MODEL_FILE", filepath.Join(dataDir, "face_model.xml")),
			MetadataFile: envString("METADATA_FILE", filepath.Join(dataDir, "model_metadata.json")),
		},
		Recognition: RecognitionConfig{
			Backend:             envString("RECOGNIZER_BACKEND", "lbph"),
			ConfidenceThreshold: envFloat("CONFIDENCE_THRESHOLD", constants.DefaultConfidenceThreshold),
			UnknownThreshold:    envFloat("UNKNOWN_THRESHOLD", constants.DefaultUnknownThreshold),
			RequireEyes:         envBool("REQUIRE_EYES", true),
			AlignFaces:          envBool("ALIGN_FACES", false),
			MaxImages:           envInt("MAX_IMAGES", constants.MaxImagesPerSubject),
		},
		Camera: CameraConfig{
			Index:  cameraIndex(),
			Width:  envInt("CAMERA_WIDTH", constants.DefaultCameraWidth),
			Height: envInt("CAMERA_HEIGHT", constants.DefaultCameraHeight),
			FPS:    envInt("CAMERA_FPS", constants.DefaultCameraFPS),
		},
		Cascades: CascadeDirs{
			Dir:       envString("CASCADE_DIR", filepath.Join(dataDir, "haarcascades")),
			OpenCVDir: os.Getenv("OPENCV_HAAR_DIR"),
			Download:  envBool("CASCADE_DOWNLOAD", true),
		},
		Activity: ActivityConfig{
			File:          envString("ACTIVITY_LOG", filepath.Join("logs", "activity.json")),
			RetentionDays: envInt("LOG_RETENTION_DAYS", constants.LogRetentionDays),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 5),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 2),
		},
		Log: LogConfig{
			Format: envString("LOG_FORMAT", "text"),
			Level:  envString("LOG_LEVEL", "info"),
		},
		Detection: LoadDetection(),
	}
}
