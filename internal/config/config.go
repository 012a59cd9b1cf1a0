package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const defaultDatasetDir = "./dataset/New Plant Diseases Dataset(Augmented)/New Plant Diseases Dataset(Augmented)/train"

type Config struct {
	Port            string
	RootDir         string
	ModelPath       string
	ManifestPath    string
	DatasetDir      string
	BackgroundImage string
	ONNXRuntimeLib  string
	InputName       string
	OutputName      string
	MaxUploadBytes  int64
	CORSOrigins     []string
	LogLevel        string
}

// Load reads an optional .env file and the process environment.
// Relative paths are resolved against the project root.
func Load() (*Config, error) {
	// A missing .env file is fine.
	_ = godotenv.Load()

	root, err := projectRoot()
	if err != nil {
		return nil, err
	}

	maxMB, err := strconv.Atoi(GetEnv("MAX_UPLOAD_MB", "10"))
	if err != nil || maxMB <= 0 {
		return nil, fmt.Errorf("invalid MAX_UPLOAD_MB %q", os.Getenv("MAX_UPLOAD_MB"))
	}

	cfg := &Config{
		Port:            GetEnv("PORT", "8080"),
		RootDir:         root,
		ModelPath:       resolve(root, GetEnv("MODEL_PATH", filepath.Join("models", "best_model.onnx"))),
		ManifestPath:    resolve(root, GetEnv("LABELS_MANIFEST", filepath.Join("models", "model_metadata.json"))),
		DatasetDir:      resolve(root, GetEnv("DATASET_DIR", defaultDatasetDir)),
		BackgroundImage: resolve(root, GetEnv("BACKGROUND_IMAGE", "bg.jpg")),
		ONNXRuntimeLib:  os.Getenv("ONNXRUNTIME_LIB"),
		InputName:       GetEnv("MODEL_INPUT_NAME", "input"),
		OutputName:      GetEnv("MODEL_OUTPUT_NAME", "output"),
		MaxUploadBytes:  int64(maxMB) << 20,
		CORSOrigins:     splitList(GetEnv("CORS_ORIGINS", "*")),
		LogLevel:        GetEnv("LOG_LEVEL", "info"),
	}

	if _, err := strconv.Atoi(cfg.Port); err != nil {
		return nil, fmt.Errorf("invalid PORT %q", cfg.Port)
	}

	return cfg, nil
}

// GetEnv returns the value of key, or def when it is unset or blank.
func GetEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func projectRoot() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	// Running from cmd/server or cmd/labels: go up two levels.
	if parent := filepath.Base(filepath.Dir(wd)); parent == "cmd" {
		wd = filepath.Join(wd, "..", "..")
	}
	return filepath.Clean(wd), nil
}

func resolve(root, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
