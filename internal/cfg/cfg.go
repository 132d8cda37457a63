package cfg

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"bayesian-melody-predictor/internal/common"
	"bayesian-melody-predictor/internal/dataset"
	"bayesian-melody-predictor/internal/gp"
	"bayesian-melody-predictor/internal/ml"
	"bayesian-melody-predictor/internal/scoring"

	"gopkg.in/yaml.v3"
)

type Settings struct {
	Preset string

	DataPath      string
	CorpusPath    string
	TestCasesPath string
	ResultsDir    string
	ModelPath     string
	ModelsDir     string

	WindowSize  int
	BatchSize   int
	Epochs      int
	ShuffleSeed int64
	Kernel      gp.KernelConfig

	PitchRange dataset.PitchRange
	Strategy   string
	Weights    scoring.Weights

	ServerPort        int
	MetricsPort       int
	RequestTimeout    time.Duration
	ForecastCacheSize int
	ScoringWorkers    int

	EvalWorkers   int
	ServerURL     string
	ClientTimeout time.Duration
}

type ConfigFile struct {
	Model struct {
		Preset     string          `yaml:"preset"`
		Path       string          `yaml:"path"`
		Dir        string          `yaml:"dir"`
		WindowSize int             `yaml:"windowSize"`
		Kernel     gp.KernelConfig `yaml:"kernel"`
	} `yaml:"model"`

	Training struct {
		CorpusPath  string `yaml:"corpusPath"`
		BatchSize   int    `yaml:"batchSize"`
		Epochs      int    `yaml:"epochs"`
		ShuffleSeed int64  `yaml:"shuffleSeed"`
	} `yaml:"training"`

	PitchRange dataset.PitchRange `yaml:"pitchRange"`

	Scoring struct {
		Strategy string          `yaml:"strategy"`
		Weights  scoring.Weights `yaml:"weights"`
	} `yaml:"scoring"`

	Evaluation struct {
		TestCasesPath string `yaml:"testCasesPath"`
		ResultsDir    string `yaml:"resultsDir"`
		Workers       int    `yaml:"workers"`
		ServerURL     string `yaml:"serverURL"`
		ClientTimeout string `yaml:"clientTimeout"`
	} `yaml:"evaluation"`

	Server struct {
		Port              int    `yaml:"port"`
		MetricsPort       int    `yaml:"metricsPort"`
		RequestTimeout    string `yaml:"requestTimeout"`
		ForecastCacheSize int    `yaml:"forecastCacheSize"`
		ScoringWorkers    int    `yaml:"scoringWorkers"`
	} `yaml:"server"`

	System struct {
		DataPath string `yaml:"dataPath"`
	} `yaml:"system"`
}

func Load() (Settings, error) {
	// Try to load from YAML file first
	if configPath := os.Getenv(common.EnvConfigFile); configPath != "" {
		return loadFromYAML(configPath)
	}

	// Fallback to environment variables
	return loadFromEnv()
}

// Defaults returns the settings of a named preset before any file or
// environment overrides.
func Defaults(preset string) (Settings, error) {
	s := Settings{
		Preset:            common.PresetDefault,
		CorpusPath:        common.DefaultCorpusPath,
		TestCasesPath:     common.DefaultTestCasesPath,
		ResultsDir:        common.DefaultResultsDir,
		ModelPath:         common.DefaultModelPath,
		ModelsDir:         common.DefaultModelsDir,
		WindowSize:        common.DefaultWindowSize,
		BatchSize:         common.DefaultBatchSize,
		Epochs:            common.DefaultEpochs,
		ShuffleSeed:       common.DefaultShuffleSeed,
		Kernel:            gp.DefaultKernelConfig(),
		PitchRange:        dataset.DefaultPitchRange(),
		Weights:           scoring.DefaultWeights(),
		ServerPort:        common.DefaultServerPort,
		MetricsPort:       common.DefaultMetricsPort,
		RequestTimeout:    10 * time.Second,
		ForecastCacheSize: common.DefaultForecastCacheSize,
		EvalWorkers:       common.DefaultEvalWorkers,
		ServerURL:         common.DefaultServerURL,
		ClientTimeout:     30 * time.Second,
	}

	switch strings.ToLower(strings.TrimSpace(preset)) {
	case "", common.PresetDefault:
	case common.PresetChant:
		s.Preset = common.PresetChant
		s.BatchSize = common.ChantBatchSize
		s.Epochs = common.ChantEpochs
		s.Kernel.LengthScale = common.ChantLengthScale
		s.Kernel.LengthScaleBounds[0] = common.ChantLengthScaleMin
	default:
		return Settings{}, fmt.Errorf("%w: unknown preset %q", ml.ErrConfiguration, preset)
	}
	return s, nil
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	// First pass only resolves the preset
	var probe ConfigFile
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	settings, err := Defaults(getEnvOrDefault(common.EnvPreset, probe.Model.Preset))
	if err != nil {
		return Settings{}, err
	}

	// Keys missing from the file keep their preset values
	config := fileFromSettings(settings)
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}
	config.apply(&settings)

	// Environment variables override the file
	applyEnv(&settings)

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func fileFromSettings(s Settings) ConfigFile {
	var c ConfigFile
	c.Model.Preset = s.Preset
	c.Model.Path = s.ModelPath
	c.Model.Dir = s.ModelsDir
	c.Model.WindowSize = s.WindowSize
	c.Model.Kernel = s.Kernel
	c.Training.CorpusPath = s.CorpusPath
	c.Training.BatchSize = s.BatchSize
	c.Training.Epochs = s.Epochs
	c.Training.ShuffleSeed = s.ShuffleSeed
	c.PitchRange = s.PitchRange
	c.Scoring.Strategy = s.Strategy
	c.Scoring.Weights = s.Weights
	c.Evaluation.TestCasesPath = s.TestCasesPath
	c.Evaluation.ResultsDir = s.ResultsDir
	c.Evaluation.Workers = s.EvalWorkers
	c.Evaluation.ServerURL = s.ServerURL
	c.Evaluation.ClientTimeout = s.ClientTimeout.String()
	c.Server.Port = s.ServerPort
	c.Server.MetricsPort = s.MetricsPort
	c.Server.RequestTimeout = s.RequestTimeout.String()
	c.Server.ForecastCacheSize = s.ForecastCacheSize
	c.Server.ScoringWorkers = s.ScoringWorkers
	c.System.DataPath = s.DataPath
	return c
}

func (c ConfigFile) apply(s *Settings) {
	s.ModelPath = c.Model.Path
	s.ModelsDir = c.Model.Dir
	s.WindowSize = c.Model.WindowSize
	s.Kernel = c.Model.Kernel
	s.CorpusPath = c.Training.CorpusPath
	s.BatchSize = c.Training.BatchSize
	s.Epochs = c.Training.Epochs
	s.ShuffleSeed = c.Training.ShuffleSeed
	s.PitchRange = c.PitchRange
	s.Strategy = c.Scoring.Strategy
	s.Weights = c.Scoring.Weights
	s.TestCasesPath = c.Evaluation.TestCasesPath
	s.ResultsDir = c.Evaluation.ResultsDir
	s.EvalWorkers = c.Evaluation.Workers
	s.ServerURL = c.Evaluation.ServerURL
	s.ServerPort = c.Server.Port
	s.MetricsPort = c.Server.MetricsPort
	s.ForecastCacheSize = c.Server.ForecastCacheSize
	s.ScoringWorkers = c.Server.ScoringWorkers
	s.DataPath = c.System.DataPath

	if d, err := time.ParseDuration(c.Server.RequestTimeout); err == nil {
		s.RequestTimeout = d
	}
	if d, err := time.ParseDuration(c.Evaluation.ClientTimeout); err == nil {
		s.ClientTimeout = d
	}
}

func loadFromEnv() (Settings, error) {
	settings, err := Defaults(os.Getenv(common.EnvPreset))
	if err != nil {
		return Settings{}, err
	}

	applyEnv(&settings)

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func applyEnv(s *Settings) {
	s.DataPath = getEnvOrDefault(common.EnvDataPath, s.DataPath)
	s.CorpusPath = getEnvOrDefault(common.EnvCorpusPath, s.CorpusPath)
	s.TestCasesPath = getEnvOrDefault(common.EnvTestCasesPath, s.TestCasesPath)
	s.ResultsDir = getEnvOrDefault(common.EnvResultsDir, s.ResultsDir)
	s.ModelPath = getEnvOrDefault(common.EnvModelPath, s.ModelPath)
	s.ModelsDir = getEnvOrDefault(common.EnvModelsDir, s.ModelsDir)
	s.Strategy = getEnvOrDefault(common.EnvStrategy, s.Strategy)
	s.ServerURL = getEnvOrDefault(common.EnvServerURL, s.ServerURL)

	s.WindowSize = getIntOrDefault(common.EnvWindowSize, s.WindowSize)
	s.BatchSize = getIntOrDefault(common.EnvBatchSize, s.BatchSize)
	s.Epochs = getIntOrDefault(common.EnvEpochs, s.Epochs)
	s.ShuffleSeed = getInt64OrDefault(common.EnvShuffleSeed, s.ShuffleSeed)

	s.Kernel.LengthScale = getFloatOrDefault(common.EnvLengthScale, s.Kernel.LengthScale)
	s.Kernel.LengthScaleBounds[0] = getFloatOrDefault(common.EnvLengthScaleMin, s.Kernel.LengthScaleBounds[0])
	s.Kernel.LengthScaleBounds[1] = getFloatOrDefault(common.EnvLengthScaleMax, s.Kernel.LengthScaleBounds[1])
	s.Kernel.Alpha = getFloatOrDefault(common.EnvAlpha, s.Kernel.Alpha)
	s.Kernel.Restarts = getIntOrDefault(common.EnvRestarts, s.Kernel.Restarts)
	s.Kernel.NormalizeY = getBoolOrDefault(common.EnvNormalizeY, s.Kernel.NormalizeY)
	s.Kernel.RandomState = getInt64OrDefault(common.EnvRandomState, s.Kernel.RandomState)

	s.PitchRange.Min = getIntOrDefault(common.EnvPitchMin, s.PitchRange.Min)
	s.PitchRange.Max = getIntOrDefault(common.EnvPitchMax, s.PitchRange.Max)

	s.ServerPort = getIntOrDefault(common.EnvServerPort, s.ServerPort)
	s.MetricsPort = getIntOrDefault(common.EnvMetricsPort, s.MetricsPort)
	s.RequestTimeout = getDurationOrDefault(common.EnvRequestTimeout, s.RequestTimeout)
	s.ForecastCacheSize = getIntOrDefault(common.EnvForecastCacheSize, s.ForecastCacheSize)
	s.ScoringWorkers = getIntOrDefault(common.EnvScoringWorkers, s.ScoringWorkers)
	s.EvalWorkers = getIntOrDefault(common.EnvEvalWorkers, s.EvalWorkers)
	s.ClientTimeout = getDurationOrDefault(common.EnvClientTimeout, s.ClientTimeout)
}

// RegressorConfig returns the regressor construction parameters.
func (s *Settings) RegressorConfig() ml.RegressorConfig {
	return ml.RegressorConfig{WindowSize: s.WindowSize, Kernel: s.Kernel}
}

// TrainOptions returns the batched training parameters.
func (s *Settings) TrainOptions() ml.TrainOptions {
	return ml.TrainOptions{BatchSize: s.BatchSize, Epochs: s.Epochs, Seed: s.ShuffleSeed}
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getInt64OrDefault(key string, defaultValue int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

// validateSettings performs comprehensive validation of configuration values
func validateSettings(settings *Settings) error {
	if err := checkSettings(settings); err != nil {
		return fmt.Errorf("%w: %v", ml.ErrConfiguration, err)
	}
	return nil
}

func checkSettings(settings *Settings) error {
	// Model shape and training protocol
	if settings.WindowSize < common.MinWindowSize || settings.WindowSize > common.MaxWindowSize {
		return fmt.Errorf("window size must be between %d and %d, got %d", common.MinWindowSize, common.MaxWindowSize, settings.WindowSize)
	}
	if settings.BatchSize <= 0 || settings.BatchSize > common.MaxBatchSize {
		return fmt.Errorf("batch size must be between 1 and %d, got %d", common.MaxBatchSize, settings.BatchSize)
	}
	if settings.Epochs <= 0 || settings.Epochs > common.MaxEpochs {
		return fmt.Errorf("epochs must be between 1 and %d, got %d", common.MaxEpochs, settings.Epochs)
	}
	if err := settings.Kernel.Validate(); err != nil {
		return fmt.Errorf("kernel: %w", err)
	}

	// Paths
	if settings.ModelPath == "" {
		return fmt.Errorf("model path cannot be empty")
	}
	if settings.ModelsDir == "" {
		return fmt.Errorf("models directory cannot be empty")
	}

	// Normalization and scoring
	if err := settings.PitchRange.Validate(); err != nil {
		return err
	}
	if err := settings.Weights.Validate(); err != nil {
		return err
	}
	if settings.Strategy != "" {
		if _, err := scoring.Parse(settings.Strategy, settings.Weights); err != nil {
			return err
		}
	}

	// Service
	if settings.ServerPort < common.MinPort || settings.ServerPort > common.MaxPort {
		return fmt.Errorf("server port must be between %d and %d, got %d", common.MinPort, common.MaxPort, settings.ServerPort)
	}
	if settings.MetricsPort < common.MinPort || settings.MetricsPort > common.MaxPort {
		return fmt.Errorf("metrics port must be between %d and %d, got %d", common.MinPort, common.MaxPort, settings.MetricsPort)
	}
	if settings.ServerPort == settings.MetricsPort {
		return fmt.Errorf("server and metrics ports must differ, both are %d", settings.ServerPort)
	}
	if settings.RequestTimeout < 10*time.Millisecond || settings.RequestTimeout > 10*time.Minute {
		return fmt.Errorf("request timeout must be between 10ms and 10m, got %v", settings.RequestTimeout)
	}
	if settings.ClientTimeout < time.Second || settings.ClientTimeout > 10*time.Minute {
		return fmt.Errorf("client timeout must be between 1s and 10m, got %v", settings.ClientTimeout)
	}
	if settings.ForecastCacheSize < 0 || settings.ForecastCacheSize > common.MaxCacheSize {
		return fmt.Errorf("forecast cache size must be between 0 and %d, got %d", common.MaxCacheSize, settings.ForecastCacheSize)
	}
	if settings.ScoringWorkers < 0 || settings.ScoringWorkers > common.MaxWorkerCount {
		return fmt.Errorf("scoring workers must be between 0 and %d, got %d", common.MaxWorkerCount, settings.ScoringWorkers)
	}
	if settings.EvalWorkers <= 0 || settings.EvalWorkers > common.MaxWorkerCount {
		return fmt.Errorf("evaluation workers must be between 1 and %d, got %d", common.MaxWorkerCount, settings.EvalWorkers)
	}

	return nil
}
