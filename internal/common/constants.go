package common

// Environment variable keys
const (
	EnvConfigFile        = "CONFIG_FILE"
	EnvPreset            = "PRESET"
	EnvDataPath          = "DATA_PATH"
	EnvCorpusPath        = "CORPUS_PATH"
	EnvTestCasesPath     = "TEST_CASES_PATH"
	EnvResultsDir        = "RESULTS_DIR"
	EnvModelPath         = "MODEL_PATH"
	EnvModelsDir         = "MODELS_DIR"
	EnvWindowSize        = "WINDOW_SIZE"
	EnvBatchSize         = "BATCH_SIZE"
	EnvEpochs            = "EPOCHS"
	EnvShuffleSeed       = "SHUFFLE_SEED"
	EnvLengthScale       = "GP_LENGTH_SCALE"
	EnvLengthScaleMin    = "GP_LENGTH_SCALE_MIN"
	EnvLengthScaleMax    = "GP_LENGTH_SCALE_MAX"
	EnvAlpha             = "GP_ALPHA"
	EnvRestarts          = "GP_RESTARTS"
	EnvNormalizeY        = "GP_NORMALIZE_Y"
	EnvRandomState       = "GP_RANDOM_STATE"
	EnvPitchMin          = "PITCH_MIN"
	EnvPitchMax          = "PITCH_MAX"
	EnvStrategy          = "SCORING_STRATEGY"
	EnvServerPort        = "SERVER_PORT"
	EnvMetricsPort       = "METRICS_PORT"
	EnvRequestTimeout    = "REQUEST_TIMEOUT"
	EnvForecastCacheSize = "FORECAST_CACHE_SIZE"
	EnvScoringWorkers    = "SCORING_WORKERS"
	EnvEvalWorkers       = "EVAL_WORKERS"
	EnvServerURL         = "SERVER_URL"
	EnvClientTimeout     = "CLIENT_TIMEOUT"
)

// Training presets
const (
	PresetDefault = "default"
	PresetChant   = "chant"
)

// Configuration defaults
const (
	DefaultModelPath         = "models/gp_model.json"
	DefaultModelsDir         = "models"
	DefaultCorpusPath        = "data/normalized_pitch_sequences.csv"
	DefaultTestCasesPath     = "data/test_cases.csv"
	DefaultResultsDir        = "results"
	DefaultWindowSize        = 32
	DefaultBatchSize         = 200
	DefaultEpochs            = 30
	DefaultShuffleSeed       = 42
	DefaultServerPort        = 8081
	DefaultMetricsPort       = 8080
	DefaultForecastCacheSize = 1024
	DefaultEvalWorkers       = 4
	DefaultServerURL         = "http://localhost:8081"
)

// Chant preset defaults
const (
	ChantBatchSize      = 300
	ChantEpochs         = 3
	ChantLengthScale    = 5.0
	ChantLengthScaleMin = 1e-8
)

// Validation constants
const (
	MinWindowSize  = 1
	MaxWindowSize  = 512
	MaxBatchSize   = 5000
	MaxEpochs      = 1000
	MinPort        = 1024
	MaxPort        = 65535
	MaxCacheSize   = 1 << 20
	MaxWorkerCount = 256
)
