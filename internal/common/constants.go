package common

// Service identity
const (
	ServiceName        = "AfyaBand ML Prediction Service"
	ServiceDescription = "Hypertension risk prediction using trained ML models"
	ServiceVersion     = "1.0.0"
)

// Environment variable keys
const (
	EnvConfigFile        = "CONFIG_FILE"
	EnvHost              = "HOST"
	EnvPort              = "PORT"
	EnvDebug             = "DEBUG"
	EnvModelsDir         = "MODELS_DIR"
	EnvRandomForestModel = "RANDOM_FOREST_MODEL"
	EnvXGBoostModel      = "XGBOOST_MODEL"
	EnvPythonPath        = "PYTHON_PATH"
	EnvInferenceTimeout  = "INFERENCE_TIMEOUT"
	EnvEnableSurrogates  = "ENABLE_SURROGATES"
	EnvDefaultAge        = "DEFAULT_AGE"
	EnvDefaultBMI        = "DEFAULT_BMI"
	EnvCriticalThreshold = "CRITICAL_THRESHOLD"
	EnvWarningThreshold  = "WARNING_THRESHOLD"
	EnvDataPath          = "DATA_PATH"
	EnvStreamWindow      = "STREAM_WINDOW"
	EnvStreamMinReadings = "STREAM_MIN_READINGS"
	EnvCORSOrigins       = "CORS_ORIGINS"
	EnvLogLevel          = "LOG_LEVEL"
	EnvLogFormat         = "LOG_FORMAT"
)

// Configuration defaults
const (
	DefaultHost              = "0.0.0.0"
	DefaultPort              = 8000
	DefaultModelsDir         = "ml_models"
	DefaultRandomForestModel = "random_forest_model.pkl"
	DefaultXGBoostModel      = "xgboost_model.pkl"
	DefaultAge               = 45
	DefaultBMI               = 25.0
	DefaultCriticalThreshold = 70.0
	DefaultWarningThreshold  = 40.0
	DefaultStreamWindow      = 60
	DefaultStreamMinReadings = 5
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "json"
	DefaultDeviceID          = "anonymous"
)

// Profile ranges used to check configured defaults
const (
	MinAge = 0
	MaxAge = 150
	MinBMI = 10.0
	MaxBMI = 100.0
)

// Validation constants
const (
	MinPort         = 1
	MaxPort         = 65535
	MinStreamWindow = 1
	MaxStreamWindow = 10000
)
