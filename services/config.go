package services

import (
	"log/slog"
	"strings"
	"time"

	"github.com/krshsl/mensetsu/backend/repository"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Database  repository.Config
	AI        AIConfig
	Speech    SpeechConfig
	JWT       JWTConfig
	WebSocket WebSocketConfig
	RateLimit RateLimitConfig
	Seed      SeedConfig
}

type ServerConfig struct {
	Port string
}

type LogConfig struct {
	Level string
}

type AIConfig struct {
	GeminiAPIKeys []string
	ModelName     string
	Timeout       time.Duration
}

type SpeechConfig struct {
	ElevenLabsKey string
	VoiceGender   string
	Timeout       time.Duration
	AudioDir      string
	CacheDir      string
}

type JWTConfig struct {
	Secret    string
	Algorithm string
	TTL       time.Duration
}

type WebSocketConfig struct {
	AllowedOrigins string
}

type RateLimitConfig struct {
	PerMinute int
}

type SeedConfig struct {
	DemoUser bool
}

// LoadConfig loads configuration from environment variables and config files
func LoadConfig() *Config {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("websocket.allowed_origins", "")
	viper.SetDefault("jwt.secret", "change-me")
	viper.SetDefault("jwt.algorithm", "HS256")
	viper.SetDefault("jwt.ttl", "60m")
	viper.SetDefault("database.in_memory", false)
	viper.SetDefault("database.sqlite_path", "")
	viper.SetDefault("database.url", "")
	viper.SetDefault("database.max_open_conns", "10")
	viper.SetDefault("database.log_level", "silent")
	viper.SetDefault("firestore.project_id", "")
	viper.SetDefault("firestore.credentials_file", "")
	viper.SetDefault("firestore.users_collection", "users")
	viper.SetDefault("firestore.interviews_collection", "interviews")
	viper.SetDefault("gemini.api_keys", "")
	viper.SetDefault("gemini.api_key", "")
	viper.SetDefault("gemini.model_name", "gemini-2.5-flash")
	viper.SetDefault("gemini.timeout", "30s")
	viper.SetDefault("elevenlabs.api_key", "")
	viper.SetDefault("elevenlabs.voice_gender", "female")
	viper.SetDefault("speech.timeout", "60s")
	viper.SetDefault("audio.dir", "static/audio")
	viper.SetDefault("audio.cache_dir", "")
	viper.SetDefault("seed.demo_user", false)
	viper.SetDefault("rate_limit.per_minute", "30")

	// Map environment variables to config keys
	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("log.level", "LOG_LEVEL")
	viper.BindEnv("websocket.allowed_origins", "ALLOWED_ORIGINS")
	viper.BindEnv("jwt.secret", "JWT_SECRET")
	viper.BindEnv("jwt.algorithm", "JWT_ALGORITHM")
	viper.BindEnv("jwt.ttl", "JWT_TTL")
	viper.BindEnv("database.in_memory", "USE_IN_MEMORY_DB")
	viper.BindEnv("database.sqlite_path", "SQLITE_DB_PATH")
	viper.BindEnv("database.url", "DATABASE_URL")
	viper.BindEnv("database.max_open_conns", "DATABASE_MAX_OPEN_CONNS")
	viper.BindEnv("database.log_level", "DATABASE_LOG_LEVEL")
	viper.BindEnv("firestore.project_id", "FIRESTORE_PROJECT_ID")
	viper.BindEnv("firestore.credentials_file", "FIRESTORE_CREDENTIALS_FILE")
	viper.BindEnv("firestore.users_collection", "FIRESTORE_USERS_COLLECTION")
	viper.BindEnv("firestore.interviews_collection", "FIRESTORE_INTERVIEWS_COLLECTION")
	viper.BindEnv("gemini.api_keys", "GEMINI_API_KEYS")
	viper.BindEnv("gemini.api_key", "GEMINI_API_KEY")
	viper.BindEnv("gemini.model_name", "GEMINI_MODEL_NAME")
	viper.BindEnv("gemini.timeout", "GEMINI_TIMEOUT")
	viper.BindEnv("elevenlabs.api_key", "ELEVENLABS_API_KEY")
	viper.BindEnv("elevenlabs.voice_gender", "ELEVENLABS_VOICE_GENDER")
	viper.BindEnv("speech.timeout", "SPEECH_TIMEOUT")
	viper.BindEnv("audio.dir", "AUDIO_DIR")
	viper.BindEnv("audio.cache_dir", "AUDIO_CACHE_DIR")
	viper.BindEnv("seed.demo_user", "SEED_DEMO_USER")
	viper.BindEnv("rate_limit.per_minute", "RATE_LIMIT_PER_MINUTE")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			slog.Warn("Config file not found, using defaults and environment variables")
		} else {
			slog.Error("Error reading config file", "error", err)
		}
	}

	return configFromViper()
}

func configFromViper() *Config {
	return &Config{
		Server: ServerConfig{
			Port: viper.GetString("server.port"),
		},
		Log: LogConfig{
			Level: viper.GetString("log.level"),
		},
		Database: repository.Config{
			UseInMemory:  viper.GetBool("database.in_memory"),
			SQLitePath:   viper.GetString("database.sqlite_path"),
			DatabaseURL:  viper.GetString("database.url"),
			MaxOpenConns: viper.GetInt("database.max_open_conns"),
			LogLevel:     viper.GetString("database.log_level"),
			Firestore: repository.FirestoreConfig{
				ProjectID:            viper.GetString("firestore.project_id"),
				CredentialsFile:      viper.GetString("firestore.credentials_file"),
				UsersCollection:      viper.GetString("firestore.users_collection"),
				InterviewsCollection: viper.GetString("firestore.interviews_collection"),
			},
		},
		AI: AIConfig{
			GeminiAPIKeys: geminiKeys(viper.GetString("gemini.api_keys"), viper.GetString("gemini.api_key")),
			ModelName:     viper.GetString("gemini.model_name"),
			Timeout:       viper.GetDuration("gemini.timeout"),
		},
		Speech: SpeechConfig{
			ElevenLabsKey: viper.GetString("elevenlabs.api_key"),
			VoiceGender:   viper.GetString("elevenlabs.voice_gender"),
			Timeout:       viper.GetDuration("speech.timeout"),
			AudioDir:      viper.GetString("audio.dir"),
			CacheDir:      viper.GetString("audio.cache_dir"),
		},
		JWT: JWTConfig{
			Secret:    viper.GetString("jwt.secret"),
			Algorithm: viper.GetString("jwt.algorithm"),
			TTL:       viper.GetDuration("jwt.ttl"),
		},
		WebSocket: WebSocketConfig{
			AllowedOrigins: viper.GetString("websocket.allowed_origins"),
		},
		RateLimit: RateLimitConfig{
			PerMinute: viper.GetInt("rate_limit.per_minute"),
		},
		Seed: SeedConfig{
			DemoUser: viper.GetBool("seed.demo_user"),
		},
	}
}

// geminiKeys merges the comma-separated key list with the single-key
// setting, keeping order and dropping blanks and duplicates.
func geminiKeys(list, single string) []string {
	var keys []string
	seen := map[string]bool{}
	for _, key := range append(strings.Split(list, ","), single) {
		key = strings.TrimSpace(key)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		keys = append(keys, key)
	}
	return keys
}
