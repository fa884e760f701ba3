package global

import (
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/Ezmad-Ze/chat-app/logger"
)

// Config is the full gateway configuration, loaded from the environment
// (optionally seeded from a .env file). Limits default to the values the
// web clients were built against.
type Config struct {
	HTTPAddr  string `envconfig:"HTTP_ADDR" default:":8080"`
	GatewayID string `envconfig:"GATEWAY_ID"`

	JWTSecret string `envconfig:"JWT_SECRET" required:"true"`

	// Broker selects the fan-out backend: "redis" or "nats".
	Broker        string   `envconfig:"BROKER" default:"redis"`
	RedisAddr     string   `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	RedisPassword string   `envconfig:"REDIS_PASSWORD"`
	RedisDB       int      `envconfig:"REDIS_DB" default:"0"`
	RedisPoolSize int      `envconfig:"REDIS_POOL_SIZE" default:"10"`
	NatsServers   []string `envconfig:"NATS_SERVERS" default:"nats://127.0.0.1:4222"`

	MongoURI      string `envconfig:"MONGO_URI" default:"mongodb://localhost:27017"`
	MongoDatabase string `envconfig:"MONGO_DATABASE" default:"chat"`

	RoomNameMin   int `envconfig:"ROOM_NAME_MIN" default:"3"`
	RoomNameMax   int `envconfig:"ROOM_NAME_MAX" default:"50"`
	MessageMaxLen int `envconfig:"MESSAGE_MAX_LEN" default:"500"`

	SendQueueSize int           `envconfig:"SEND_QUEUE_SIZE" default:"256"`
	WriteTimeout  time.Duration `envconfig:"WRITE_TIMEOUT" default:"5s"`
	FanoutWorkers int           `envconfig:"FANOUT_WORKERS" default:"4"`
	FanoutQueue   int           `envconfig:"FANOUT_QUEUE" default:"1024"`

	SnowflakeNode int64 `envconfig:"SNOWFLAKE_NODE" default:"1"`
}

// Load reads configuration from the environment. A missing .env file is
// not an error.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file loaded")
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if cfg.GatewayID == "" {
		cfg.GatewayID = "gw-" + uuid.NewString()[:8]
	}
	return &cfg, nil
}
