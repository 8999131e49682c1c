package config

type RedisConfig interface {
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
	GetRedisKeyPrefix() string
}

// Redis holds the token store backend settings. An empty Addr selects the in-memory backend.
type Redis struct {
	Addr      string `env:"ADDR"`
	Password  string `env:"PASSWORD"`
	DB        int    `env:"DB" envDefault:"0" validate:"gte=0"`
	KeyPrefix string `env:"KEY_PREFIX" envDefault:"erp:"`
}

var _ RedisConfig = Redis{}

func (r Redis) GetRedisAddr() string      { return r.Addr }
func (r Redis) GetRedisPassword() string  { return r.Password }
func (r Redis) GetRedisDB() int           { return r.DB }
func (r Redis) GetRedisKeyPrefix() string { return r.KeyPrefix }
