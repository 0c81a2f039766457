package server

import (
	"github.com/jinzhu/configor"
	"github.com/pkg/errors"
)

type Config struct {
	SocketConfig struct {
		PingPeriodTime                int   `default:"8000"`
		PongWaitTime                  int   `default:"10000"`
		WriteWaitTime                 int   `default:"5000"`
		ReceivedMessageDecrementCount int   `default:"20"`
		OutgoingQueueSize             int   `default:"64"`
		MaxMessageSize                int64 `default:"4096"`
	}
	//Empty connection strings keep the related module in memory or disabled
	DBConfig struct {
		ConnString string `default:""`
		Database   string `default:"pong"`
	}
	RedisConfig struct {
		ConnString     string `default:""`
		ClusterEnabled bool   `default:"false"`
		PoolSize       int    `default:"10"`
	}
	RabbitMQ struct {
		ConnectionString string `default:""`
		Exchange         string `default:"pong.messages"`
		EventExchange    string `default:"pong.events"`
	}
	AuthConfig struct {
		//Empty rejects every token
		JWTSecret  string `default:""`
		CookieName string `default:"pn-jwt"`
	}
	GameConfig struct {
		WinScore      int     `default:"5"`
		BallTolerance float64 `default:"0.1"`
		//Seconds, 0 disables idle room expiry
		RoomIdleTimeout int `default:"0"`
		SweepInterval   int `default:"60"`
	}
	Port               int  `default:"7350"`
	DevelopmentEnabled bool `default:"false"`
	NotificationConfig struct {
		AppKey string
		AppID  string
	}
}

//LoadConfig reads the given files in order. Missing files are skipped and defaults are applied.
func LoadConfig(files ...string) (*Config, error) {
	config := &Config{}
	if err := configor.Load(config, files...); err != nil {
		return nil, errors.Wrap(err, "could not load configuration")
	}
	return config, nil
}
