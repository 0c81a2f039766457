package server

import (
	"github.com/mediocregopher/radix/v3"
	"github.com/pkg/errors"
)

//ConnectRedis returns nil when no redis is configured
func ConnectRedis(config *Config) (radix.Client, error) {
	if config.RedisConfig.ConnString == "" {
		return nil, nil
	}

	if config.RedisConfig.ClusterEnabled {
		client, err := radix.NewCluster([]string{config.RedisConfig.ConnString})
		if err != nil {
			return nil, errors.Wrap(err, "redis cluster connection failed")
		}
		return client, nil
	}

	client, err := radix.NewPool("tcp", config.RedisConfig.ConnString, config.RedisConfig.PoolSize)
	if err != nil {
		return nil, errors.Wrap(err, "redis connection failed")
	}
	return client, nil
}
