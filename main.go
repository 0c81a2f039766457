package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"pnpong/game"
	"pnpong/server"
)

func main() {

	config, err := server.LoadConfig("config.yml")
	if err != nil {
		panic(err)
	}

	logger := server.NewLogger(config)
	defer logger.Sync()

	if config.AuthConfig.JWTSecret == "" {
		logger.Warn("No jwt secret configured, every socket stays unauthenticated")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stats := server.NewStatsHolder(logger)
	sessionHolder := server.NewSessionHolder()

	redis, err := server.ConnectRedis(config)
	if err != nil {
		logger.Fatalw("Error while connecting redis", "error", err)
	}
	var directory server.Directory = server.NewLocalDirectory()
	if redis != nil {
		directory = server.NewRedisDirectory(redis, logger)
		defer redis.Close()
	}

	db := server.ConnectDB(config, logger)
	if db != nil {
		defer db.Close()
	}
	results := server.NewResultStore(db, config)
	notification := server.NewNotificationService(db, config, directory, logger)
	pubSub := server.NewPubSub(config, sessionHolder, logger, ctx)

	coordinator := game.NewCoordinator(game.Options{
		WinScore:      config.GameConfig.WinScore,
		BallTolerance: config.GameConfig.BallTolerance,
	})

	pipeline := server.NewPipeline(config, coordinator, sessionHolder, directory, results, pubSub, notification, stats, logger)

	sweeper := server.NewSweeper(config, pipeline)
	sweeper.Start()

	s := server.StartServer(sessionHolder, config, pipeline, stats, logger)

	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Startup was completed")

	<-c

	sweeper.Stop()
	s.Stop()
	logger.Info("Shutdown was completed")

}
