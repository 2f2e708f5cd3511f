package main

import (
	"github.com/Matrx007/rrchat/internal/config"
	"github.com/Matrx007/rrchat/internal/db"
	"github.com/Matrx007/rrchat/internal/hub"
	clog "github.com/Matrx007/rrchat/internal/log"
	"github.com/Matrx007/rrchat/internal/server"
	"github.com/Matrx007/rrchat/internal/store"
	"github.com/Matrx007/rrchat/internal/token"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

func main() {
	// main 函数负责加载配置、初始化日志、连接数据库与 Redis 并启动 Gin 服务。
	cfg := config.Load()
	clog.Init(cfg.Env)
	if err := config.Validate(cfg); err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	gdb, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	if err := db.Migrate(gdb); err != nil {
		log.Fatal().Err(err).Msg("db migrate")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	dir := store.NewGormDirectory(gdb)
	tokens := token.NewRedisStore(rdb)
	h := hub.NewHub()

	r := server.SetupRouter(cfg, dir, tokens, h)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server run")
	}
}
