package bucket

import (
	redis "github.com/redis/go-redis/v9"
	"github.com/tallyops/meridian/internal/bucket/service"
	"github.com/tallyops/meridian/internal/config"
	"go.uber.org/fx"
)

func newLocker(cfg config.Config) *service.Locker {
	if cfg.RedisAddr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	return service.NewLocker(client)
}

var Module = fx.Module("bucket.service",
	fx.Provide(newLocker),
	fx.Provide(service.NewService),
)
