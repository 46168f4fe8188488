package storage

import (
	"FamilyWell/storage/database"
	"FamilyWell/storage/mq"
	"FamilyWell/storage/redis"
)

// Init 统一初始化 storage 层：Database -> Redis -> MQ
func Init() error {
	if err := database.Init(); err != nil {
		return err
	}

	if err := redis.Init(); err != nil {
		return err
	}

	return mq.Init()
}
