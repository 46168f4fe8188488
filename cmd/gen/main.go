package main

import (
	"FamilyWell/internal/repository"
	"FamilyWell/pkg/logger"
)

func main() {
	logger.Init("gen")
	defer logger.Sync()

	repository.RunGenerate()
}
