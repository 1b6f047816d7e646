package models

const (
	// DefaultDrainInterval время между плановыми запусками очереди, в секундах
	DefaultDrainInterval = 5 * 60

	// DefaultDrainLockTTL время жизни блокировки активного прогона, в секундах
	DefaultDrainLockTTL = 30 * 60

	// DrainLockKey ключ блокировки, сериализующей прогоны очереди
	DrainLockKey = "schedule:drain"

	// DefaultShotgridPageSize размер страницы Shotgrid REST API
	DefaultShotgridPageSize = 500

	// DefaultListLimit лимит листингов расписания по умолчанию
	DefaultListLimit = 100

	// MaxListLimit верхняя граница лимита листингов
	MaxListLimit = 1000
)
