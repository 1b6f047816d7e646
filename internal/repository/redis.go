package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"leecher/internal/config"
	"leecher/internal/models"

	"github.com/redis/go-redis/v9"
)

// appendLogScript records a log at most once per queue item.
var appendLogScript = redis.NewScript(`
if redis.call('HSETNX', KEYS[1], ARGV[1], ARGV[2]) == 1 then
  redis.call('RPUSH', KEYS[2], ARGV[3])
  return 1
end
return 0
`)

// RedisScheduleStore keeps the schedule in a handful of keys under a prefix:
// a projects hash, a queue id list with an items hash, and a log list with
// a queue item index.
type RedisScheduleStore struct {
	client *redis.Client
	prefix string
}

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	return redis.NewClient(options)
}

func NewRedisScheduleStore(client *redis.Client, prefix string) *RedisScheduleStore {
	if prefix == "" {
		prefix = "leecher:schedule"
	}
	return &RedisScheduleStore{client: client, prefix: prefix}
}

func (r *RedisScheduleStore) key(name string) string {
	return r.prefix + ":" + name
}

func (r *RedisScheduleStore) UpsertProject(ctx context.Context, project *models.ScheduleProject) error {
	data, err := json.Marshal(project)
	if err != nil {
		return fmt.Errorf("failed to marshal project: %w", err)
	}
	if err := r.client.HSet(ctx, r.key("projects"), project.ProjectName, data).Err(); err != nil {
		return fmt.Errorf("failed to store project in redis: %w", err)
	}
	return nil
}

func (r *RedisScheduleStore) DeleteProject(ctx context.Context, projectName string) (bool, error) {
	n, err := r.client.HDel(ctx, r.key("projects"), projectName).Result()
	if err != nil {
		return false, fmt.Errorf("failed to delete project from redis: %w", err)
	}
	return n > 0, nil
}

func (r *RedisScheduleStore) ListProjects(ctx context.Context, q models.ListQuery) ([]*models.ScheduleProject, error) {
	raw, err := r.client.HGetAll(ctx, r.key("projects")).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}

	projects := make([]*models.ScheduleProject, 0, len(raw))
	for name, val := range raw {
		var p models.ScheduleProject
		if err := json.Unmarshal([]byte(val), &p); err != nil {
			return nil, fmt.Errorf("failed to unmarshal project %s: %w", name, err)
		}
		projects = append(projects, &p)
	}
	sort.Slice(projects, func(i, j int) bool {
		if projects[i].UpdatedAt.Equal(projects[j].UpdatedAt) {
			return projects[i].ProjectName < projects[j].ProjectName
		}
		return projects[i].UpdatedAt.Before(projects[j].UpdatedAt)
	})
	return models.Page(projects, q, func(p *models.ScheduleProject) string { return p.ProjectName }), nil
}

func (r *RedisScheduleStore) EnqueueItem(ctx context.Context, item *models.ScheduleQueueItem) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal queue item: %w", err)
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, r.key("queue:items"), item.ID, data)
		pipe.RPush(ctx, r.key("queue"), item.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue item: %w", err)
	}
	return nil
}

func (r *RedisScheduleStore) ListQueue(ctx context.Context, q models.ListQuery) ([]*models.ScheduleQueueItem, error) {
	items, err := r.queue(ctx)
	if err != nil {
		return nil, err
	}
	return models.Page(items, q, func(i *models.ScheduleQueueItem) string { return i.Command.ProjectName }), nil
}

func (r *RedisScheduleStore) queue(ctx context.Context) ([]*models.ScheduleQueueItem, error) {
	ids, err := r.client.LRange(ctx, r.key("queue"), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read queue: %w", err)
	}
	if len(ids) == 0 {
		return []*models.ScheduleQueueItem{}, nil
	}

	vals, err := r.client.HMGet(ctx, r.key("queue:items"), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read queue items: %w", err)
	}

	items := make([]*models.ScheduleQueueItem, 0, len(vals))
	for i, val := range vals {
		s, ok := val.(string)
		if !ok {
			// id без тела: элемент удалён между LRANGE и HMGET
			continue
		}
		var item models.ScheduleQueueItem
		if err := json.Unmarshal([]byte(s), &item); err != nil {
			return nil, fmt.Errorf("failed to unmarshal queue item %s: %w", ids[i], err)
		}
		items = append(items, &item)
	}
	return items, nil
}

func (r *RedisScheduleStore) RemoveQueueItem(ctx context.Context, id string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, r.key("queue"), 0, id)
		pipe.HDel(ctx, r.key("queue:items"), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to remove queue item: %w", err)
	}
	return nil
}

func (r *RedisScheduleStore) PurgeQueue(ctx context.Context, projectName string) (int, error) {
	items, err := r.queue(ctx)
	if err != nil {
		return 0, err
	}

	var ids []string
	for _, item := range items {
		if item.Command.ProjectName == projectName {
			ids = append(ids, item.ID)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range ids {
			pipe.LRem(ctx, r.key("queue"), 0, id)
		}
		pipe.HDel(ctx, r.key("queue:items"), ids...)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to purge queue: %w", err)
	}
	return len(ids), nil
}

func (r *RedisScheduleStore) AppendLog(ctx context.Context, log *models.ScheduleLog) error {
	data, err := json.Marshal(log)
	if err != nil {
		return fmt.Errorf("failed to marshal log: %w", err)
	}
	keys := []string{r.key("logs:index"), r.key("logs")}
	if err := appendLogScript.Run(ctx, r.client, keys, log.QueueItemID, log.ID, data).Err(); err != nil {
		return fmt.Errorf("failed to append log: %w", err)
	}
	return nil
}

func (r *RedisScheduleStore) HasLog(ctx context.Context, queueItemID string) (bool, error) {
	ok, err := r.client.HExists(ctx, r.key("logs:index"), queueItemID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check log: %w", err)
	}
	return ok, nil
}

func (r *RedisScheduleStore) ListLogs(ctx context.Context, q models.ListQuery) ([]*models.ScheduleLog, error) {
	vals, err := r.client.LRange(ctx, r.key("logs"), 0, -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to read logs: %w", err)
	}

	logs := make([]*models.ScheduleLog, 0, len(vals))
	for _, val := range vals {
		var l models.ScheduleLog
		if err := json.Unmarshal([]byte(val), &l); err != nil {
			return nil, fmt.Errorf("failed to unmarshal log: %w", err)
		}
		logs = append(logs, &l)
	}
	return models.Page(logs, q, func(l *models.ScheduleLog) string { return l.ProjectName }), nil
}

func (r *RedisScheduleStore) Ping(ctx context.Context) error {
	return Ping(ctx, r.client)
}

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	if client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
