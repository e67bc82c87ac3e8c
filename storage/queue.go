package storage

import (
	"log"
	"os"

	"github.com/hibiken/asynq"
)

// Queue enqueues background tasks (notification dispatch, social publishing).
var Queue *asynq.Client

func queueRedisOpt() asynq.RedisClientOpt {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = "localhost:6379"
	}
	return asynq.RedisClientOpt{Addr: redisURL, Password: os.Getenv("REDIS_PASSWORD")}
}

func InitializeQueue() {
	Queue = asynq.NewClient(queueRedisOpt())
	log.Println("Task queue client initialized")
}

// NewQueueServer builds the worker server and its mux. Handlers are registered
// by the services that own each task type; main runs the server in a goroutine.
func NewQueueServer() (*asynq.Server, *asynq.ServeMux) {
	srv := asynq.NewServer(queueRedisOpt(), asynq.Config{
		Concurrency: 10,
		Queues:      map[string]int{"default": 1, "outbound": 2},
	})
	return srv, asynq.NewServeMux()
}
