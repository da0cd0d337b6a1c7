package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/kseverny/interview-platform/internal/ai"
	"github.com/kseverny/interview-platform/internal/chat"
	"github.com/kseverny/interview-platform/internal/config"
	"github.com/kseverny/interview-platform/internal/db"
	"github.com/kseverny/interview-platform/internal/store/rabbitmq"
	"github.com/kseverny/interview-platform/internal/store/redisstore"
)

func workerConcurrency() int {
	v := os.Getenv("WORKER_CONCURRENCY")
	if v == "" {
		return 2
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 2
	}
	if n > 50 {
		return 50
	}
	return n
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.With().Str("service", "worker").Logger()

	cfg := config.Load()

	gdb := db.Connect(cfg.DBDSN)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rds, err := redisstore.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Fatal().Err(err).Msg("redis connect")
	}
	defer rds.Close()

	reg := ai.NewRegistry()
	reg.Register("ollama", func(_ context.Context, model string) (ai.Provider, error) {
		if model == "" {
			model = cfg.OllamaModel
		}
		return ai.NewOllamaProvider(cfg.OllamaBaseURL, model, cfg.AITimeout), nil
	})
	reg.Register("openrouter", func(_ context.Context, model string) (ai.Provider, error) {
		if model == "" {
			model = cfg.OpenRouterModel
		}
		return ai.NewOpenRouterProvider(cfg.OpenRouterBaseURL, cfg.OpenRouterAPIKey, model, cfg.AITimeout), nil
	})
	provider, err := reg.Get(ctx, cfg.AIProvider, "")
	if err != nil {
		log.Fatal().Err(err).Str("provider", cfg.AIProvider).Msg("ai provider")
	}

	repo := chat.NewRepo(gdb)
	sessions := chat.NewManager(repo, rds, cfg.ChatSnapshotTTL, cfg.ChatNotifyTTL)
	queue := chat.NewQueue(rds, cfg.ChatSnapshotTTL)
	engine := chat.NewEngine(repo, nil)
	svc := chat.NewService(repo, sessions, queue, engine, provider)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatal().Err(err).Msg("rabbit dial")
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.Fatal().Err(err).Msg("rabbit channel")
	}
	defer ch.Close()

	// must match the publisher's topology or the declare fails
	if _, err := ch.QueueDeclare(cfg.RabbitQueue+".dlq", true, false, false, false, nil); err != nil {
		log.Fatal().Err(err).Msg("dlq declare")
	}
	if _, err := ch.QueueDeclare(cfg.RabbitQueue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": cfg.RabbitQueue + ".dlq",
	}); err != nil {
		log.Fatal().Err(err).Msg("queue declare")
	}

	concurrency := workerConcurrency()
	if err := ch.Qos(concurrency, 0, false); err != nil {
		log.Fatal().Err(err).Msg("qos")
	}

	msgs, err := ch.Consume(cfg.RabbitQueue, "", false, false, false, false, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("consume")
	}

	log.Info().Str("queue", cfg.RabbitQueue).Int("concurrency", concurrency).Msg("worker started")

	turns := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range turns {
				var m rabbitmq.TurnMessage
				if err := json.Unmarshal(d.Body, &m); err != nil || m.ChatID == 0 {
					log.Warn().Int("worker", workerID).Err(err).Msg("bad message")
					_ = d.Nack(false, false)
					continue
				}

				start := time.Now()
				// no requeue: the queue cell is already released and a
				// replay would pop someone else's cell
				if _, err := svc.ProcessTurn(ctx, m.ChatID, m.UserID, m.Content); err != nil {
					log.Error().
						Int("worker", workerID).
						Str("job_id", m.JobID).
						Uint64("chat_id", m.ChatID).
						Dur("cost", time.Since(start)).
						Err(err).
						Msg("turn failed")
					_ = d.Nack(false, false)
					continue
				}

				log.Info().
					Int("worker", workerID).
					Str("job_id", m.JobID).
					Uint64("chat_id", m.ChatID).
					Dur("cost", time.Since(start)).
					Msg("turn done")

				if err := d.Ack(false); err != nil {
					log.Warn().Int("worker", workerID).Str("job_id", m.JobID).Err(err).Msg("ack failed")
				}
			}
		}(i)
	}

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("worker shutting down")
			close(turns)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				log.Warn().Msg("delivery channel closed")
				time.Sleep(1 * time.Second)
				continue
			}
			turns <- d
		}
	}
}
