package handlers

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/kseverny/interview-platform/internal/ai"
	"github.com/kseverny/interview-platform/internal/chat"
	"github.com/kseverny/interview-platform/internal/common"
	"github.com/kseverny/interview-platform/internal/config"
	"github.com/kseverny/interview-platform/internal/email"
	"github.com/kseverny/interview-platform/internal/store/rabbitmq"
	"github.com/kseverny/interview-platform/internal/store/redisstore"
)

type Handler struct {
	DB          *gorm.DB
	Cfg         config.Config
	Redis       *redisstore.Store
	Rabbit      *rabbitmq.Publisher
	SMTPSetting email.SMTPConfig
	ChatSvc     *chat.Service
	Repo        *chat.Repo
}

func NewHandler(db *gorm.DB, cfg config.Config, rds *redisstore.Store, rabbit *rabbitmq.Publisher) *Handler {
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
	provider, err := reg.Get(context.Background(), cfg.AIProvider, "")
	if err != nil {
		panic(fmt.Sprintf("unsupported AI_PROVIDER=%q", cfg.AIProvider))
	}

	repo := chat.NewRepo(db)
	sessions := chat.NewManager(repo, rds, cfg.ChatSnapshotTTL, cfg.ChatNotifyTTL)
	queue := chat.NewQueue(rds, cfg.ChatSnapshotTTL)
	engine := chat.NewEngine(repo, nil)
	chatSvc := chat.NewService(repo, sessions, queue, engine, provider)

	return &Handler{
		DB:     db,
		Cfg:    cfg,
		Redis:  rds,
		Rabbit: rabbit,
		SMTPSetting: email.SMTPConfig{
			Host: cfg.SMTPHost,
			Port: cfg.SMTPPort,
			User: cfg.SMTPUser,
			Pass: cfg.SMTPPass,
			From: cfg.SMTPFrom,
		},
		ChatSvc: chatSvc,
		Repo:    repo,
	}
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"pong": true})
}
