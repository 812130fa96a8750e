package internal

import (
	"log/slog"
	"talkstream/domain"
	"talkstream/feed"
	"talkstream/observability"
	"talkstream/repositories"
	"talkstream/runtime"
	"talkstream/services"
	"time"

	"github.com/dgraph-io/badger/v4"
	"golang.org/x/time/rate"
)

// Core wires the sync core on top of an open Badger database.
type Core struct {
	Users     *services.UserService
	Directory *services.Directory
	Messages  *services.MessageLog
	Engine    *runtime.Engine
	Registry  *runtime.Registry

	userFeed         *feed.Hub[domain.User]
	conversationFeed *feed.Hub[domain.Conversation]
	messageFeed      *feed.Hub[domain.Message]
}

func NewCore(db *badger.DB, log *slog.Logger, metrics *observability.Metrics, config Config) *Core {
	userRepository := repositories.NewUserRepository(db)
	conversationRepository := repositories.NewConversationRepository(db, log)
	messageRepository := repositories.NewMessageRepository(db, log, config.LimitMessages)

	userFeed := feed.NewHub[domain.User](db, log, "users", repositories.DecodeUser, metrics)
	conversationFeed := feed.NewHub[domain.Conversation](db, log, "conversations", repositories.DecodeConversation, metrics)
	messageFeed := feed.NewHub[domain.Message](db, log, "messages", repositories.DecodeMessage, metrics)

	users := services.NewUserService(userRepository, log)
	directory := services.NewDirectory(conversationRepository, userRepository, log, metrics)
	denormalizer := services.NewDenormalizer(messageRepository, log, metrics, services.RetryPolicy{
		InitialInterval: config.AppendInitialBackoff,
		MaxInterval:     config.AppendMaxBackoff,
		MaxAttempts:     config.AppendMaxAttempts,
	})
	messages := services.NewMessageLog(conversationRepository, messageRepository, userRepository,
		denormalizer, messageFeed, log, metrics, config.MaxMessageLength)

	registry := runtime.NewRegistry()
	engine := runtime.NewEngine(log, metrics, conversationFeed, messageFeed, userFeed, users, directory, registry, runtime.Policy{
		InitialBackoff:   config.ResubscribeInitialBackoff,
		MaxBackoff:       config.ResubscribeMaxBackoff,
		DegradedAfter:    config.DegradedAfterAttempts,
		ResubscribeRate:  rate.Limit(config.ResubscribeRate),
		ResubscribeBurst: config.ResubscribeBurst,
		NameCacheSize:    config.NameCacheSize,
	})

	return &Core{
		Users:            users,
		Directory:        directory,
		Messages:         messages,
		Engine:           engine,
		Registry:         registry,
		userFeed:         userFeed,
		conversationFeed: conversationFeed,
		messageFeed:      messageFeed,
	}
}

// Stats is logged by the heartbeat.
func (c *Core) Stats() map[string]any {
	return map[string]any{
		"subscriptions":      c.Registry.Len(),
		"watchUsers":         c.userFeed.Active(),
		"watchConversations": c.conversationFeed.Active(),
		"watchMessages":      c.messageFeed.Active(),
	}
}

// Close ends every subscription, then every watch.
func (c *Core) Close() {
	c.Engine.Shutdown()
	c.userFeed.Close()
	c.conversationFeed.Close()
	c.messageFeed.Close()
}

// DefaultConfig is the configuration obtained from an empty environment,
// pointing at dir.
func DefaultConfig(dir string) Config {
	return Config{
		LogLevel:                  "INFO",
		BadgerFilepath:            dir,
		Host:                      "0.0.0.0",
		Port:                      9090,
		MetricsPort:               9091,
		MaxMessageLength:          domain.DefaultMaxMessageLength,
		RestartInterval:           200 * time.Millisecond,
		MetricInterval:            15 * time.Second,
		AppendInitialBackoff:      services.DefaultRetryPolicy.InitialInterval,
		AppendMaxBackoff:          services.DefaultRetryPolicy.MaxInterval,
		AppendMaxAttempts:         services.DefaultRetryPolicy.MaxAttempts,
		ResubscribeInitialBackoff: runtime.DefaultPolicy.InitialBackoff,
		ResubscribeMaxBackoff:     runtime.DefaultPolicy.MaxBackoff,
		ResubscribeRate:           float64(runtime.DefaultPolicy.ResubscribeRate),
		ResubscribeBurst:          runtime.DefaultPolicy.ResubscribeBurst,
		DegradedAfterAttempts:     runtime.DefaultPolicy.DegradedAfter,
		NameCacheSize:             runtime.DefaultPolicy.NameCacheSize,
	}
}
