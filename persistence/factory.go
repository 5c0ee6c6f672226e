package persistence

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/phasegate/audit"
	"github.com/BaSui01/phasegate/workflow"
)

// NewSessionStore creates a session store for the configured backend.
func NewSessionStore(cfg StoreConfig, logger *zap.Logger) (workflow.SessionStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Type {
	case StoreTypeMemory, "":
		return NewMemorySessionStore(), nil
	case StoreTypeFile:
		return NewFileSessionStore(cfg.BaseDir)
	case StoreTypeRedis:
		logger.Info("using redis session store", zap.String("addr", cfg.Redis.Addr))
		return NewRedisSessionStore(cfg.Redis)
	default:
		return nil, fmt.Errorf("unsupported session store type: %q", cfg.Type)
	}
}

// NewAuditSink creates an audit sink for the configured backend.
func NewAuditSink(cfg StoreConfig, logger *zap.Logger) (audit.Sink, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Type {
	case StoreTypeMemory, "":
		return audit.NewMemorySink(), nil
	case StoreTypeFile:
		return NewFileAuditStore(cfg.BaseDir)
	case StoreTypeRedis:
		logger.Info("using redis audit store", zap.String("addr", cfg.Redis.Addr))
		return NewRedisAuditStore(cfg.Redis)
	case StoreTypeGorm:
		db, err := OpenAuditDB(cfg.Database)
		if err != nil {
			return nil, err
		}
		logger.Info("using gorm audit store", zap.String("driver", cfg.Database.Driver))
		return NewGormAuditStore(db)
	case StoreTypeMongo:
		logger.Info("using mongo audit store", zap.String("uri", cfg.Mongo.URI))
		return NewMongoAuditStore(cfg.Mongo)
	default:
		return nil, fmt.Errorf("unsupported audit store type: %q", cfg.Type)
	}
}

// Interface compliance checks.
var (
	_ workflow.SessionStore = (*MemorySessionStore)(nil)
	_ workflow.SessionStore = (*FileSessionStore)(nil)
	_ workflow.SessionStore = (*RedisSessionStore)(nil)
	_ audit.Sink            = (*FileAuditStore)(nil)
	_ audit.Sink            = (*RedisAuditStore)(nil)
	_ audit.Sink            = (*GormAuditStore)(nil)
	_ audit.Sink            = (*MongoAuditStore)(nil)
)
