package persistence

import (
	"fmt"
	"time"
)

// StoreType represents the type of storage backend.
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeFile   StoreType = "file"
	StoreTypeRedis  StoreType = "redis"
	StoreTypeGorm   StoreType = "gorm"
	StoreTypeMongo  StoreType = "mongo"
)

// RedisConfig contains Redis-specific configuration.
type RedisConfig struct {
	// Addr is the Redis server address, host:port.
	Addr string `json:"addr" yaml:"addr"`

	// Password is the Redis password (optional).
	Password string `json:"password" yaml:"password"`

	// DB is the Redis database number.
	DB int `json:"db" yaml:"db"`

	// PoolSize is the connection pool size.
	PoolSize int `json:"pool_size" yaml:"pool_size"`

	// KeyPrefix is the prefix for all Redis keys.
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix"`

	// SessionTTL expires idle session keys. Zero means no expiry.
	SessionTTL time.Duration `json:"session_ttl" yaml:"session_ttl"`
}

// DatabaseConfig contains relational database configuration for the GORM
// audit store.
type DatabaseConfig struct {
	// Driver is one of: postgres, mysql, sqlite.
	Driver   string `json:"driver" yaml:"driver"`
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	User     string `json:"user" yaml:"user"`
	Password string `json:"password" yaml:"password"`
	Name     string `json:"name" yaml:"name"`
	SSLMode  string `json:"ssl_mode" yaml:"ssl_mode"`
}

// DSN returns the driver-specific connection string.
func (d DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}

// MongoConfig contains MongoDB configuration for the document audit store.
type MongoConfig struct {
	URI        string `json:"uri" yaml:"uri"`
	Database   string `json:"database" yaml:"database"`
	Collection string `json:"collection" yaml:"collection"`
}

// StoreConfig is the base configuration for all store implementations.
type StoreConfig struct {
	// Type is the storage backend type.
	Type StoreType `json:"type" yaml:"type"`

	// BaseDir is the base directory for file-based storage.
	BaseDir string `json:"base_dir" yaml:"base_dir"`

	// Redis configuration (only used when Type is "redis").
	Redis RedisConfig `json:"redis" yaml:"redis"`

	// Database configuration (only used when Type is "gorm").
	Database DatabaseConfig `json:"database" yaml:"database"`

	// Mongo configuration (only used when Type is "mongo").
	Mongo MongoConfig `json:"mongo" yaml:"mongo"`
}

// DefaultStoreConfig returns the default store configuration.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Type:    StoreTypeMemory,
		BaseDir: "./data/phasegate",
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			PoolSize:  10,
			KeyPrefix: "phasegate:",
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			Name:   "phasegate.db",
		},
		Mongo: MongoConfig{
			URI:        "mongodb://localhost:27017",
			Database:   "phasegate",
			Collection: "audit_records",
		},
	}
}
