// Package cache provee el almacenamiento efímero del broker.
//
// Guarda el estado de corta vida del protocolo: authorization codes,
// pending authorize requests y tombstones de codes consumidos.
//
// Soporta:
//   - Memory (in-process, para desarrollo/testing)
//   - Redis (distribuido, para producción)
package cache

import (
	"context"
	"time"
)

// Client define las operaciones de cache.
type Client interface {
	// Get obtiene un valor. found=false si no existe o expiró.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)

	// Set guarda un valor con TTL. ttl <= 0 usa el default del driver.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete elimina una key.
	Delete(ctx context.Context, key string) error

	// Take obtiene y elimina atómicamente. Es el punto de serialización
	// estricta del broker: dos Take concurrentes de la misma key entregan
	// el valor exactamente a uno.
	Take(ctx context.Context, key string) (value []byte, found bool, err error)

	// Ping verifica la conexión.
	Ping(ctx context.Context) error

	// Close cierra la conexión.
	Close() error
}

// Config configuración para crear un cliente de cache.
type Config struct {
	Kind       string // "memory" | "redis"
	Addr       string // redis host:port
	Password   string
	DB         int
	Prefix     string // Prefijo para todas las keys
	DefaultTTL time.Duration
}

// New crea un cliente de cache según la configuración.
func New(cfg Config) (Client, error) {
	switch cfg.Kind {
	case "redis":
		return NewRedis(cfg)
	default:
		return NewMemory(cfg.Prefix, cfg.DefaultTTL), nil
	}
}
