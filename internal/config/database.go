// internal/config/database.go
package config

import (
	"fmt"
	"net"
	"time"
)

func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
	)
}

func (r *RedisConfig) Enabled() bool {
	return r.Host != ""
}

func (r *RedisConfig) Addr() string {
	return net.JoinHostPort(r.Host, r.Port)
}

func (f *FulfillmentConfig) RequestDeadline() time.Duration {
	return time.Duration(f.RequestTimeout) * time.Second
}

func (f *FulfillmentConfig) PrintAssetsDeadline() time.Duration {
	return time.Duration(f.PrintAssetsTimeout) * time.Second
}
