package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/storefront/internal/model"
)

// Named staging slots
const (
	KeyCheckoutData = "checkout_data"
	KeyOrderID      = "order_id"
	keyFlash        = "flash"
)

var ErrNoSession = errors.New("session key is required")

// Staging is a per-session key-value area with a TTL
type Staging interface {
	Set(ctx context.Context, sessionKey, name string, value []byte) error
	Get(ctx context.Context, sessionKey, name string) ([]byte, bool, error)
	Delete(ctx context.Context, sessionKey, name string) error
}

// RedisStaging stores staged values under session:{key}:{name}
type RedisStaging struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStaging(client *redis.Client, ttl time.Duration) *RedisStaging {
	return &RedisStaging{client: client, ttl: ttl}
}

func stagingKey(sessionKey, name string) string {
	return fmt.Sprintf("session:%s:%s", sessionKey, name)
}

func (r *RedisStaging) Set(ctx context.Context, sessionKey, name string, value []byte) error {
	if err := r.client.Set(ctx, stagingKey(sessionKey, name), value, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisStaging) Get(ctx context.Context, sessionKey, name string) ([]byte, bool, error) {
	data, err := r.client.Get(ctx, stagingKey(sessionKey, name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}
	return data, true, nil
}

func (r *RedisStaging) Delete(ctx context.Context, sessionKey, name string) error {
	if err := r.client.Del(ctx, stagingKey(sessionKey, name)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

// Context is the explicit per-request session: who is calling, which
// anonymous session they hold, and their staging area.
type Context struct {
	UserID     string
	Email      string
	Role       string
	SessionKey string

	staging Staging
}

// New creates an anonymous session context
func New(sessionKey string, staging Staging) *Context {
	return &Context{SessionKey: sessionKey, staging: staging}
}

// WithIdentity attaches an authenticated account to the session
func (c *Context) WithIdentity(userID, email, role string) *Context {
	c.UserID = userID
	c.Email = email
	c.Role = role
	return c
}

func (c *Context) IsAuthenticated() bool {
	return c != nil && c.UserID != ""
}

// IsStaff reports whether the caller may use the admin panel
func (c *Context) IsStaff() bool {
	return c.IsAuthenticated() && (c.Role == model.RoleAdmin || c.Role == model.RoleStaff)
}

// Stage stores v as JSON in the named slot
func (c *Context) Stage(ctx context.Context, name string, v any) error {
	if c.SessionKey == "" {
		return ErrNoSession
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", name, err)
	}
	return c.staging.Set(ctx, c.SessionKey, name, data)
}

// Load decodes the named slot into v and reports whether it was present
func (c *Context) Load(ctx context.Context, name string, v any) (bool, error) {
	if c.SessionKey == "" {
		return false, nil
	}
	data, found, err := c.staging.Get(ctx, c.SessionKey, name)
	if err != nil || !found {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", name, err)
	}
	return true, nil
}

// Discard removes the named slot
func (c *Context) Discard(ctx context.Context, name string) error {
	if c.SessionKey == "" {
		return nil
	}
	return c.staging.Delete(ctx, c.SessionKey, name)
}

// Flash is a one-shot message shown on the next page view
type Flash struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// AddFlash queues a message for the next read
func (c *Context) AddFlash(ctx context.Context, level, message string) error {
	var flashes []Flash
	if _, err := c.Load(ctx, keyFlash, &flashes); err != nil {
		return err
	}
	return c.Stage(ctx, keyFlash, append(flashes, Flash{Level: level, Message: message}))
}

// PopFlashes returns and clears queued messages
func (c *Context) PopFlashes(ctx context.Context) ([]Flash, error) {
	var flashes []Flash
	found, err := c.Load(ctx, keyFlash, &flashes)
	if err != nil || !found {
		return nil, err
	}
	return flashes, c.Discard(ctx, keyFlash)
}

type contextKey struct{}

// Into attaches the session context to ctx
func Into(ctx context.Context, sc *Context) context.Context {
	return context.WithValue(ctx, contextKey{}, sc)
}

// From retrieves the session context attached by Into
func From(ctx context.Context) (*Context, bool) {
	sc, ok := ctx.Value(contextKey{}).(*Context)
	return sc, ok
}
