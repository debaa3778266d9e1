package notes

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "sendgrid-bridge:notes"

// Redis keeps the notes of each entry in a Redis list of JSON documents.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

// NewRedis creates a Redis recorder. An empty prefix uses the default key prefix.
func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Redis{client: client, prefix: prefix}
}

// Open parses a redis:// URL and verifies the connection.
func Open(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// Add implements Recorder.
func (r *Redis) Add(ctx context.Context, note Note) (Note, error) {
	note, err := prepare(note)
	if err != nil {
		return note, err
	}

	data, err := json.Marshal(note)
	if err != nil {
		return note, fmt.Errorf("failed to marshal note: %w", err)
	}

	if err := r.client.RPush(ctx, r.key(note.EntryID), data).Err(); err != nil {
		return note, fmt.Errorf("failed to store note: %w", err)
	}
	return note, nil
}

// List implements Recorder. Notes are returned oldest first.
func (r *Redis) List(ctx context.Context, entryID string) ([]Note, error) {
	items, err := r.client.LRange(ctx, r.key(entryID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}

	out := make([]Note, 0, len(items))
	for _, item := range items {
		var n Note
		if err := json.Unmarshal([]byte(item), &n); err != nil {
			return nil, fmt.Errorf("failed to decode note: %w", err)
		}
		out = append(out, n)
	}
	return out, nil
}

// Ping reports whether Redis is reachable.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) key(entryID string) string {
	return r.prefix + ":" + entryID
}
