//go:build integration

package sequence

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"
)

func TestRedisCounter_Increments(t *testing.T) {
	addr := os.Getenv("GMAO_REDIS_ADDR")
	if addr == "" {
		addr = "127.0.0.1:6379"
	}
	ctx := context.Background()
	client, err := NewRedisClient(ctx, addr, 15)
	if err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	defer client.Close()

	c := NewRedisCounter(client)
	name := fmt.Sprintf("test:%d", time.Now().UnixNano())
	defer client.Del(ctx, c.prefix+name)

	for want := int64(1); want <= 3; want++ {
		got, err := c.Next(ctx, nil, name)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if got != want {
			t.Errorf("Next() = %d, want %d", got, want)
		}
	}
}

func TestRedisCounter_AtLeast(t *testing.T) {
	addr := os.Getenv("GMAO_REDIS_ADDR")
	if addr == "" {
		addr = "127.0.0.1:6379"
	}
	ctx := context.Background()
	client, err := NewRedisClient(ctx, addr, 15)
	if err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	defer client.Close()

	c := NewRedisCounter(client)
	name := fmt.Sprintf("test:%d", time.Now().UnixNano())
	defer client.Del(ctx, c.prefix+name)

	if err := c.AtLeast(ctx, name, 7); err != nil {
		t.Fatalf("AtLeast: %v", err)
	}
	if err := c.AtLeast(ctx, name, 3); err != nil {
		t.Fatalf("AtLeast: %v", err)
	}
	if got, err := c.Next(ctx, nil, name); err != nil || got != 8 {
		t.Errorf("Next() = %d, %v; want 8", got, err)
	}
}
