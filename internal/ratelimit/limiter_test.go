package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestSenderKey(t *testing.T) {
	tests := []struct {
		instance, sender, want string
	}{
		{"hostel-1", "60123456789", "sender:hostel-1:60123456789"},
		{"hostel-1", "+60 12-345 6789", "sender:hostel-1:60123456789"},
		{"hostel-1", "60123456789@s.whatsapp.net", "sender:hostel-1:60123456789"},
		{"hostel-1", "60123456789:3@s.whatsapp.net", "sender:hostel-1:60123456789"},
		{"hostel-2", "60123456789", "sender:hostel-2:60123456789"},
	}
	for _, tt := range tests {
		if got := SenderKey(tt.instance, tt.sender); got != tt.want {
			t.Errorf("SenderKey(%q, %q) = %q, want %q", tt.instance, tt.sender, got, tt.want)
		}
	}
}

func TestSenderKey_InstancesDoNotShareBuckets(t *testing.T) {
	if SenderKey("hostel-1", "60123456789") == SenderKey("hostel-2", "60123456789") {
		t.Error("the same guest on two instances must use separate buckets")
	}
	if SenderKey("hostel-1", "60123456789") == KeyBucket("hostel-1") {
		t.Error("sender and transport key buckets must not collide")
	}
}

func TestLimiter_AllowSender_NilRedisFailsOpen(t *testing.T) {
	l := NewLimiter(nil)
	for i := 0; i < 50; i++ {
		res := l.AllowSender(context.Background(), "hostel-1", "+60 12-345 6789", 5)
		if !res.Allowed {
			t.Fatalf("message %d denied without redis", i)
		}
		if res.Remaining != 4 {
			t.Fatalf("remaining = %d, want 4", res.Remaining)
		}
	}
}

func TestLimiter_AllowSender_DisabledLimit(t *testing.T) {
	l := NewLimiter(nil)
	if res := l.AllowSender(context.Background(), "hostel-1", "60123456789", 0); !res.Allowed {
		t.Error("a zero per-minute limit should disable the flood guard")
	}
}

func TestLimiter_UnreachableRedisFailsOpen(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()
	l := NewLimiter(rdb)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	res, err := l.Check(ctx, SenderKey("hostel-1", "60123456789"), 5, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Allowed || res.Remaining != 5 {
		t.Errorf("result = %+v, want allowed with the full limit remaining", res)
	}
}
