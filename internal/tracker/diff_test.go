package tracker

import (
	"context"
	"testing"
	"time"

	"github.com/vktrack/vktrack/internal/vk"
)

func TestReconcilePresence_FirstObservationSeeds(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	transition, err := ReconcilePresence(ctx, store, vk.Presence{
		AccountID: 1, Online: true, LastSeen: time.Now(),
	})
	if err != nil {
		t.Fatalf("ReconcilePresence: %v", err)
	}
	if transition != nil {
		t.Errorf("first observation must not produce a transition, got %+v", transition)
	}

	state, _ := store.GetPresence(ctx, 1)
	if state == nil || !state.Online {
		t.Errorf("first observation should be stored, got %+v", state)
	}
}

func TestReconcilePresence_Transitions(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	seen := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	ReconcilePresence(ctx, store, vk.Presence{AccountID: 1, Online: false, LastSeen: seen})

	// Unchanged status: no transition, store untouched.
	transition, err := ReconcilePresence(ctx, store, vk.Presence{AccountID: 1, Online: false, LastSeen: seen})
	if err != nil {
		t.Fatalf("ReconcilePresence: %v", err)
	}
	if transition != nil {
		t.Errorf("unchanged status must not produce a transition, got %+v", transition)
	}

	// Flip to online.
	transition, err = ReconcilePresence(ctx, store, vk.Presence{
		AccountID: 1, Online: true, LastSeen: seen.Add(time.Minute),
	})
	if err != nil {
		t.Fatalf("ReconcilePresence: %v", err)
	}
	if transition == nil || !transition.Online {
		t.Fatalf("expected online transition, got %+v", transition)
	}

	state, _ := store.GetPresence(ctx, 1)
	if !state.Online {
		t.Error("new state should be stored after a transition")
	}

	// Flip back to offline.
	transition, _ = ReconcilePresence(ctx, store, vk.Presence{
		AccountID: 1, Online: false, LastSeen: seen.Add(2 * time.Minute),
	})
	if transition == nil || transition.Online {
		t.Fatalf("expected offline transition, got %+v", transition)
	}
}

func TestPartition(t *testing.T) {
	tests := []struct {
		name  string
		count int
		size  int
		want  []int
	}{
		{"empty", 0, 100, nil},
		{"single partial batch", 42, 100, []int{42}},
		{"exact multiple", 200, 100, []int{100, 100}},
		{"remainder", 250, 100, []int{100, 100, 50}},
		{"size one", 3, 1, []int{1, 1, 1}},
		{"non-positive size keeps one batch", 5, 0, []int{5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids := make([]int64, tt.count)
			for i := range ids {
				ids[i] = int64(i)
			}

			batches := partition(ids, tt.size)
			if len(batches) != len(tt.want) {
				t.Fatalf("expected %d batches, got %d", len(tt.want), len(batches))
			}

			var next int64
			for i, batch := range batches {
				if len(batch) != tt.want[i] {
					t.Errorf("batch %d: expected %d ids, got %d", i, tt.want[i], len(batch))
				}
				for _, id := range batch {
					if id != next {
						t.Fatalf("order broken at id %d, expected %d", id, next)
					}
					next++
				}
			}
		})
	}
}
