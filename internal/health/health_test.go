package health

import (
	"context"
	"testing"
)

func TestCheckAllEmpty(t *testing.T) {
	r := NewRegistry()

	healthy, statuses := r.CheckAll(context.Background())
	if !healthy {
		t.Error("empty registry must report healthy")
	}
	if len(statuses) != 0 {
		t.Errorf("statuses = %d, want 0", len(statuses))
	}
}

func TestCheckAllReportsEachDependency(t *testing.T) {
	r := NewRegistry()
	r.Register("database", func(ctx context.Context) Status {
		return Status{Name: "database", Healthy: true}
	})
	r.Register("cache", func(ctx context.Context) Status {
		return Status{Name: "cache", Healthy: false, Detail: "connection refused"}
	})

	healthy, statuses := r.CheckAll(context.Background())
	if healthy {
		t.Error("one failing probe must fail the aggregate")
	}
	if len(statuses) != 2 {
		t.Fatalf("statuses = %d, want 2", len(statuses))
	}
	if statuses[0].Name != "database" || !statuses[0].Healthy {
		t.Errorf("first status = %+v, want healthy database", statuses[0])
	}
	if statuses[1].Detail != "connection refused" {
		t.Errorf("detail = %q, want the probe's detail", statuses[1].Detail)
	}
}
