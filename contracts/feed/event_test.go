package feed

import "testing"

func TestRoutingKey(t *testing.T) {
	t.Parallel()

	if got := RoutingKey(TableMilestones, 7); got != "milestones.changed.7" {
		t.Fatalf("unexpected routing key %q", got)
	}
	if got := RoutingKey(TableTasks, 123); got != "tasks.changed.123" {
		t.Fatalf("unexpected routing key %q", got)
	}
}
