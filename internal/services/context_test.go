package services_test

import (
	"context"
	"testing"

	"sloppy/internal/services"
)

func TestContextHelpers(t *testing.T) {
	tests := []struct {
		name string
		with func(context.Context, string) context.Context
		from func(context.Context) (string, bool)
	}{
		{"item", services.WithItemID, services.ItemIDFromContext},
		{"stage", services.WithStage, services.StageFromContext},
		{"job", services.WithJobID, services.JobIDFromContext},
		{"request", services.WithRequestID, services.RequestIDFromContext},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := tt.with(context.Background(), "value-"+tt.name)
			if got, ok := tt.from(ctx); !ok || got != "value-"+tt.name {
				t.Fatalf("unexpected value: %q %v", got, ok)
			}
			// Blank values leave an existing annotation in place.
			if got, ok := tt.from(tt.with(ctx, "")); !ok || got != "value-"+tt.name {
				t.Fatalf("blank value overwrote annotation: %q %v", got, ok)
			}
			if _, ok := tt.from(tt.with(context.Background(), "")); ok {
				t.Fatal("expected no value for blank annotation")
			}
		})
	}
}

func TestAnnotationsAreIndependent(t *testing.T) {
	ctx := services.WithJobID(services.WithItemID(context.Background(), "item-42"), "job-7")
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected no stage value")
	}
	if id, _ := services.ItemIDFromContext(ctx); id != "item-42" {
		t.Fatalf("unexpected item id %q", id)
	}
}
