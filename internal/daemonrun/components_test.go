package daemonrun

import (
	"context"
	"strings"
	"testing"

	"lectern/internal/testsupport"
)

func TestBuildWiresEveryJobType(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	components, err := Build(cfg, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer components.Close()

	if components.Objects == nil {
		t.Fatal("expected S3 store to be constructed")
	}
	if components.Summary != nil {
		t.Fatal("summary client must be nil while summaries are disabled")
	}
	names := components.Providers.Names()
	if strings.Join(names, ",") != "elevenlabs,openai" {
		t.Fatalf("providers = %v", names)
	}
	health := components.Workflow.Status(context.Background()).StageHealth
	for _, stage := range []string{"text_to_audio", "section_concat", "book_summary", "summary_embedding", "book_meta"} {
		if _, ok := health[stage]; !ok {
			t.Errorf("missing handler for %s", stage)
		}
	}
}

func TestPreflightReportsStorageConfigError(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Storage.Endpoint = ""
	components, err := Build(cfg, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer components.Close()

	var storageFailed bool
	for _, result := range components.Preflight(context.Background()) {
		if result.Name == "Object storage" && !result.Passed {
			storageFailed = true
		}
	}
	if !storageFailed {
		t.Fatal("expected failed object storage check")
	}
}
