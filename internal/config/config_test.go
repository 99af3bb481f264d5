package config

import "testing"

func TestDefaults(t *testing.T) {
	cfg := FromEnv()
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("unexpected default http addr %q", cfg.HTTPAddr)
	}
	if cfg.LLMTimeoutSec != 15 {
		t.Fatalf("unexpected default llm timeout %d", cfg.LLMTimeoutSec)
	}
	if cfg.ClarificationLimit != 3 {
		t.Fatalf("unexpected default clarification limit %d", cfg.ClarificationLimit)
	}
}

func TestOverrides(t *testing.T) {
	t.Setenv("DESTEK_HTTP_ADDR", ":9999")
	t.Setenv("DESTEK_JOB_POLL_SECONDS", "11")
	t.Setenv("DESTEK_SUPPORT_OPEN_SATURDAY", "false")

	cfg := FromEnv()
	if cfg.HTTPAddr != ":9999" {
		t.Fatalf("env override ignored: %q", cfg.HTTPAddr)
	}
	if cfg.JobPollSec != 11 {
		t.Fatalf("int override ignored: %d", cfg.JobPollSec)
	}
	if cfg.SupportOpenSaturday {
		t.Fatal("bool override ignored")
	}
}

func TestInvalidIntFallsBack(t *testing.T) {
	t.Setenv("DESTEK_JOB_POLL_SECONDS", "not-a-number")
	if cfg := FromEnv(); cfg.JobPollSec != 5 {
		t.Fatalf("invalid int must fall back to default, got %d", cfg.JobPollSec)
	}
}

func TestFallbackModels(t *testing.T) {
	t.Setenv("DESTEK_LLM_MODEL", "gpt-4o-mini")
	t.Setenv("DESTEK_LLM_FALLBACK_MODELS", "gpt-4o, gpt-4o-mini , gpt-3.5-turbo")

	models := FromEnv().FallbackModels()
	want := []string{"gpt-4o-mini", "gpt-4o", "gpt-3.5-turbo"}
	if len(models) != len(want) {
		t.Fatalf("unexpected chain %v", models)
	}
	for i := range want {
		if models[i] != want[i] {
			t.Fatalf("chain[%d] = %q, want %q", i, models[i], want[i])
		}
	}
}

func TestCredentialTools(t *testing.T) {
	t.Setenv("DESTEK_CREDENTIAL_TOOLS", "AnyDesk, teamviewer,")
	tools := FromEnv().CredentialTools()
	if len(tools) != 2 || tools[0] != "anydesk" {
		t.Fatalf("unexpected tools %v", tools)
	}
}
