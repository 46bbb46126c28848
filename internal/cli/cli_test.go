package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"kalshorb/pkg/kalshorb"
)

func runCommand(t *testing.T, env map[string]string, args ...string) (string, error) {
	t.Helper()
	opts := &rootOptions{lookupEnv: func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}}
	cmd := newRootCmd(opts)
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), "none.env")}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestAskOfflineJSON(t *testing.T) {
	env := map[string]string{"KALSHORB_STORE_DRIVER": "none"}
	out, err := runCommand(t, env, "ask", "--offline", "--json", "--no-context", "--session", "s1", "What", "is", "a", "prediction", "market?")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	var resp kalshorb.Response
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if resp.Confidence != 92 || resp.SessionID != "s1" || !strings.Contains(resp.Message, "Prediction markets are financial exchanges") {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestAskRendersAndPersists(t *testing.T) {
	env := map[string]string{
		"KALSHORB_STORE_DRIVER": "sqlite",
		"KALSHORB_DB_PATH":      filepath.Join(t.TempDir(), "cli.db"),
	}
	out, err := runCommand(t, env, "ask", "--offline", "--user", "trader", "--session", "s-cli", "what is a prediction market")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	for _, want := range []string{"Kalshorb", "confidence 92%", "session s-cli", "Suggested actions:", "learn_strategies"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}

	out, err = runCommand(t, env, "sessions", "--user", "trader")
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	if !strings.Contains(out, "s-cli") || !strings.Contains(out, "what is a prediction market") {
		t.Fatalf("session not listed:\n%s", out)
	}

	out, err = runCommand(t, env, "sessions", "--user", "nobody")
	if err != nil || !strings.Contains(out, "no sessions") {
		t.Fatalf("expected empty listing, got %q, %v", out, err)
	}
}

func TestQuickOffline(t *testing.T) {
	env := map[string]string{"KALSHORB_STORE_DRIVER": "none"}
	out, err := runCommand(t, env, "quick", "--offline", "--json", "greet")
	if err != nil {
		t.Fatalf("quick: %v", err)
	}
	var resp kalshorb.Response
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if resp.Confidence != 85 || len(resp.SuggestedActions) != 3 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestAskRequiresMessage(t *testing.T) {
	if _, err := runCommand(t, nil, "ask"); err == nil {
		t.Fatalf("expected argument error")
	}
}

func TestConfigShowRedacts(t *testing.T) {
	env := map[string]string{"OPENROUTER_API_KEY": "sk-or-v1-supersecretvalue"}
	out, err := runCommand(t, env, "config", "show", "--store", "none")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if strings.Contains(out, "supersecret") || !strings.Contains(out, "sk-o****") {
		t.Fatalf("key not redacted:\n%s", out)
	}
	if !strings.Contains(out, "driver: none") {
		t.Fatalf("store override lost:\n%s", out)
	}
}

func TestConfigValidateFails(t *testing.T) {
	env := map[string]string{"KALSHORB_LLM_PROVIDER": "bard"}
	if _, err := runCommand(t, env, "config", "validate"); err == nil || !strings.Contains(err.Error(), "invalid llm provider") {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestAccountImportFeedsReplies(t *testing.T) {
	dir := t.TempDir()
	env := map[string]string{
		"KALSHORB_STORE_DRIVER": "sqlite",
		"KALSHORB_DB_PATH":      filepath.Join(dir, "cli.db"),
	}
	accountFile := filepath.Join(dir, "account.yaml")
	body := `
portfolio:
  name: main
  total_value: 1200
  kelly_fraction: 0.25
positions:
  - market_ticker: FED-25DEC
    side: yes
    quantity: 10
    avg_price: 0.42
risk_profile:
  risk_score: 55
  risk_classification: moderate
`
	if err := os.WriteFile(accountFile, []byte(body), 0o644); err != nil {
		t.Fatalf("write account: %v", err)
	}

	out, err := runCommand(t, env, "account", "import", "--user", "trader", accountFile)
	if err != nil {
		t.Fatalf("account import: %v", err)
	}
	if !strings.Contains(out, "imported 1 position(s) for trader") {
		t.Fatalf("unexpected output: %q", out)
	}

	out, err = runCommand(t, env, "ask", "--offline", "--json", "--user", "trader", "--session", "s-k", "how big should my kelly bet be")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	var resp kalshorb.Response
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if !strings.Contains(resp.Message, "25%") {
		t.Fatalf("imported kelly fraction not used: %s", resp.Message)
	}

	out, err = runCommand(t, env, "ask", "--offline", "--json", "--user", "trader", "--session", "s-p", "show my portfolio")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if !strings.Contains(resp.Message, "1 open position\n") || !strings.Contains(resp.Message, "$4.20") {
		t.Fatalf("imported positions not used: %s", resp.Message)
	}
}

func TestAccountImportRequiresSQLite(t *testing.T) {
	accountFile := filepath.Join(t.TempDir(), "account.json")
	if err := os.WriteFile(accountFile, []byte(`{"positions":[]}`), 0o644); err != nil {
		t.Fatalf("write account: %v", err)
	}
	_, err := runCommand(t, map[string]string{"KALSHORB_STORE_DRIVER": "none"}, "account", "import", accountFile)
	if err == nil || !strings.Contains(err.Error(), "requires the sqlite store") {
		t.Fatalf("expected sqlite requirement error, got %v", err)
	}
}
