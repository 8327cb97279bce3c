package llm

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

// fakeEngine is an in-memory Engine
type fakeEngine struct {
	models    []string
	listErr   error
	listDelay time.Duration
	lists     atomic.Int32

	completeErr error
	text        string

	mu       sync.Mutex
	prompts  []string
	reqs     []CompletionRequest
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (f *fakeEngine) ListModels(ctx context.Context) ([]string, error) {
	f.lists.Add(1)
	if f.listDelay > 0 {
		select {
		case <-time.After(f.listDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.models, f.listErr
}

func (f *fakeEngine) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		seen := f.maxSeen.Load()
		if n <= seen || f.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)

	f.mu.Lock()
	f.prompts = append(f.prompts, req.Prompt)
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()

	if f.completeErr != nil {
		return nil, f.completeErr
	}
	return &Completion{Text: f.text, Model: req.Model, TokensUsed: 1}, nil
}

func writeModelDir(t *testing.T, files ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func testLocalConfig(dir string) LocalConfig {
	return LocalConfig{
		ModelDir:      dir,
		RequiredFiles: []string{"config.json", "tokenizer.json"},
		Model:         "mistral:7b-instruct-v0.3",
	}
}

func TestProbeArtifacts(t *testing.T) {
	required := []string{"config.json", "tokenizer.json"}

	complete := writeModelDir(t, "config.json", "tokenizer.json")
	if err := ProbeArtifacts(complete, required); err != nil {
		t.Errorf("expected complete directory to pass, got %v", err)
	}

	partial := writeModelDir(t, "config.json")
	err := ProbeArtifacts(partial, required)
	if !errors.Is(err, ErrModelUnavailable) {
		t.Errorf("expected ErrModelUnavailable for partial download, got %v", err)
	}

	if err := ProbeArtifacts(filepath.Join(t.TempDir(), "absent"), required); !errors.Is(err, ErrModelUnavailable) {
		t.Errorf("expected ErrModelUnavailable for missing directory, got %v", err)
	}

	if err := ProbeArtifacts("", required); !errors.Is(err, ErrModelUnavailable) {
		t.Errorf("expected ErrModelUnavailable for empty directory setting, got %v", err)
	}
}

func TestModelLoader_MissingArtifacts(t *testing.T) {
	engine := &fakeEngine{models: []string{"mistral:7b-instruct-v0.3"}}
	dir := writeModelDir(t, "config.json")
	loader := NewModelLoader(testLocalConfig(dir), engine, zap.NewNop())

	_, err := loader.Acquire(context.Background())
	if !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable, got %v", err)
	}
	if engine.lists.Load() != 0 {
		t.Errorf("engine should not be queried when artifacts are missing")
	}

	// Outcome is cached even after the download completes
	if err := os.WriteFile(filepath.Join(dir, "tokenizer.json"), []byte("{}"), 0644); err != nil {
		t.Fatalf("write tokenizer.json: %v", err)
	}
	_, err = loader.Acquire(context.Background())
	if !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("expected cached ErrModelUnavailable, got %v", err)
	}
	if engine.lists.Load() != 0 {
		t.Errorf("cached outcome should not probe the engine")
	}
}

func TestModelLoader_ModelNotServed(t *testing.T) {
	engine := &fakeEngine{models: []string{"llama3:latest"}}
	loader := NewModelLoader(testLocalConfig(writeModelDir(t, "config.json", "tokenizer.json")), engine, nil)

	if _, err := loader.Acquire(context.Background()); !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable, got %v", err)
	}
}

func TestModelLoader_EngineUnreachable(t *testing.T) {
	engine := &fakeEngine{listErr: errors.New("connection refused")}
	loader := NewModelLoader(testLocalConfig(writeModelDir(t, "config.json", "tokenizer.json")), engine, nil)

	if _, err := loader.Acquire(context.Background()); !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable, got %v", err)
	}
}

func TestModelLoader_ConcurrentAcquireLoadsOnce(t *testing.T) {
	engine := &fakeEngine{
		models:    []string{"mistral:7b-instruct-v0.3"},
		listDelay: 50 * time.Millisecond,
	}
	loader := NewModelLoader(testLocalConfig(writeModelDir(t, "config.json", "tokenizer.json")), engine, nil)

	const callers = 16
	handles := make([]*ModelHandle, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := loader.Acquire(context.Background())
			if err != nil {
				t.Errorf("Acquire failed: %v", err)
				return
			}
			handles[i] = h
		}(i)
	}
	wg.Wait()

	if got := engine.lists.Load(); got != 1 {
		t.Errorf("expected exactly one engine probe, got %d", got)
	}
	for i := 1; i < callers; i++ {
		if handles[i] != handles[0] {
			t.Fatalf("expected all callers to share one handle")
		}
	}
}

func TestModelLoader_CancelledCallerDoesNotFailWaiters(t *testing.T) {
	engine := &fakeEngine{
		models:    []string{"mistral:7b-instruct-v0.3"},
		listDelay: 100 * time.Millisecond,
	}
	loader := NewModelLoader(testLocalConfig(writeModelDir(t, "config.json", "tokenizer.json")), engine, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	leaderErr := make(chan error, 1)
	go func() {
		_, err := loader.Acquire(ctx)
		leaderErr <- err
	}()
	for engine.lists.Load() == 0 {
		time.Sleep(time.Millisecond)
	}

	waiter := make(chan error, 1)
	go func() {
		_, err := loader.Acquire(context.Background())
		waiter <- err
	}()

	if err := <-leaderErr; !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected the cancelled caller to get its own deadline, got %v", err)
	}
	if err := <-waiter; err != nil {
		t.Fatalf("expected the waiter to get the loaded model, got %v", err)
	}

	if _, err := loader.Acquire(context.Background()); err != nil {
		t.Fatalf("expected cached handle, got %v", err)
	}
	if got := engine.lists.Load(); got != 1 {
		t.Errorf("expected one engine probe, got %d", got)
	}
}

func TestModelLoader_LoadTimeoutIsUnavailable(t *testing.T) {
	engine := &fakeEngine{
		models:    []string{"mistral:7b-instruct-v0.3"},
		listDelay: time.Second,
	}
	config := testLocalConfig(writeModelDir(t, "config.json", "tokenizer.json"))
	config.LoadTimeout = 10 * time.Millisecond
	loader := NewModelLoader(config, engine, nil)

	if _, err := loader.Acquire(context.Background()); !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable, got %v", err)
	}
}

func TestModelHandle_GenerateUsesTemplate(t *testing.T) {
	engine := &fakeEngine{models: []string{"mistral:7b-instruct-v0.3:latest"}, text: "Yes"}
	loader := NewModelLoader(testLocalConfig(writeModelDir(t, "config.json", "tokenizer.json")), engine, nil)

	h, err := loader.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	resp, err := h.Generate(context.Background(), Request{System: "S", User: "U"})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if resp.Text != "Yes" {
		t.Errorf("expected Yes, got %q", resp.Text)
	}
	if engine.prompts[0] != "<s>[INST] S\n\nU [/INST]" {
		t.Errorf("unexpected prompt %q", engine.prompts[0])
	}
}

func TestModelHandle_TemplateFailureFallsBackToConcat(t *testing.T) {
	engine := &fakeEngine{models: []string{"mistral:7b-instruct-v0.3"}, text: "No"}
	config := testLocalConfig(writeModelDir(t, "config.json", "tokenizer.json"))
	config.ChatTemplate = "{{ .Unknown }}"
	loader := NewModelLoader(config, engine, nil)

	h, err := loader.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if _, err := h.Generate(context.Background(), Request{System: "S", User: "U"}); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if engine.prompts[0] != "S\n\nU" {
		t.Errorf("expected concatenated prompt, got %q", engine.prompts[0])
	}
}

func TestModelHandle_SerializesDecode(t *testing.T) {
	engine := &fakeEngine{models: []string{"mistral:7b-instruct-v0.3"}, text: "Yes"}
	loader := NewModelLoader(testLocalConfig(writeModelDir(t, "config.json", "tokenizer.json")), engine, nil)

	h, err := loader.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.Generate(context.Background(), Request{User: "q"}); err != nil {
				t.Errorf("Generate failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := engine.maxSeen.Load(); got != 1 {
		t.Errorf("expected at most one decode in flight, saw %d", got)
	}
}

func TestModelHandle_DecodeError(t *testing.T) {
	engine := &fakeEngine{models: []string{"mistral:7b-instruct-v0.3"}, completeErr: errors.New("out of memory")}
	loader := NewModelLoader(testLocalConfig(writeModelDir(t, "config.json", "tokenizer.json")), engine, nil)

	h, err := loader.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if _, err := h.Generate(context.Background(), Request{User: "q"}); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestModelHandle_LocalSamplingOverridesRemote(t *testing.T) {
	engine := &fakeEngine{models: []string{"mistral:7b-instruct-v0.3"}, text: "Is it?"}
	loader := NewModelLoader(testLocalConfig(writeModelDir(t, "config.json", "tokenizer.json")), engine, nil)
	handle, err := loader.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	req := Request{
		User:        "q",
		Temperature: 0.3,
		MaxTokens:   300,
		Local:       &LocalSampling{Temperature: 0.7, TopP: 0.9, RepeatPenalty: 1.1},
	}
	if _, err := handle.Generate(context.Background(), req); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if _, err := handle.Generate(context.Background(), Request{User: "q", Temperature: 0.2}); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	got := engine.reqs[0]
	if got.Temperature != 0.7 || got.TopP != 0.9 || got.RepeatPenalty != 1.1 || got.MaxTokens != 300 {
		t.Errorf("expected local sampling, got %+v", got)
	}
	if plain := engine.reqs[1]; plain.Temperature != 0.2 || plain.RepeatPenalty != 0 {
		t.Errorf("expected request sampling without local overrides, got %+v", plain)
	}
}
