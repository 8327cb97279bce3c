package llm

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ppiankov/verity/internal/model"
)

// LocalConfig configures the locally hosted model
type LocalConfig struct {
	// ModelDir holds the model artifacts on disk
	ModelDir string

	// RequiredFiles must all exist in ModelDir for the model to be usable
	RequiredFiles []string

	// Model is the name the inference engine serves the artifacts under
	Model string

	// ChatTemplate is a Go text/template; empty selects DefaultChatTemplate
	ChatTemplate string

	// LoadTimeout bounds the one-time load; zero means no bound
	LoadTimeout time.Duration
}

// LocalConfigFromModel converts model.LocalConfig to llm.LocalConfig
func LocalConfigFromModel(c model.LocalConfig) LocalConfig {
	return LocalConfig{
		ModelDir:      c.ModelDir,
		RequiredFiles: c.RequiredFiles,
		Model:         c.Model,
		ChatTemplate:  c.ChatTemplate,
		LoadTimeout:   c.Timeout,
	}
}

// ProbeArtifacts checks that the model directory exists and holds every
// required file. Failures wrap ErrModelUnavailable.
func ProbeArtifacts(dir string, required []string) error {
	if dir == "" {
		return fmt.Errorf("%w: no model directory configured", ErrModelUnavailable)
	}

	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("%w: model directory not found at %s", ErrModelUnavailable, dir)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrModelUnavailable, dir)
	}

	var missing []string
	for _, name := range required {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required files %v in %s (download appears incomplete)", ErrModelUnavailable, missing, dir)
	}

	return nil
}

// ModelHandle is a loaded local model. Decode calls are serialized because
// the engine is not assumed to be reentrant.
type ModelHandle struct {
	name     string
	dir      string
	engine   Engine
	template *ChatTemplate // nil means plain concatenation
	logger   *zap.Logger

	mu sync.Mutex
}

// Name returns the backend name
func (h *ModelHandle) Name() string {
	return "local"
}

// Model returns the engine model name
func (h *ModelHandle) Model() string {
	return h.name
}

// Prompt applies chat templating, falling back to concatenation
func (h *ModelHandle) Prompt(system, user string) string {
	if h.template != nil {
		prompt, err := h.template.Render(system, user)
		if err == nil {
			return prompt
		}
		h.logger.Warn("chat template failed, using plain prompt", zap.Error(err))
	}
	return ConcatPrompt(system, user)
}

// Generate implements Generator
func (h *ModelHandle) Generate(ctx context.Context, req Request) (*Response, error) {
	prompt := h.Prompt(req.System, req.User)

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	completion := CompletionRequest{
		Model:       pickModel(req, h.name, h.name),
		Prompt:      prompt,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		MaxTokens:   pickMaxTokens(req, 300),
	}
	if req.Local != nil {
		completion.Temperature = req.Local.Temperature
		completion.TopP = req.Local.TopP
		completion.RepeatPenalty = req.Local.RepeatPenalty
	}

	out, err := h.engine.Complete(ctx, completion)
	if err != nil {
		return nil, fmt.Errorf("local decode: %w", err)
	}

	return &Response{
		Text:       out.Text,
		Model:      out.Model,
		TokensUsed: out.TokensUsed,
	}, nil
}

// ModelLoader owns the one-time load of the local model. The outcome,
// usable or unavailable, is cached for the lifetime of the loader.
type ModelLoader struct {
	config LocalConfig
	engine Engine
	logger *zap.Logger

	group singleflight.Group

	mu     sync.RWMutex
	done   bool
	handle *ModelHandle
	err    error
}

// NewModelLoader creates a loader; nothing is touched until Acquire
func NewModelLoader(config LocalConfig, engine Engine, logger *zap.Logger) *ModelLoader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ModelLoader{
		config: config,
		engine: engine,
		logger: logger,
	}
}

// Acquire returns the loaded handle, loading it on first use. Concurrent
// first callers share a single load. The load runs detached from any one
// caller, so a cancelled caller only gets its own ctx.Err() and the load
// still completes for everyone else.
func (l *ModelLoader) Acquire(ctx context.Context) (*ModelHandle, error) {
	if h, err, ok := l.cached(); ok {
		return h, err
	}

	ch := l.group.DoChan("load", func() (interface{}, error) {
		if h, err, ok := l.cached(); ok {
			return h, err
		}

		loadCtx := context.WithoutCancel(ctx)
		if l.config.LoadTimeout > 0 {
			var cancel context.CancelFunc
			loadCtx, cancel = context.WithTimeout(loadCtx, l.config.LoadTimeout)
			defer cancel()
		}
		h, err := l.load(loadCtx)

		l.mu.Lock()
		l.done, l.handle, l.err = true, h, err
		l.mu.Unlock()
		return h, err
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*ModelHandle), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *ModelLoader) cached() (*ModelHandle, error, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.handle, l.err, l.done
}

func (l *ModelLoader) load(ctx context.Context) (*ModelHandle, error) {
	dir, _ := filepath.Abs(l.config.ModelDir)
	l.logger.Info("loading local model", zap.String("dir", dir), zap.String("model", l.config.Model))

	if err := ProbeArtifacts(l.config.ModelDir, l.config.RequiredFiles); err != nil {
		l.logger.Warn("local model artifacts unusable", zap.Error(err))
		return nil, err
	}

	if l.engine == nil {
		return nil, fmt.Errorf("%w: no inference engine configured", ErrModelUnavailable)
	}

	// A load timeout counts as an unreachable engine
	models, err := l.engine.ListModels(ctx)
	if err != nil {
		l.logger.Warn("local inference engine unreachable", zap.Error(err))
		return nil, fmt.Errorf("%w: inference engine unreachable: %v", ErrModelUnavailable, err)
	}
	if !hasModel(models, l.config.Model) {
		return nil, fmt.Errorf("%w: model %q not served by the inference engine (available: %s)",
			ErrModelUnavailable, l.config.Model, strings.Join(models, ", "))
	}

	tmpl, err := NewChatTemplate(l.config.ChatTemplate)
	if err != nil {
		l.logger.Warn("invalid chat template, prompts will be concatenated", zap.Error(err))
		tmpl = nil
	}

	l.logger.Info("local model loaded", zap.String("model", l.config.Model))
	return &ModelHandle{
		name:     l.config.Model,
		dir:      dir,
		engine:   l.engine,
		template: tmpl,
		logger:   l.logger,
	}, nil
}

// hasModel matches names with and without the implicit ":latest" tag
func hasModel(models []string, want string) bool {
	if want == "" {
		return false
	}
	for _, m := range models {
		if m == want || m == want+":latest" || strings.TrimSuffix(m, ":latest") == want {
			return true
		}
	}
	return false
}
