// Package engine is the conversion engine server: it exposes a kkc
// composer over IPC and applies configuration changes while running.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"kanaime/internal/config"
	"kanaime/internal/ime"
	"kanaime/internal/ipc"
	"kanaime/internal/kkc"
	"kanaime/internal/metrics"
)

// ErrNoConfigFile is returned when a reload is requested but the service
// was started without a configuration file.
var ErrNoConfigFile = errors.New("engine: no configuration file to reload")

// Options configures a Service.
type Options struct {
	// Loader, when set, backs reload requests and is watched for changes.
	Loader *config.Loader

	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Service implements ipc.EngineService on top of a composer.
type Service struct {
	composer *kkc.Composer
	dict     *kkc.Dictionary
	loader   *config.Loader
	metrics  *metrics.Metrics
	log      *slog.Logger

	mu         sync.Mutex
	zenzai     ipc.ZenzaiSettings
	importedAt string
}

var _ ipc.EngineService = (*Service)(nil)

// NewService creates a service over dict. When opts.Loader is set, every
// configuration it reloads is applied.
func NewService(dict *kkc.Dictionary, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Default()
	}
	s := &Service{
		composer: kkc.NewComposer(dict, opts.Logger),
		dict:     dict,
		loader:   opts.Loader,
		metrics:  opts.Metrics,
		log:      opts.Logger,
	}
	if s.loader != nil {
		s.loader.OnChange(func(cfg *config.Config) {
			if err := s.Apply(context.Background(), cfg); err != nil {
				s.log.Warn("failed to apply configuration", "error", err)
			}
		})
	}
	return s
}

// Open opens the dictionary named by cfg and returns a service with cfg
// applied. The caller closes the service.
func Open(ctx context.Context, cfg *config.Config, opts Options) (*Service, error) {
	dict, err := kkc.OpenDictionary(cfg.Engine.DictionaryPath)
	if err != nil {
		return nil, err
	}
	s := NewService(dict, opts)
	if err := s.Apply(ctx, cfg); err != nil {
		dict.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the dictionary.
func (s *Service) Close() error {
	return s.dict.Close()
}

// Ping checks the dictionary.
func (s *Service) Ping(ctx context.Context) error {
	return s.dict.Ping(ctx)
}

// Composer returns the underlying composer.
func (s *Service) Composer() *kkc.Composer {
	return s.composer
}

// Zenzai returns the neural conversion settings last received.
func (s *Service) Zenzai() ipc.ZenzaiSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.zenzai
}

// Apply applies the engine and zenzai sections of cfg. A user dictionary
// is imported when its path changed.
func (s *Service) Apply(ctx context.Context, cfg *config.Config) error {
	s.composer.SetMaxCandidates(cfg.Engine.MaxCandidates)
	s.setZenzai(ipc.ZenzaiSettings{
		Enable:  cfg.Zenzai.Enable,
		Profile: cfg.Zenzai.Profile,
		Backend: cfg.Zenzai.Backend,
	})

	path := cfg.Engine.UserDictionary
	s.mu.Lock()
	same := path == s.importedAt
	s.mu.Unlock()
	if path == "" || same {
		return nil
	}
	n, err := s.dict.ImportFile(ctx, path)
	if err != nil {
		return fmt.Errorf("import user dictionary: %w", err)
	}
	s.mu.Lock()
	s.importedAt = path
	s.mu.Unlock()
	s.log.Info("user dictionary imported", "path", path, "words", n)
	return nil
}

func (s *Service) setZenzai(z ipc.ZenzaiSettings) {
	s.mu.Lock()
	changed := s.zenzai != z
	s.zenzai = z
	s.mu.Unlock()
	if changed && z.Enable {
		s.log.Info("zenzai settings received; neural conversion is not available, using the dictionary",
			"profile", z.Profile, "backend", z.Backend)
	}
}

// UpdateConfig applies the settings in req. An empty request reloads the
// configuration file.
func (s *Service) UpdateConfig(ctx context.Context, req ipc.UpdateConfigRequest) error {
	if req.Empty() {
		if s.loader == nil {
			return ErrNoConfigFile
		}
		// Reload notifies OnChange, which applies the result.
		_, err := s.loader.Reload()
		return err
	}
	if req.MaxCandidates > 0 {
		s.composer.SetMaxCandidates(req.MaxCandidates)
	}
	if req.Zenzai != nil {
		s.setZenzai(*req.Zenzai)
	}
	return nil
}

func (s *Service) AppendText(ctx context.Context, text string) (ime.Candidates, error) {
	return s.record(ctx, "append_text")(s.composer.AppendText(ctx, text))
}

func (s *Service) RemoveText(ctx context.Context) (ime.Candidates, error) {
	return s.record(ctx, "remove_text")(s.composer.RemoveText(ctx))
}

func (s *Service) ShrinkText(ctx context.Context, offset int32) (ime.Candidates, error) {
	return s.record(ctx, "shrink_text")(s.composer.ShrinkText(ctx, offset))
}

func (s *Service) ClearText(ctx context.Context) error {
	return s.composer.ClearText(ctx)
}

func (s *Service) SetContext(ctx context.Context, preceding string) error {
	return s.composer.SetContext(ctx, preceding)
}

func (s *Service) record(ctx context.Context, op string) func(ime.Candidates, error) (ime.Candidates, error) {
	return func(c ime.Candidates, err error) (ime.Candidates, error) {
		if err != nil {
			s.log.Error("conversion failed", "op", op, "error", err)
			return c, err
		}
		s.metrics.RecordConversion(ctx, op, c.Len())
		return c, nil
	}
}
