// Package app wires storage, the service client and the reader services.
// It is the shared core behind every cmd/lectio command.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/bobmcallan/lectio/internal/cache"
	"github.com/bobmcallan/lectio/internal/clients/lectio"
	"github.com/bobmcallan/lectio/internal/common"
	"github.com/bobmcallan/lectio/internal/interfaces"
	"github.com/bobmcallan/lectio/internal/models"
	"github.com/bobmcallan/lectio/internal/services/analysis"
	"github.com/bobmcallan/lectio/internal/services/audio"
	"github.com/bobmcallan/lectio/internal/services/navigation"
	"github.com/bobmcallan/lectio/internal/services/recording"
	"github.com/bobmcallan/lectio/internal/storage"
)

// App holds all initialized services, clients and storage.
type App struct {
	Config      *common.Config
	Logger      *common.Logger
	Store       interfaces.KeyValueStore
	Client      *lectio.Client
	Cache       *cache.AnalysisCache
	Locations   *cache.LocationStore
	Navigation  *navigation.Controller
	Analysis    *analysis.Service
	Audio       *audio.Synchronizer
	Recording   *recording.Service
	Reader      *Reader
	StartupTime time.Time

	logCloser io.Closer
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// NewApp loads configuration and initializes every component.
// configPath may be empty, in which case the default resolution logic is used.
// interactive suppresses console logging while the reader owns the terminal.
func NewApp(configPath string, interactive bool) (*App, error) {
	startupStart := time.Now()

	// Load version from .version file (fallback if ldflags not set)
	common.LoadVersionFromFile()

	config, err := common.LoadConfig(common.ResolveConfigPath(configPath))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	binDir := getBinaryDir()
	if config.Storage.Path != "" && !filepath.IsAbs(config.Storage.Path) {
		config.Storage.Path = filepath.Join(binDir, config.Storage.Path)
	}
	if config.Logging.FilePath != "" && !filepath.IsAbs(config.Logging.FilePath) {
		config.Logging.FilePath = filepath.Join(binDir, config.Logging.FilePath)
	}

	return NewAppFromConfig(config, interactive, startupStart)
}

// NewAppFromConfig initializes every component from an already loaded config.
func NewAppFromConfig(config *common.Config, interactive bool, startupStart time.Time) (*App, error) {
	logger, logCloser, err := common.NewLoggerFromConfig(config.Logging, interactive)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}

	store, err := storage.NewKeyValueStore(logger, config.Storage)
	if err != nil {
		logCloser.Close()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	analysisCache := cache.NewAnalysisCache(store, logger, config.Storage.MaxEntryKB*1024)
	locations := cache.NewLocationStore(store, logger)

	// Check cache schema, clearing analyses written by an older encoding
	checkCacheSchema(context.Background(), store, analysisCache, logger)

	client := lectio.NewClient(
		lectio.WithBaseURL(config.Service.BaseURL),
		lectio.WithLogger(logger),
		lectio.WithRateLimit(config.Service.RateLimit),
		lectio.WithTimeout(config.Service.GetTimeout()),
	)

	nav := navigation.NewController(client, logger,
		navigation.WithDelays(config.Reader.GetCommitDelay(), config.Reader.GetSettleDelay()),
		navigation.WithCrossBooks(config.Reader.CrossBooks),
		navigation.WithLocationSink(locations),
	)
	analysisService := analysis.NewService(client, analysisCache, logger,
		analysis.WithLanguages(config.Reader.Languages),
		analysis.WithRetry(config.Analysis.MaxAttempts, config.Analysis.GetBaseDelay()),
		analysis.WithCurrent(nav.Position),
	)
	synchronizer := audio.NewSynchronizer(client, audio.NewExecPlayer(config.Audio.Player, logger), logger)
	recordingService := recording.NewService(client, recording.NewExecRecorder(config.Recording.Command), synchronizer, logger)

	reader := NewReader(nav, analysisService, synchronizer, recordingService, logger,
		WithPreferredLanguages(config.Reader.Languages),
		WithPrefetch(config.Reader.Prefetch),
	)

	a := &App{
		Config:      config,
		Logger:      logger,
		Store:       store,
		Client:      client,
		Cache:       analysisCache,
		Locations:   locations,
		Navigation:  nav,
		Analysis:    analysisService,
		Audio:       synchronizer,
		Recording:   recordingService,
		Reader:      reader,
		StartupTime: startupStart,
		logCloser:   logCloser,
	}

	logger.Info().Dur("startup", time.Since(startupStart)).Msg("App initialized")

	return a, nil
}

// StartPosition resolves where reading begins: an explicit location, else
// the stored resume point, else the configured default.
func (a *App) StartPosition(ctx context.Context, location string) (models.Position, error) {
	if location != "" {
		return models.ParseLocation(location)
	}
	if stored, ok := a.Locations.Location(ctx); ok {
		pos, err := models.ParseLocation(stored)
		if err == nil {
			return pos, nil
		}
		a.Logger.Warn().Err(err).Str("location", stored).Msg("Ignoring unreadable resume point")
	}
	return models.ParseLocation(a.Config.Reader.DefaultLocation)
}

// Close stops background work and releases storage and the log file.
func (a *App) Close() {
	if a.Reader != nil {
		a.Reader.Close()
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close storage")
		}
	}
	if a.logCloser != nil {
		a.logCloser.Close()
	}
}
