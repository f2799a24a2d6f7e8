package app

import (
	"context"
	"fmt"
	"time"

	"github.com/Adda-Baaj/bccr-indicadores/internal/config"
	"github.com/Adda-Baaj/bccr-indicadores/internal/harvest"
	"github.com/Adda-Baaj/bccr-indicadores/internal/logger"
	"github.com/Adda-Baaj/bccr-indicadores/internal/storage"
	"github.com/Adda-Baaj/bccr-indicadores/pkg/bccr"
	"github.com/Adda-Baaj/bccr-indicadores/pkg/httpclient"
	"github.com/Adda-Baaj/bccr-indicadores/pkg/publishers"
	"github.com/Adda-Baaj/bccr-indicadores/pkg/series"
	"github.com/robfig/cron/v3"
)

// Harvester represents the indicator harvester runtime. It manages the harvest
// loop, coordinating between the series registry, the harvest service, and
// publishers. It also handles storage initialization and cleanup.
type Harvester struct {
	cfg             *config.Config
	seriesReg       *series.Registry
	fanout          *publishers.Fanout
	harvestService  *harvest.Service
	harvestInterval time.Duration
	schedule        cron.Schedule
	log             logger.Logger
	store           storage.Store
}

// NewHarvester builds a harvester runtime from config files.
func NewHarvester(ctx context.Context, cfg *config.Config, log logger.Logger) (*Harvester, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if log == nil {
		log = &logger.NopLogger{}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var schedule cron.Schedule
	if cfg.HarvestSchedule != "" {
		parsed, err := cron.ParseStandard(cfg.HarvestSchedule)
		if err != nil {
			return nil, fmt.Errorf("parse harvest_schedule: %w", err)
		}
		schedule = parsed
	}

	seriesReg, err := series.LoadRegistry(cfg.SeriesFile)
	if err != nil {
		return nil, fmt.Errorf("load series registry: %w", err)
	}
	seriesList := seriesReg.All()
	seriesIDs := make([]string, 0, len(seriesList))
	for _, s := range seriesList {
		seriesIDs = append(seriesIDs, s.ID)
	}
	log.InfoObj("series registry loaded", "series_meta", map[string]any{
		"count": len(seriesIDs),
		"ids":   seriesIDs,
	})

	publisherReg, err := publishers.LoadRegistry(cfg.PublishersFile)
	if err != nil {
		return nil, fmt.Errorf("load publishers registry: %w", err)
	}

	enabledPublishers := publisherReg.Enabled()
	if len(enabledPublishers) == 0 {
		return nil, fmt.Errorf("no publishers configured")
	}

	pubRegistry := publishers.DefaultRegistry()
	pubClients, err := publishers.BuildAll(ctx, pubRegistry, enabledPublishers, log)
	if err != nil {
		return nil, fmt.Errorf("build publishers: %w", err)
	}
	fanout := publishers.NewFanout(pubClients)
	publisherSummaries := make([]map[string]string, 0, len(enabledPublishers))
	for _, pubCfg := range enabledPublishers {
		publisherSummaries = append(publisherSummaries, map[string]string{
			"id":   pubCfg.ID,
			"type": pubCfg.Type,
		})
	}
	log.InfoObj("publishers registry loaded", "publishers_meta", map[string]any{
		"count":      len(publisherSummaries),
		"publishers": publisherSummaries,
	})

	storeOpts := storage.Options{
		RecordTTL:       cfg.StorageTTL,
		CleanupInterval: cfg.StorageCleanupInterval,
	}
	store, err := storage.NewStore(cfg.StorageType, cfg.StoragePath(), storeOpts)
	if err != nil {
		_ = fanout.Close()
		return nil, fmt.Errorf("init storage: %w", err)
	}
	log.InfoObj("storage initialized", "storage_config", map[string]any{
		"type":                     cfg.StorageType,
		"path":                     cfg.StoragePath(),
		"record_ttl_seconds":       int(cfg.StorageTTL.Seconds()),
		"cleanup_interval_seconds": int(cfg.StorageCleanupInterval.Seconds()),
	})

	client := bccr.NewClient(
		httpclient.NewRestyClient(cfg.RequestTimeout, httpclient.WithRetries(cfg.HarvestRetries, cfg.HarvestRetryWait)),
		cfg.Endpoint,
		bccr.Defaults{
			SubscriberName: cfg.SubscriberName,
			DetailLevel:    cfg.DetailLevel,
			Token:          cfg.Token,
			Email:          cfg.Email,
		},
		log,
	)

	return &Harvester{
		cfg:             cfg,
		seriesReg:       seriesReg,
		fanout:          fanout,
		harvestService:  harvest.NewService(client, fanout, log, store),
		harvestInterval: cfg.HarvestInterval,
		schedule:        schedule,
		log:             log,
		store:           store,
	}, nil
}

// Run starts the harvest loop until the context is cancelled.
func (h *Harvester) Run(ctx context.Context) error {
	if h == nil || h.harvestService == nil {
		return fmt.Errorf("harvester is not initialized")
	}
	defer h.close()
	list := h.seriesReg.Enabled()
	if len(list) == 0 {
		h.log.WarnObj("no series enabled; harvester idle", "series_file", h.cfg.SeriesFile)
		<-ctx.Done()
		return ctx.Err()
	}

	h.log.InfoObj("harvester loop starting", "harvester_state", map[string]any{
		"series_count":     len(list),
		"publishers_count": h.fanout.Size(),
		"harvest_interval": h.harvestInterval.String(),
		"harvest_schedule": h.cfg.HarvestSchedule,
	})

	if err := h.runOnce(ctx, list); err != nil {
		h.log.ErrorObj("initial harvest failed", "error", err)
	}

	if h.schedule != nil {
		return h.runScheduled(ctx, list)
	}

	ticker := time.NewTicker(h.harvestInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.log.InfoObj("harvester loop exiting", "reason", ctx.Err())
			return nil
		case <-ticker.C:
			if err := h.runOnce(ctx, list); err != nil {
				h.log.ErrorObj("scheduled harvest failed", "error", err)
			}
		}
	}
}

// RunOnce performs a single harvest pass over the enabled series and releases resources.
func (h *Harvester) RunOnce(ctx context.Context) error {
	if h == nil || h.harvestService == nil {
		return fmt.Errorf("harvester is not initialized")
	}
	defer h.close()

	list := h.seriesReg.Enabled()
	if len(list) == 0 {
		return fmt.Errorf("no series enabled in %s", h.cfg.SeriesFile)
	}
	return h.runOnce(ctx, list)
}

// runScheduled drives harvest passes from the cron schedule. Overlapping
// passes are skipped.
func (h *Harvester) runScheduled(ctx context.Context, list []series.Series) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	c.Schedule(h.schedule, cron.FuncJob(func() {
		if err := h.runOnce(ctx, list); err != nil {
			h.log.ErrorObj("scheduled harvest failed", "error", err)
		}
	}))
	c.Start()

	<-ctx.Done()
	h.log.InfoObj("harvester loop exiting", "reason", ctx.Err())
	<-c.Stop().Done()
	return nil
}

// runOnce performs a single harvest pass across all series.
func (h *Harvester) runOnce(ctx context.Context, list []series.Series) error {
	start := time.Now()
	h.log.InfoObj("harvest started", "harvest_meta", map[string]any{
		"series_count": len(list),
		"started_at":   start.UTC(),
	})
	if err := h.harvestService.Run(ctx, list); err != nil {
		return err
	}
	h.log.InfoObj("harvest completed", "harvest_meta", map[string]any{
		"series_count": len(list),
		"elapsed_ms":   time.Since(start).Milliseconds(),
	})
	return nil
}

// close releases the store and publisher clients, logging any errors encountered.
func (h *Harvester) close() {
	if h == nil {
		return
	}
	if h.store != nil {
		if err := h.store.Close(); err != nil {
			h.log.ErrorObj("storage close failed", "error", err)
		}
	}
	if err := h.fanout.Close(); err != nil {
		h.log.ErrorObj("publisher close failed", "error", err)
	}
}
