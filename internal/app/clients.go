package app

import (
	"context"
	"fmt"

	"github.com/yungbote/karibu-backend/internal/ingestion/extractor"
	"github.com/yungbote/karibu-backend/internal/platform/gcp"
	"github.com/yungbote/karibu-backend/internal/platform/localmedia"
	"github.com/yungbote/karibu-backend/internal/platform/logger"
	"github.com/yungbote/karibu-backend/internal/platform/redislock"
	"github.com/yungbote/karibu-backend/internal/synthesis"
)

var newRedisLocker = redislock.New

// buildExtractor routes PDFs through Document AI when a processor is
// configured and through pdftotext otherwise. Legacy .doc always converts
// locally.
func (a *App) buildExtractor(ctx context.Context) (*extractor.Extractor, error) {
	media := localmedia.New(a.Log)
	if err := media.AssertReady(ctx); err != nil {
		a.Log.Warn("Local document tools unavailable; PDF and .doc extraction may fail", "error", err)
	}

	var pdf extractor.PDFTextExtractor = media
	docCfg := gcp.ResolveDocumentTextConfigFromEnv()
	if docCfg.Enabled() {
		docText, err := gcp.NewDocumentText(ctx, a.Log, docCfg, media)
		if err != nil {
			return nil, fmt.Errorf("init document ai: %w", err)
		}
		a.onClose("document_ai", docText.Close)
		pdf = docText
		a.Log.Info("PDF extraction via Document AI", "processor", docCfg.ProcessorName())
	} else {
		a.Log.Info("PDF extraction via pdftotext")
	}
	return extractor.New(a.Log, pdf, media), nil
}

func (a *App) buildLocker(ctx context.Context) (synthesis.Locker, error) {
	switch a.Cfg.Synthesis.LockMode {
	case synthesis.LockLocal:
		a.Log.Info("Synthesis lock: in-process")
		return synthesis.NewLocalLocker(), nil
	case synthesis.LockRedis:
		locker, err := newRedisLocker(ctx, a.Log, redislock.ConfigFromEnv())
		if err != nil {
			return nil, fmt.Errorf("init redis lock: %w", err)
		}
		a.onClose("redis", locker.Close)
		a.checks["redis"] = locker.Ping
		a.Log.Info("Synthesis lock: redis")
		return locker, nil
	default:
		return synthesis.NoLock(), nil
	}
}

// logClose runs fn and logs a failure. Used for best-effort teardown.
func logClose(log *logger.Logger, name string, fn func() error) {
	if fn == nil {
		return
	}
	if err := fn(); err != nil {
		log.Warn("Close failed", "component", name, "error", err)
	}
}
