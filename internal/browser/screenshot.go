package browser

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go-portal-harvester/internal/logger"

	"github.com/playwright-community/playwright-go"
)

// ScreenshotDebugger saves full-page screenshots when auth or rendering
// goes wrong. An empty directory disables it.
type ScreenshotDebugger struct {
	outputDir string
	log       logger.Logger
}

func NewScreenshotDebugger(dir string, log logger.Logger) *ScreenshotDebugger {
	if dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Warn("Screenshot directory unavailable", logger.String("dir", dir), logger.Error(err))
			dir = ""
		}
	}
	return &ScreenshotDebugger{outputDir: dir, log: log}
}

func (s *ScreenshotDebugger) CaptureAndLog(page playwright.Page, name, message string) error {
	if s == nil || s.outputDir == "" {
		return nil
	}
	timestamp := time.Now().Format("2006-01-02_15-04-05")
	path := filepath.Join(s.outputDir, fmt.Sprintf("%s_%s.png", name, timestamp))

	_, err := page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(true),
	})
	if err != nil {
		s.log.Warn("Failed to capture screenshot", logger.String("name", name), logger.Error(err))
		return err
	}

	s.log.Info(message, logger.String("screenshot", path))
	return nil
}
