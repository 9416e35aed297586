// Command probe renders one portal page and prints what the harvester would
// make of it: discovered links, extracted postings and validator verdicts.
// Nothing is stored.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"time"

	"go-portal-harvester/internal/browser"
	"go-portal-harvester/internal/config"
	"go-portal-harvester/internal/discovery"
	"go-portal-harvester/internal/extractor"
	"go-portal-harvester/internal/filter"
	"go-portal-harvester/internal/logger"
	"go-portal-harvester/internal/models"
)

type verdict struct {
	Posting   *models.RawPosting `json:"posting"`
	Accepted  bool               `json:"accepted"`
	Reason    string             `json:"reason,omitempty"`
	Field     string             `json:"field,omitempty"`
	Hash      string             `json:"content_hash,omitempty"`
	IsPosting bool               `json:"url_looks_like_posting"`
}

type report struct {
	URL        string    `json:"url"`
	FinalURL   string    `json:"final_url"`
	Postings   []string  `json:"posting_links"`
	Navigation []string  `json:"navigation_links"`
	Extracted  []verdict `json:"extracted"`
}

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to the YAML config")
	target := flag.String("url", "", "page to probe (absolute, or a path under portal.base_url)")
	cookies := flag.String("cookies", "", "cookie file to load before navigating")
	flag.Parse()

	if err := run(*configPath, *target, *cookies); err != nil {
		fmt.Fprintf(os.Stderr, "probe: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, target, cookieFile string) error {
	if target == "" {
		return fmt.Errorf("-url is required")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := logger.New("debug", true)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	r, err := browser.NewPlaywrightLauncher(browser.Options{
		Headless:          cfg.Browser.Headless,
		UserAgent:         cfg.Browser.UserAgent,
		NavigationTimeout: cfg.Timing.NavigationTimeout,
		SettleDelay:       cfg.Timing.SettleDelay,
		ScreenshotDir:     cfg.Browser.ScreenshotDir,
	}, log).Launch(ctx)
	if err != nil {
		return err
	}
	defer r.Close()

	if cookieFile == "" {
		cookieFile = cfg.Login.CookiesPath
	}
	if jar, err := browser.LoadCookies(cookieFile); err != nil {
		log.Warn("Could not load cookies", logger.String("path", cookieFile), logger.Error(err))
	} else if len(jar) > 0 {
		if err := r.SetCookies(ctx, jar); err != nil {
			return err
		}
	}

	pageURL, err := absolute(cfg.Portal.BaseURL, target)
	if err != nil {
		return err
	}
	page, err := r.Navigate(ctx, pageURL)
	if err != nil {
		return err
	}

	links := discovery.New(log).Discover(page.HTML, page.URL)
	ext := extractor.New(extractor.DefaultOptions(), log)
	val := filter.NewValidator(cfg.Validation, log)

	rep := report{URL: pageURL, FinalURL: page.URL, Postings: links.Postings, Navigation: links.Navigation}
	for _, raw := range ext.ExtractAll(page.HTML, page.URL) {
		v := verdict{Posting: raw, IsPosting: discovery.IsPostingLink(page.URL)}
		accepted, rej := val.Validate(raw)
		if rej != nil {
			v.Reason, v.Field = string(rej.Reason), rej.Field
		} else {
			v.Accepted, v.Hash = true, accepted.ContentHash
		}
		rep.Extracted = append(rep.Extracted, v)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

func absolute(base, target string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	ref, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("parse %q: %w", target, err)
	}
	return b.ResolveReference(ref).String(), nil
}
