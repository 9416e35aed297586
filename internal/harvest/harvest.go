// Package harvest runs one harvest cycle: plan the paths, render them,
// discover and extract postings, validate, dedup and store them.
package harvest

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"go-portal-harvester/internal/authsignal"
	"go-portal-harvester/internal/browser"
	"go-portal-harvester/internal/config"
	"go-portal-harvester/internal/dedup"
	"go-portal-harvester/internal/discovery"
	apperrors "go-portal-harvester/internal/errors"
	"go-portal-harvester/internal/extractor"
	"go-portal-harvester/internal/filter"
	"go-portal-harvester/internal/logger"
	"go-portal-harvester/internal/models"
	"go-portal-harvester/internal/scheduler"
	"go-portal-harvester/internal/session"
	"go-portal-harvester/internal/store"
	"go-portal-harvester/internal/telemetry"
	"go-portal-harvester/internal/textnorm"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrAlreadyRunning is returned when a cycle is started while another one
// on the same harvester has not finished.
var ErrAlreadyRunning = errors.New("harvest cycle already running")

type Options struct {
	BaseURL            string
	Source             string
	LoginPath          string
	MaxPostingsPerPath int
	MaxNavFollowups    int
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		BaseURL:            cfg.Portal.BaseURL,
		Source:             cfg.Portal.SourceTag,
		LoginPath:          cfg.Login.Path,
		MaxPostingsPerPath: cfg.Limits.MaxPostingsPerPath,
		MaxNavFollowups:    cfg.Limits.MaxNavFollowups,
	}
}

// Deps are the collaborators of a harvester. Metrics and Tracer may be nil.
type Deps struct {
	Launcher   browser.Launcher
	Sessions   *session.Manager
	Scheduler  *scheduler.Scheduler
	Discoverer *discovery.Discoverer
	Extractor  *extractor.Extractor
	Validator  *filter.Validator
	Dedup      *dedup.Engine
	Store      store.Store
	Metrics    *telemetry.Metrics
	Tracer     *telemetry.Tracer
	Log        logger.Logger
}

// Summary is what one cycle did. JobsFound, EmployerSignalsFound and Errors
// are the invocation result; the rest is detail for the operator.
type Summary struct {
	JobsFound            int      `json:"jobs_found"`
	EmployerSignalsFound int      `json:"employer_signals_found"`
	Errors               []string `json:"errors"`

	Discovered    int                         `json:"discovered"`
	Inserted      int                         `json:"inserted"`
	Updated       int                         `json:"updated"`
	Refreshed     int                         `json:"refreshed"`
	Skipped       int                         `json:"skipped"`
	Incomplete    int                         `json:"incomplete"`
	Rejected      map[models.RejectReason]int `json:"rejected"`
	PathsVisited  []string                    `json:"paths_visited"`
	Authenticated bool                        `json:"authenticated"`
	Duration      time.Duration               `json:"duration"`
}

// Harvester owns one portal. Cycles on the same harvester never overlap.
type Harvester struct {
	opts Options
	deps Deps
	log  logger.Logger

	running sync.Mutex
	now     func() time.Time
}

func New(opts Options, deps Deps) *Harvester {
	if opts.MaxPostingsPerPath <= 0 {
		opts.MaxPostingsPerPath = 20
	}
	if opts.MaxNavFollowups < 0 {
		opts.MaxNavFollowups = 0
	}
	if deps.Tracer == nil {
		deps.Tracer = telemetry.NewTracer()
	}
	if deps.Log == nil {
		deps.Log = logger.NewNop()
	}
	return &Harvester{
		opts: opts,
		deps: deps,
		log:  deps.Log.With(logger.String("component", "harvest"), logger.String("source", opts.Source)),
		now:  time.Now,
	}
}

// SetClock replaces the time source used for seen-at timestamps.
func (h *Harvester) SetClock(now func() time.Time) {
	h.now = now
}

// RunHarvestCycle visits the planned paths once. Per-path and per-posting
// problems end up in Summary.Errors; the returned error is a HARD_FAILURE,
// a cycle state failure or ErrAlreadyRunning.
func (h *Harvester) RunHarvestCycle(ctx context.Context) (*Summary, error) {
	if !h.running.TryLock() {
		return nil, ErrAlreadyRunning
	}
	defer h.running.Unlock()

	start := h.now()
	ctx, span := h.deps.Tracer.Start(ctx, "harvest.cycle", trace.WithAttributes(attribute.String("source", h.opts.Source)))
	defer span.End()

	plan, err := h.deps.Scheduler.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "plan failed")
		return nil, fmt.Errorf("plan cycle: %w", err)
	}

	r, err := h.deps.Launcher.Launch(ctx)
	if err != nil {
		if !apperrors.IsType(err, apperrors.ErrTypeHard) {
			err = apperrors.HardFailure("launch renderer", err)
		}
		h.log.Error("Renderer could not be launched", logger.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "launch failed")
		h.deps.Metrics.RunFinished(h.now().Sub(start).Seconds(), plan.Remaining, false, float64(h.now().Unix()))
		return nil, err
	}
	defer func() {
		if err := r.Close(); err != nil {
			h.log.Warn("Closing renderer failed", logger.Error(err))
		}
	}()

	run := &cycle{
		h:         h,
		r:         r,
		remaining: plan.Remaining,
		summary:   &Summary{Rejected: make(map[models.RejectReason]int)},
		seen:      make(map[string]struct{}),
		employers: make(map[string]struct{}),
	}

	attempted := 0
	for _, path := range plan.Paths {
		if ctx.Err() != nil {
			run.fail(apperrors.RenderFailure("cycle cancelled", ctx.Err()))
			break
		}
		attempted++
		run.visitPath(ctx, path)
	}

	s := run.summary
	harvested := s.Inserted + s.Updated
	s.JobsFound = harvested
	s.EmployerSignalsFound = len(run.employers)
	s.Duration = h.now().Sub(start)

	//record progress even when the caller's context is gone
	if err := h.deps.Scheduler.Advance(context.WithoutCancel(ctx), attempted, harvested); err != nil {
		span.RecordError(err)
		h.deps.Metrics.RunFinished(s.Duration.Seconds(), 0, false, float64(h.now().Unix()))
		return s, fmt.Errorf("advance cycle: %w", err)
	}

	cycleItems := 0
	if cs, err := h.deps.Scheduler.State(context.WithoutCancel(ctx)); err == nil {
		cycleItems = cs.ItemsHarvestedThisCycle
	}
	h.deps.Metrics.RunFinished(s.Duration.Seconds(), cycleItems, true, float64(h.now().Unix()))

	span.SetAttributes(
		attribute.Int("jobs_found", s.JobsFound),
		attribute.Int("errors", len(s.Errors)),
		attribute.Int("paths", len(s.PathsVisited)),
	)
	h.log.Info("Harvest cycle finished",
		logger.Int("discovered", s.Discovered),
		logger.Int("inserted", s.Inserted),
		logger.Int("updated", s.Updated),
		logger.Int("refreshed", s.Refreshed),
		logger.Int("skipped", s.Skipped),
		logger.Int("incomplete", s.Incomplete),
		logger.Int("rejected", rejectedTotal(s.Rejected)),
		logger.Int("employers", s.EmployerSignalsFound),
		logger.Int("errors", len(s.Errors)),
		logger.Bool("authenticated", s.Authenticated),
		logger.Duration("duration", s.Duration))
	return s, nil
}

// cycle is the mutable state of one RunHarvestCycle call.
type cycle struct {
	h         *Harvester
	r         browser.Renderer
	remaining int
	summary   *Summary
	seen      map[string]struct{}
	employers map[string]struct{}
	//anonymous is set after an auth failure; later paths skip the login
	anonymous bool
}

func (c *cycle) quotaReached() bool {
	return c.summary.Inserted+c.summary.Updated >= c.remaining
}

func (c *cycle) fail(err error) {
	c.summary.Errors = append(c.summary.Errors, err.Error())
}

func (c *cycle) visitPath(ctx context.Context, path string) {
	h := c.h
	ctx, span := h.deps.Tracer.Start(ctx, "harvest.path", trace.WithAttributes(attribute.String("path", path)))
	defer span.End()
	log := h.log.With(logger.String("path", path))

	c.ensureSession(ctx, path)

	target := h.absolute(path)
	page, err := c.navigate(ctx, target, "listing")
	if err != nil {
		log.Warn("Skipping path", logger.Error(err))
		span.RecordError(err)
		return
	}

	if h.deps.Sessions.IsProtected(path) && authsignal.IsLoginURL(page.URL, h.opts.LoginPath) {
		if page = c.reauthenticate(ctx, path, target, page.URL); page == nil {
			return
		}
	}
	c.summary.PathsVisited = append(c.summary.PathsVisited, path)

	links := h.deps.Discoverer.Discover(page.HTML, page.URL)
	postings := links.Postings
	if len(postings) == 0 && len(links.Navigation) > 0 {
		postings = c.followNavigation(ctx, links.Navigation)
	}

	//a listing without any links is itself a feed or an announcement,
	//decided before links seen on earlier paths are dropped
	feed := len(links.Postings) == 0 && len(links.Navigation) == 0

	postings = c.unseen(postings)
	h.deps.Metrics.Discovered("posting", len(postings))
	h.deps.Metrics.Discovered("navigation", len(links.Navigation))
	c.summary.Discovered += len(postings)
	log.Info("Discovered postings", logger.Int("postings", len(postings)), logger.Int("navigation", len(links.Navigation)))

	if feed {
		c.process(ctx, page)
		return
	}

	for i, link := range postings {
		if c.quotaReached() {
			log.Info("Quota reached", logger.Int("remaining", c.remaining))
			return
		}
		if i >= h.opts.MaxPostingsPerPath {
			log.Debug("Posting limit reached for path", logger.Int("limit", h.opts.MaxPostingsPerPath))
			return
		}
		if ctx.Err() != nil {
			return
		}
		c.harvestPosting(ctx, link)
	}
}

// reauthenticate handles a protected path that bounced to the login page:
// the session is dropped and the path is retried once after a fresh login.
func (c *cycle) reauthenticate(ctx context.Context, path, target, landed string) *browser.Page {
	h := c.h
	if !c.anonymous {
		h.log.Warn("Redirected to login, retrying once", logger.String("path", path), logger.String("landed", landed))
		h.deps.Sessions.Invalidate(ctx, "redirected to login from "+path)
		c.ensureSession(ctx, path)
	}
	if c.anonymous {
		c.fail(apperrors.AuthFailure(path+" requires a login", nil))
		return nil
	}

	page, err := c.navigate(ctx, target, "listing")
	if err != nil {
		return nil
	}
	if authsignal.IsLoginURL(page.URL, h.opts.LoginPath) {
		c.fail(apperrors.AuthFailure(path+" still redirects to login", nil))
		c.screenshot("login_redirect", path)
		return nil
	}
	return page
}

// ensureSession degrades to anonymous browsing when login fails.
func (c *cycle) ensureSession(ctx context.Context, path string) {
	if c.anonymous {
		return
	}
	handle, err := c.h.deps.Sessions.EnsureSession(ctx, c.r, path)
	if err != nil {
		c.h.log.Warn("Continuing without session", logger.String("path", path), logger.Error(err))
		c.fail(err)
		c.screenshot("auth_failure", err.Error())
		c.anonymous = true
		return
	}
	if handle.Authenticated {
		c.summary.Authenticated = true
	}
}

// followNavigation visits section links once. Their own navigation links are
// not followed.
func (c *cycle) followNavigation(ctx context.Context, nav []string) []string {
	var out []string
	for i, link := range nav {
		if i >= c.h.opts.MaxNavFollowups {
			break
		}
		page, err := c.navigate(ctx, link, "listing")
		if err != nil {
			continue
		}
		out = append(out, c.h.deps.Discoverer.Discover(page.HTML, page.URL).Postings...)
	}
	return out
}

// unseen drops links already handled earlier in this cycle.
func (c *cycle) unseen(links []string) []string {
	out := make([]string, 0, len(links))
	for _, l := range links {
		if _, dup := c.seen[l]; dup {
			continue
		}
		c.seen[l] = struct{}{}
		out = append(out, l)
	}
	return out
}

func (c *cycle) harvestPosting(ctx context.Context, link string) {
	ctx, span := c.h.deps.Tracer.Start(ctx, "harvest.posting", trace.WithAttributes(attribute.String("url", link)))
	defer span.End()

	page, err := c.navigate(ctx, link, "posting")
	if err != nil {
		span.RecordError(err)
		return
	}
	if authsignal.IsLoginURL(page.URL, c.h.opts.LoginPath) {
		c.fail(apperrors.AuthFailure(fmt.Sprintf("posting %s requires login", link), nil))
		return
	}
	c.process(ctx, page)
}

// process extracts every posting on page and pushes each one through
// validation, dedup and the store.
func (c *cycle) process(ctx context.Context, page *browser.Page) {
	h := c.h
	raws := h.deps.Extractor.ExtractAll(page.HTML, page.URL)
	if len(raws) == 0 {
		c.summary.Incomplete++
		h.deps.Metrics.Incomplete()
		h.log.Debug("Dropping page", logger.Error(apperrors.ExtractionIncomplete("no complete posting on "+page.URL, nil)))
		return
	}

	for _, raw := range raws {
		if c.quotaReached() {
			return
		}
		if raw.SourceURL == "" {
			raw.SourceURL = page.URL
		}

		v, rej := h.deps.Validator.Validate(raw)
		if rej != nil {
			c.summary.Rejected[rej.Reason]++
			h.deps.Metrics.Rejected(string(rej.Reason))
			continue
		}
		c.employers[textnorm.Fold(v.Company)] = struct{}{}

		d, err := h.deps.Dedup.Resolve(ctx, *v)
		if err != nil {
			h.log.Warn("Dedup lookup failed", logger.String("url", v.SourceURL), logger.Error(err))
			c.fail(apperrors.Internal("dedup "+v.SourceURL, err))
			continue
		}
		h.deps.Metrics.Decision(string(d.Action), string(d.MatchedBy))
		c.apply(ctx, *v, d)
	}
}

func (c *cycle) apply(ctx context.Context, v models.ValidatedPosting, d models.Decision) {
	h := c.h
	seenAt := h.now()
	log := h.log.With(logger.String("title", v.Title), logger.String("company", v.Company))

	switch d.Action {
	case models.ActionInsert:
		rec, err := h.deps.Store.Insert(ctx, h.opts.Source, v, seenAt)
		if errors.Is(err, store.ErrDuplicateActive) {
			//another writer stored it between lookup and insert
			c.summary.Skipped++
			return
		}
		if err != nil {
			log.Error("Insert failed", logger.Error(err))
			c.fail(apperrors.Internal("insert "+v.SourceURL, err))
			return
		}
		c.summary.Inserted++
		log.Info("Stored new posting", logger.String("record_id", rec.ID))
	case models.ActionUpdate:
		if err := h.deps.Store.UpdateExisting(ctx, d.RecordID, v, seenAt); err != nil {
			log.Error("Update failed", logger.String("record_id", d.RecordID), logger.Error(err))
			c.fail(apperrors.Internal("update "+d.RecordID, err))
			return
		}
		if !d.Changed {
			c.summary.Refreshed++
			log.Debug("Refreshed unchanged posting", logger.String("record_id", d.RecordID))
			return
		}
		c.summary.Updated++
		log.Info("Updated posting", logger.String("record_id", d.RecordID), logger.String("matched_by", string(d.MatchedBy)))
	default:
		if err := h.deps.Store.MarkSeen(ctx, d.RecordID, seenAt); err != nil {
			log.Warn("Mark seen failed", logger.String("record_id", d.RecordID), logger.Error(err))
		}
		c.summary.Skipped++
		log.Debug("Duplicate posting", logger.String("record_id", d.RecordID), logger.String("matched_by", string(d.MatchedBy)))
	}
}

func (c *cycle) navigate(ctx context.Context, target, kind string) (*browser.Page, error) {
	page, err := c.r.Navigate(ctx, target)
	if err != nil {
		if !apperrors.IsType(err, apperrors.ErrTypeRender) {
			err = apperrors.RenderFailure("navigate "+target, err)
		}
		c.h.deps.Metrics.NavigationError(kind)
		c.fail(err)
		return nil, err
	}
	return page, nil
}

func (c *cycle) screenshot(name, message string) {
	if s, ok := c.r.(browser.Screenshotter); ok {
		if err := s.Screenshot(name, message); err != nil {
			c.h.log.Debug("Screenshot failed", logger.Error(err))
		}
	}
}

func (h *Harvester) absolute(path string) string {
	base, err := url.Parse(h.opts.BaseURL)
	if err != nil || base.Host == "" {
		return path
	}
	ref, err := url.Parse(path)
	if err != nil {
		return path
	}
	return base.ResolveReference(ref).String()
}

func rejectedTotal(m map[models.RejectReason]int) int {
	n := 0
	for _, v := range m {
		n += v
	}
	return n
}
