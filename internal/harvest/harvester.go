// Package harvest obtains a source session cookie with a real browser and stores it.
package harvest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/perm-crawler/internal/perm"
)

// DefaultURL is the page that issues the grid session cookies.
const DefaultURL = "https://lcr-pjr.doleta.gov"

// Config controls the browser session.
type Config struct {
	URL               string
	Headless          bool
	UserAgent         string
	NavigationTimeout time.Duration
	// LoginWait keeps the page open so an operator can sign in when not headless.
	LoginWait time.Duration
}

// CookieSaver persists harvested cookie content.
type CookieSaver interface {
	Save(ctx context.Context, content string) (perm.Cookie, error)
}

// Harvester drives Chrome through chromedp.
type Harvester struct {
	cfg         Config
	saver       CookieSaver
	logger      *zap.Logger
	allocator   context.Context
	allocCancel context.CancelFunc
}

// New creates a Harvester with its own browser allocator.
func New(cfg Config, saver CookieSaver, logger *zap.Logger) (*Harvester, error) {
	if saver == nil {
		return nil, errors.New("cookie saver is required")
	}
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Harvester{
		cfg:         cfg,
		saver:       saver,
		logger:      logger,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close cancels the allocator context and shuts the browser down.
func (h *Harvester) Close() {
	h.allocCancel()
}

// Harvest opens the source site, collects its cookies and saves them as one string.
func (h *Harvester) Harvest(ctx context.Context) (perm.Cookie, error) {
	taskCtx, taskCancel := chromedp.NewContext(h.allocator)
	defer taskCancel()

	taskCtx, cancel := context.WithTimeout(taskCtx, h.cfg.NavigationTimeout+h.cfg.LoginWait)
	defer cancel()

	// Stop the browser task when the caller gives up.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var cookies []*network.Cookie
	actions := []chromedp.Action{
		h.networkSetupAction(),
		chromedp.Navigate(h.cfg.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	if h.cfg.LoginWait > 0 {
		h.logger.Info("waiting for operator sign-in", zap.Duration("wait", h.cfg.LoginWait))
		actions = append(actions, chromedp.Sleep(h.cfg.LoginWait))
	}
	actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err := chromedp.Run(taskCtx, actions...); err != nil {
		return perm.Cookie{}, fmt.Errorf("chromedp run: %w", err)
	}

	content := FormatCookies(cookies)
	if content == "" {
		return perm.Cookie{}, fmt.Errorf("no cookies issued by %s", h.cfg.URL)
	}
	saved, err := h.saver.Save(ctx, content)
	if err != nil {
		return perm.Cookie{}, err
	}
	h.logger.Info("cookie harvested", zap.Int("cookies", len(cookies)), zap.Int64("cookie_id", saved.ID))
	return saved, nil
}

func (h *Harvester) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if h.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(h.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

// FormatCookies renders cookies as "name=value;" pairs joined by spaces, the form the
// grid expects in its Cookie header.
func FormatCookies(cookies []*network.Cookie) string {
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		if c == nil || c.Name == "" {
			continue
		}
		parts = append(parts, c.Name+"="+c.Value+";")
	}
	return strings.Join(parts, " ")
}
