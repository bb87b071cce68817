// Package main implements the SSH server that serves the Lilyan storefront TUI.
package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	"github.com/charmbracelet/wish/activeterm"
	"github.com/charmbracelet/wish/bubbletea"
	"github.com/charmbracelet/wish/logging"
	gossh "golang.org/x/crypto/ssh"
	"golang.org/x/sync/errgroup"

	"github.com/thomas/lilyan-terminal-go/internal/api"
	"github.com/thomas/lilyan-terminal-go/internal/auth"
	"github.com/thomas/lilyan-terminal-go/internal/cache"
	"github.com/thomas/lilyan-terminal-go/internal/cart"
	"github.com/thomas/lilyan-terminal-go/internal/catalog"
	"github.com/thomas/lilyan-terminal-go/internal/checkout"
	"github.com/thomas/lilyan-terminal-go/internal/config"
	"github.com/thomas/lilyan-terminal-go/internal/i18n"
	"github.com/thomas/lilyan-terminal-go/internal/order"
	"github.com/thomas/lilyan-terminal-go/internal/schedule"
	"github.com/thomas/lilyan-terminal-go/internal/session"
	"github.com/thomas/lilyan-terminal-go/internal/storage"
	"github.com/thomas/lilyan-terminal-go/internal/tui"
)

// shared holds the components every session reads from.
type shared struct {
	cfg     *config.Config
	logger  *log.Logger
	catalog *catalog.Catalog
	cities  order.CityFetcher
	poller  *schedule.Poller
}

func main() {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "lilyan",
	})

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", "err", err)
	}
	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	} else {
		logger.Warn("Unknown LOG_LEVEL, using info", "level", cfg.LogLevel)
	}

	// Ensure host key exists
	if err := ensureHostKey(cfg.SSHHostKeyPath, logger); err != nil {
		logger.Fatal("Failed to ensure host key", "err", err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		logger.Fatal("Failed to create data dir", "dir", cfg.DataDir, "err", err)
	}

	// Load allowlist if in allowlist mode
	var allowlist *auth.Allowlist
	if cfg.SSHAuthMode == config.AuthModeAllowlist {
		allowlist, err = auth.LoadAllowlist(cfg.AllowlistPath)
		if err != nil {
			if errors.Is(err, auth.ErrAllowlistNotFound) {
				logger.Info("Creating empty allowlist", "path", cfg.AllowlistPath)
				if err := auth.CreateEmptyAllowlist(cfg.AllowlistPath); err != nil {
					logger.Fatal("Failed to create allowlist", "err", err)
				}
				logger.Info("Please add your SSH public key to the allowlist and restart")
				os.Exit(1)
			}
			logger.Fatal("Failed to load allowlist", "err", err)
		}
		if allowlist.Len() == 0 {
			logger.Warn("Allowlist is empty. No connections will be accepted.", "path", cfg.AllowlistPath)
		}
		if allowlist.Skipped > 0 {
			logger.Warn("Skipped malformed allowlist lines", "count", allowlist.Skipped)
		}
		logger.Info("Loaded allowlist", "keys", allowlist.Len())
	} else {
		logger.Warn("Running in PUBLIC mode - anyone can connect!")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Anonymous client for shared reference data; sessions get their own.
	publicAPI := api.NewClient(cfg.APIBaseURL, api.WithLogger(logger))
	sh := &shared{
		cfg:     cfg,
		logger:  logger,
		catalog: catalog.New(publicAPI, cache.New[string, []api.Product](cfg.CacheTTL), logger),
		cities:  order.CachedCities(publicAPI, cache.New[string, []api.City](cfg.CacheTTL)),
		poller:  schedule.NewPoller(publicAPI, cfg.ClosedPollEvery, logger),
	}
	sh.warmup(ctx)
	go sh.poller.Run(ctx)

	// Create SSH server options
	opts := []ssh.Option{
		wish.WithAddress(cfg.SSHAddr),
		wish.WithHostKeyPath(cfg.SSHHostKeyPath),
		wish.WithMiddleware(
			bubbletea.Middleware(sh.handler),
			activeterm.Middleware(),
			logging.MiddlewareWithLogger(logger),
		),
		wish.WithPublicKeyAuth(func(_ ssh.Context, key ssh.PublicKey) bool {
			if allowlist == nil {
				return true
			}
			return allowlist.Allowed(key)
		}),
		// Always disable password auth
		wish.WithPasswordAuth(func(ssh.Context, string) bool { return false }),
	}

	server, err := wish.NewServer(opts...)
	if err != nil {
		logger.Fatal("Failed to create SSH server", "err", err)
	}

	logger.Info("Starting SSH server", "addr", cfg.SSHAddr, "api", cfg.APIBaseURL, "auth", cfg.SSHAuthMode)

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, ssh.ErrServerClosed) {
			logger.Fatal("Server error", "err", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Shutdown error", "err", err)
	}
}

// warmup fills the shared caches so the first session starts fast. Failures
// only mean the first session pays the fetch.
func (sh *shared) warmup(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := sh.catalog.Load(ctx)
		return err
	})
	g.Go(func() error {
		_, err := sh.cities.ListCityAreas(ctx)
		return err
	})
	g.Go(func() error {
		if st := sh.poller.Check(ctx); st.Err != nil {
			return st.Err
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		sh.logger.Warn("Warmup incomplete", "err", err)
	}
}

// handler builds the per-session components and the TUI model.
func (sh *shared) handler(s ssh.Session) (tea.Model, []tea.ProgramOption) {
	cfg := sh.cfg
	ns := auth.Namespace(s.PublicKey())
	logger := sh.logger.With("user", s.User(), "customer", ns)

	dir, err := storage.NewDir(filepath.Join(cfg.DataDir, ns))
	var base storage.Store = dir
	if err != nil {
		logger.Error("Customer storage unavailable, using memory", "err", err)
		base = storage.NewMemory()
	}
	store := storage.Debounce(base, cfg.StorageDebounce, logger)

	client := api.NewClient(cfg.APIBaseURL, api.WithLogger(logger))
	sess := session.New(client, store, logger)
	crt := cart.New(store, logger)
	agg := order.NewAggregator(store, order.NewAreaTable(), client, logger)

	redirect := checkout.RedirectFunc(func(_ context.Context, raw string) error {
		u, err := url.ParseRequestURI(raw)
		if err != nil || (u.Scheme != "https" && u.Scheme != "http") {
			return fmt.Errorf("unusable payment URL %q", raw)
		}
		logger.Info("Payment link issued", "host", u.Host)
		return nil
	})
	resolver := schedule.NewResolver(cfg.StoreLocation, sh.poller)
	handoff := checkout.New(client, agg, crt, store, redirect, cfg.PaymentProvider,
		checkout.WithUserID(sess.UserID),
		checkout.WithSlotChecker(resolver),
		checkout.WithLogger(logger),
	)

	lang := i18n.NewState(store, i18n.Match(sessionLang(s.Environ()), i18n.Lang(cfg.DefaultLanguage)), logger)

	go func() {
		<-s.Context().Done()
		if err := store.Flush(); err != nil {
			logger.Error("Flushing customer storage", "err", err)
		}
	}()

	model := tui.NewModel(tui.Deps{
		Context:          s.Context(),
		API:              client,
		Catalog:          sh.catalog,
		Cities:           sh.cities,
		Cart:             crt,
		Orders:           agg,
		Schedule:         resolver,
		Session:          sess,
		Checkout:         handoff,
		Lang:             lang,
		Store:            store,
		Logger:           logger,
		PaymentPollEvery: cfg.PaymentPollEvery,
	})
	return model, []tea.ProgramOption{tea.WithAltScreen()}
}

// sessionLang returns the client's LC_ALL or LANG, in that order.
func sessionLang(environ []string) string {
	var lang string
	for _, kv := range environ {
		k, v, _ := strings.Cut(kv, "=")
		switch k {
		case "LC_ALL":
			if v != "" {
				return v
			}
		case "LANG":
			lang = v
		}
	}
	return lang
}

// ensureHostKey generates an ED25519 host key if it doesn't exist.
func ensureHostKey(path string, logger *log.Logger) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	logger.Info("Generating new ED25519 host key", "path", path)

	pubKey, privKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("generating key: %w", err)
	}

	sshPrivKey, err := gossh.MarshalPrivateKey(privKey, "")
	if err != nil {
		return fmt.Errorf("marshaling private key: %w", err)
	}
	if err := os.WriteFile(path, pem.EncodeToMemory(sshPrivKey), 0o600); err != nil {
		return fmt.Errorf("writing private key: %w", err)
	}

	sshPubKey, err := gossh.NewPublicKey(pubKey)
	if err != nil {
		return fmt.Errorf("creating public key: %w", err)
	}
	if err := os.WriteFile(path+".pub", gossh.MarshalAuthorizedKey(sshPubKey), 0o644); err != nil {
		return fmt.Errorf("writing public key: %w", err)
	}
	return nil
}
