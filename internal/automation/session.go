package automation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ecobee_automation/internal/config"
	"ecobee_automation/internal/logger"
	"ecobee_automation/internal/models"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// expiryProbeTimeout bounds the "did we get bounced back to the login page"
// check after a failed lookup.
const expiryProbeTimeout = 3 * time.Second

// SessionManager owns the single browser instance and the authenticated
// portal session running in it. No other component may create, hold or
// destroy the browser handle; everything else works through the Navigator
// the session hands out. Callers are expected to serialize access (the
// thermostat service queues commands on a mutex).
type SessionManager struct {
	cfg         config.Portal
	creds       models.Credentials
	thermostats map[string]string
	selectors   *SelectorMap
	log         *logger.Logger

	// navFactory launches the browser and builds the production navigator.
	// Tests substitute a fake so no Chrome is needed.
	navFactory func(ctx context.Context) (Navigator, Capturer, func() error, error)

	nav            Navigator
	capturer       Capturer
	release        func() error
	authenticated  bool
	createdAt      time.Time
	lastActivity   time.Time
	selectedDevice string
}

func NewSessionManager(cfg config.Portal, creds models.Credentials, thermostats map[string]string, selectors *SelectorMap, log *logger.Logger) *SessionManager {
	s := &SessionManager{
		cfg:         cfg,
		creds:       creds,
		thermostats: thermostats,
		selectors:   selectors,
		log:         log,
	}
	s.navFactory = s.launchRod
	return s
}

// Navigator exposes the UI action surface of the live session. Nil until the
// browser has been started by the first login.
func (s *SessionManager) Navigator() Navigator { return s.nav }

// Capturer implements CapturerSource for the diagnostics collector.
func (s *SessionManager) Capturer() Capturer { return s.capturer }

// Authenticated reports whether the session currently holds a login.
func (s *SessionManager) Authenticated() bool { return s.authenticated }

// SelectedDevice returns the device the portal session is scoped to.
func (s *SessionManager) SelectedDevice() string { return s.selectedDevice }

// Login authenticates against the portal. A timeout waiting for the
// post-login landmark is inspected further: a populated error banner means
// the credentials were rejected (fatal, never retried); anything else stays
// a retryable navigation timeout.
func (s *SessionManager) Login(ctx context.Context) error {
	if err := s.ensureStarted(ctx); err != nil {
		return err
	}

	s.authenticated = false
	s.selectedDevice = ""

	if err := s.nav.Open(ctx, s.cfg.LoginURL); err != nil {
		return err
	}
	if err := s.nav.SetValue(ctx, "login.username_field", s.creds.Username); err != nil {
		return err
	}
	if err := s.nav.SetValue(ctx, "login.password_field", s.creds.Password); err != nil {
		return err
	}
	if err := s.nav.Click(ctx, "login.submit"); err != nil {
		return err
	}

	if err := s.nav.WaitFor(ctx, "portal.landmark", s.cfg.NavTimeout); err != nil {
		if banner, berr := s.nav.ReadText(ctx, "login.error_banner"); berr == nil && strings.TrimSpace(banner) != "" {
			return newError(KindAuthentication, "login", fmt.Errorf("portal rejected credentials: %s", strings.TrimSpace(banner)))
		}
		return err
	}

	now := time.Now().UTC()
	s.authenticated = true
	s.createdAt = now
	s.lastActivity = now
	s.log.Infow("portal_login_ok", "user", s.creds.Username)
	return nil
}

// EnsureSession guarantees an authenticated session scoped to device before
// any device command runs. Stale sessions are re-verified against the portal
// landmark; a failed check triggers a transparent re-login with the same
// credentials followed by device re-selection.
func (s *SessionManager) EnsureSession(ctx context.Context, device string) error {
	if _, ok := s.thermostats[device]; !ok {
		return newError(KindConfiguration, "ensure session", fmt.Errorf("unknown thermostat %q", device))
	}

	if !s.authenticated {
		if err := s.Login(ctx); err != nil {
			return err
		}
	} else if time.Since(s.lastActivity) > s.cfg.SessionTTL {
		if err := s.nav.WaitFor(ctx, "portal.landmark", s.cfg.NavTimeout); err != nil {
			s.log.Infow("session_stale_relogin", "idle", time.Since(s.lastActivity))
			if err := s.Login(ctx); err != nil {
				return err
			}
		}
	}

	if err := s.selectDevice(ctx, device); err != nil {
		return err
	}
	s.Touch()
	return nil
}

// selectDevice points the portal at one thermostat. Re-selecting the current
// device is a no-op beyond reading back the selected-device indicator.
func (s *SessionManager) selectDevice(ctx context.Context, device string) error {
	portalID := s.thermostats[device]

	if s.selectedDevice == device {
		if s.indicatorMatches(ctx, device, portalID) {
			return nil
		}
		// Indicator disagrees; fall through and select again.
		s.selectedDevice = ""
	}

	if err := s.nav.Click(ctx, "devices.menu"); err != nil {
		return s.orExpired(ctx, err)
	}
	if err := s.nav.Click(ctx, "devices.option", portalID); err != nil {
		return s.orExpired(ctx, err)
	}
	if err := s.nav.WaitFor(ctx, "devices.selected", s.cfg.NavTimeout); err != nil {
		return s.orExpired(ctx, err)
	}
	if !s.indicatorMatches(ctx, device, portalID) {
		return newError(KindElementNotFound, "select device",
			fmt.Errorf("selected-device indicator does not show %q", device))
	}

	s.selectedDevice = device
	s.log.Infow("device_selected", "device", device)
	return nil
}

func (s *SessionManager) indicatorMatches(ctx context.Context, device, portalID string) bool {
	text, err := s.nav.ReadText(ctx, "devices.selected")
	if err != nil {
		return false
	}
	text = strings.ToLower(text)
	return strings.Contains(text, strings.ToLower(device)) || strings.Contains(text, strings.ToLower(portalID))
}

// orExpired upgrades a failed lookup to a session-expired error when the
// portal has bounced us back to the login form. Retry classification treats
// expiry as retryable, and the next attempt's EnsureSession re-logs-in.
func (s *SessionManager) orExpired(ctx context.Context, err error) error {
	if KindOf(err) != KindElementNotFound && KindOf(err) != KindNavigationTimeout {
		return err
	}
	if probe := s.nav.WaitFor(ctx, "login.username_field", expiryProbeTimeout); probe == nil {
		s.authenticated = false
		s.selectedDevice = ""
		return newError(KindSessionExpired, "session", errors.New("portal returned to login page"))
	}
	return err
}

// MarkExpired flags the session for re-login on the next EnsureSession.
func (s *SessionManager) MarkExpired() {
	s.authenticated = false
	s.selectedDevice = ""
}

// Touch records activity for session freshness tracking.
func (s *SessionManager) Touch() { s.lastActivity = time.Now().UTC() }

// IdleFor reports how long the session has gone without activity.
func (s *SessionManager) IdleFor() time.Duration {
	if s.nav == nil {
		return 0
	}
	return time.Since(s.lastActivity)
}

// Close releases the browser resource. Safe to call repeatedly; it must run
// on every exit path so the underlying Chrome never leaks.
func (s *SessionManager) Close() error {
	s.authenticated = false
	s.selectedDevice = ""
	s.nav = nil
	s.capturer = nil
	if s.release == nil {
		return nil
	}
	release := s.release
	s.release = nil
	if err := release(); err != nil {
		return fmt.Errorf("release browser: %w", err)
	}
	s.log.Infow("browser_released")
	return nil
}

func (s *SessionManager) ensureStarted(ctx context.Context) error {
	if s.nav != nil {
		return nil
	}
	nav, capturer, release, err := s.navFactory(ctx)
	if err != nil {
		return err
	}
	s.nav = nav
	s.capturer = capturer
	s.release = release
	return nil
}

// launchRod starts a Chrome via rod's launcher and opens the single blank
// page all navigation runs against.
func (s *SessionManager) launchRod(ctx context.Context) (Navigator, Capturer, func() error, error) {
	l := launcher.New().Headless(s.cfg.Headless)
	controlURL, err := l.Launch()
	if err != nil {
		return nil, nil, nil, newError(KindNavigationTimeout, "launch browser", err)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		l.Cleanup()
		return nil, nil, nil, newError(KindNavigationTimeout, "connect browser", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = browser.Close()
		l.Cleanup()
		return nil, nil, nil, newError(KindNavigationTimeout, "create page", err)
	}

	// Match viewport to a desktop window so the portal serves its full UI.
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             1920,
		Height:            1080,
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}); err != nil {
		s.log.Warnw("viewport_set_failed", "err", err)
	}

	nav := newRodNavigator(page, s.selectors, s.cfg.NavTimeout)
	release := func() error {
		err := browser.Close()
		l.Cleanup()
		return err
	}
	s.log.Infow("browser_launched", "headless", s.cfg.Headless)
	return nav, nav, release, nil
}
