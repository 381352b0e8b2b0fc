package automation

import (
	"context"
	"errors"
	"testing"
	"time"

	"ecobee_automation/internal/config"
	"ecobee_automation/internal/logger"
	"ecobee_automation/internal/models"
)

func newTestSession(t *testing.T, fake *fakeNavigator) *SessionManager {
	t.Helper()
	sel, err := NewSelectorMap(testSelectors())
	if err != nil {
		t.Fatalf("NewSelectorMap: %v", err)
	}
	cfg := config.Portal{
		LoginURL:   "https://portal.example/login",
		HomeURL:    "https://portal.example/home",
		NavTimeout: time.Second,
		SessionTTL: time.Hour,
	}
	thermostats := map[string]string{"home": "519999", "cabin": "520001"}
	s := NewSessionManager(cfg, models.Credentials{Username: "user@example.com", Password: "hunter2"},
		thermostats, sel, logger.New(logger.ErrorLevel))
	s.navFactory = func(ctx context.Context) (Navigator, Capturer, func() error, error) {
		return fake, fake, func() error { return nil }, nil
	}
	return s
}

func TestLoginHappyPath(t *testing.T) {
	fake := newFakeNavigator()
	s := newTestSession(t, fake)

	if err := s.Login(context.Background()); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !s.Authenticated() {
		t.Errorf("session should be authenticated")
	}

	want := []string{
		"open:https://portal.example/login",
		"set:login.username_field",
		"set:login.password_field",
		"click:login.submit",
		"wait:portal.landmark",
	}
	if len(fake.calls) != len(want) {
		t.Fatalf("calls: %v", fake.calls)
	}
	for i, w := range want {
		if fake.calls[i] != w {
			t.Errorf("call %d: got %q, want %q", i, fake.calls[i], w)
		}
	}
}

func TestLoginRejectedCredentialsAreFatal(t *testing.T) {
	fake := newFakeNavigator()
	fake.errs["wait:portal.landmark"] = newError(KindNavigationTimeout, "wait", errors.New("timeout"))
	fake.texts["login.error_banner"] = "Email or password is incorrect."
	s := newTestSession(t, fake)

	err := s.Login(context.Background())
	if KindOf(err) != KindAuthentication {
		t.Fatalf("expected authentication error, got %v", err)
	}
	if s.Authenticated() {
		t.Errorf("rejected login must not mark the session authenticated")
	}
	if DefaultClassify(err) {
		t.Errorf("authentication failure must be classified fatal")
	}
}

func TestLoginTimeoutWithoutBannerStaysRetryable(t *testing.T) {
	fake := newFakeNavigator()
	fake.errs["wait:portal.landmark"] = newError(KindNavigationTimeout, "wait", errors.New("timeout"))
	fake.errs["read:login.error_banner"] = newError(KindElementNotFound, "read", errors.New("no banner"))
	s := newTestSession(t, fake)

	err := s.Login(context.Background())
	if KindOf(err) != KindNavigationTimeout {
		t.Fatalf("expected navigation timeout, got %v", err)
	}
	if !DefaultClassify(err) {
		t.Errorf("landmark timeout must stay retryable")
	}
}

func TestEnsureSessionRejectsUnknownDevice(t *testing.T) {
	s := newTestSession(t, newFakeNavigator())
	err := s.EnsureSession(context.Background(), "garage")
	if KindOf(err) != KindConfiguration {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestEnsureSessionLogsInAndSelectsDevice(t *testing.T) {
	fake := newFakeNavigator()
	fake.texts["devices.selected"] = "Home"
	s := newTestSession(t, fake)

	if err := s.EnsureSession(context.Background(), "home"); err != nil {
		t.Fatalf("EnsureSession: %v", err)
	}
	if s.SelectedDevice() != "home" {
		t.Errorf("selected device %q", s.SelectedDevice())
	}
	if fake.count("click:devices.menu") != 1 || fake.count("click:devices.option") != 1 {
		t.Errorf("device selection sequence wrong: %v", fake.calls)
	}
}

func TestEnsureSessionDeviceSelectionIsIdempotent(t *testing.T) {
	fake := newFakeNavigator()
	fake.texts["devices.selected"] = "Home"
	s := newTestSession(t, fake)

	for i := 0; i < 3; i++ {
		if err := s.EnsureSession(context.Background(), "home"); err != nil {
			t.Fatalf("EnsureSession %d: %v", i, err)
		}
	}
	if got := fake.count("click:devices.menu"); got != 1 {
		t.Errorf("re-selecting the current device must be a no-op, menu clicked %d times", got)
	}
	// The indicator read-back still happens every time.
	if got := fake.count("read:devices.selected"); got < 3 {
		t.Errorf("expected a verifying read per call, got %d", got)
	}
}

func TestEnsureSessionSwitchesDevices(t *testing.T) {
	fake := newFakeNavigator()
	fake.texts["devices.selected"] = "Home"
	s := newTestSession(t, fake)

	if err := s.EnsureSession(context.Background(), "home"); err != nil {
		t.Fatalf("EnsureSession(home): %v", err)
	}
	fake.texts["devices.selected"] = "Cabin"
	if err := s.EnsureSession(context.Background(), "cabin"); err != nil {
		t.Fatalf("EnsureSession(cabin): %v", err)
	}
	if s.SelectedDevice() != "cabin" {
		t.Errorf("selected device %q", s.SelectedDevice())
	}
	if got := fake.count("click:devices.menu"); got != 2 {
		t.Errorf("expected one selection per device, menu clicked %d times", got)
	}
}

func TestEnsureSessionReloginAfterStaleCheck(t *testing.T) {
	fake := newFakeNavigator()
	fake.texts["devices.selected"] = "Home"
	s := newTestSession(t, fake)

	if err := s.EnsureSession(context.Background(), "home"); err != nil {
		t.Fatalf("EnsureSession: %v", err)
	}

	// Push the session past its TTL and make the freshness probe fail once.
	s.lastActivity = time.Now().UTC().Add(-2 * time.Hour)
	failures := 1
	fake.onWait = func(name string) error {
		if name == "portal.landmark" && failures > 0 {
			failures--
			return newError(KindNavigationTimeout, "wait", errors.New("gone"))
		}
		return nil
	}

	if err := s.EnsureSession(context.Background(), "home"); err != nil {
		t.Fatalf("EnsureSession after expiry: %v", err)
	}
	if got := fake.count("open:https://portal.example/login"); got != 2 {
		t.Errorf("expected transparent re-login, login page opened %d times", got)
	}
	if !s.Authenticated() {
		t.Errorf("session should be authenticated after re-login")
	}
}

func TestLookupFailureUpgradesToSessionExpired(t *testing.T) {
	fake := newFakeNavigator()
	fake.texts["devices.selected"] = "Home"
	s := newTestSession(t, fake)

	if err := s.EnsureSession(context.Background(), "home"); err != nil {
		t.Fatalf("EnsureSession: %v", err)
	}

	// Force re-selection to a different device and make the menu lookup fail
	// while the login form is reachable again.
	fake.errs["click:devices.menu"] = newError(KindElementNotFound, "click", errors.New("gone"))
	err := s.EnsureSession(context.Background(), "cabin")
	if KindOf(err) != KindSessionExpired {
		t.Fatalf("expected session expired, got %v", err)
	}
	if s.Authenticated() {
		t.Errorf("expired session must require re-login")
	}
	if !DefaultClassify(err) {
		t.Errorf("session expiry must be retryable")
	}
}

func TestCloseReleasesBrowserOnce(t *testing.T) {
	fake := newFakeNavigator()
	s := newTestSession(t, fake)
	released := 0
	s.navFactory = func(ctx context.Context) (Navigator, Capturer, func() error, error) {
		return fake, fake, func() error { released++; return nil }, nil
	}

	if err := s.Login(context.Background()); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if released != 1 {
		t.Errorf("browser released %d times", released)
	}
	if s.Navigator() != nil || s.Capturer() != nil {
		t.Errorf("closed session must not hand out the navigator")
	}
}
