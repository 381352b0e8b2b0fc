package automation

import (
	"context"
	"time"

	"ecobee_automation/internal/config"
)

// fakeNavigator is a scriptable Navigator + Capturer. Errors are keyed by
// "action:name" (e.g. "click:mode_menu.open"); every call is recorded in
// calls so tests can assert the exact action sequence.
type fakeNavigator struct {
	texts map[string]string
	errs  map[string]error
	calls []string

	onClick func(name string)
	onWait  func(name string) error

	html string
	png  []byte
}

func newFakeNavigator() *fakeNavigator {
	return &fakeNavigator{
		texts: map[string]string{},
		errs:  map[string]error{},
		html:  "<html></html>",
		png:   []byte{0x89, 'P', 'N', 'G'},
	}
}

func (f *fakeNavigator) Open(ctx context.Context, url string) error {
	f.calls = append(f.calls, "open:"+url)
	return f.errs["open"]
}

func (f *fakeNavigator) Click(ctx context.Context, name string, args ...string) error {
	f.calls = append(f.calls, "click:"+name)
	if err := f.errs["click:"+name]; err != nil {
		return err
	}
	if f.onClick != nil {
		f.onClick(name)
	}
	return nil
}

func (f *fakeNavigator) SetValue(ctx context.Context, name, value string, args ...string) error {
	f.calls = append(f.calls, "set:"+name)
	return f.errs["set:"+name]
}

func (f *fakeNavigator) WaitFor(ctx context.Context, name string, timeout time.Duration, args ...string) error {
	f.calls = append(f.calls, "wait:"+name)
	if f.onWait != nil {
		return f.onWait(name)
	}
	return f.errs["wait:"+name]
}

func (f *fakeNavigator) ReadText(ctx context.Context, name string, args ...string) (string, error) {
	f.calls = append(f.calls, "read:"+name)
	if err := f.errs["read:"+name]; err != nil {
		return "", err
	}
	return f.texts[name], nil
}

func (f *fakeNavigator) SnapshotHTML(ctx context.Context) (string, error) { return f.html, nil }
func (f *fakeNavigator) Screenshot(ctx context.Context) ([]byte, error) { return f.png, nil }

func (f *fakeNavigator) count(call string) int {
	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}

var (
	_ Navigator = (*fakeNavigator)(nil)
	_ Capturer  = (*fakeNavigator)(nil)
)

// fakeSource hands the fake out as both Navigator and Capturer.
type fakeSource struct{ nav *fakeNavigator }

func (s fakeSource) Navigator() Navigator { return s.nav }
func (s fakeSource) Capturer() Capturer   { return s.nav }

func testSelectors() map[string]config.Locator {
	css := func(v string) config.Locator { return config.Locator{Strategy: "css", Value: v} }
	return map[string]config.Locator{
		"login.username_field": css("#email"),
		"login.password_field": css("#password"),
		"login.submit":         css("button[type=submit]"),
		"login.error_banner":   css(".login-error"),

		"portal.landmark": css("#dashboard"),

		"devices.menu":     css("#device-menu"),
		"devices.option":   css("[data-device-id='%s']"),
		"devices.selected": css("#device-name"),

		"status.current_temp":      css(".current-temp"),
		"status.target_temp":       css(".target-temp"),
		"status.mode":              css(".mode-label"),
		"status.heating_indicator": css(".equipment-status"),

		"mode_menu.open":            css("#mode-menu"),
		"mode_menu.option_heat":     css("[data-mode=heat]"),
		"mode_menu.option_aux_heat": css("[data-mode=aux]"),
		"mode_menu.option_cool":     css("[data-mode=cool]"),
		"mode_menu.option_auto":     css("[data-mode=auto]"),
		"mode_menu.option_off":      css("[data-mode=off]"),
		"mode_menu.confirm":         css("#save-mode"),

		"temp.up":      css("#temp-up"),
		"temp.down":    css("#temp-down"),
		"temp.confirm": css("#save-temp"),
	}
}
