package automation

import (
	"fmt"
	"sort"
	"strings"

	"ecobee_automation/internal/config"
)

// Symbolic element names the automation depends on. The portal UI is not
// under our control; when it changes, the selector configuration changes and
// this schema stays put. The list is closed: a SelectorMap missing any of
// these is rejected at startup.
var requiredSelectors = []string{
	"login.username_field",
	"login.password_field",
	"login.submit",
	"login.error_banner",

	"portal.landmark",

	"devices.menu",
	"devices.option",   // carries a %s for the portal device id
	"devices.selected", // indicator of the currently selected device

	"status.current_temp",
	"status.target_temp",
	"status.mode",
	"status.heating_indicator",

	"mode_menu.open",
	"mode_menu.option_heat",
	"mode_menu.option_aux_heat",
	"mode_menu.option_cool",
	"mode_menu.option_auto",
	"mode_menu.option_off",
	"mode_menu.confirm",

	"temp.up",
	"temp.down",
	"temp.confirm",
}

// SelectorMap resolves symbolic element names to locators. It is built once
// from configuration and never mutated afterwards.
type SelectorMap struct {
	locators map[string]config.Locator
}

// NewSelectorMap validates the configured locators against the required-name
// schema and returns an immutable map. Extra names are allowed (portals grow
// elements faster than code), missing ones are a configuration error.
func NewSelectorMap(locators map[string]config.Locator) (*SelectorMap, error) {
	var missing []string
	for _, name := range requiredSelectors {
		if _, ok := locators[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, newError(KindConfiguration, "load selectors",
			fmt.Errorf("missing selectors: %s", strings.Join(missing, ", ")))
	}

	copied := make(map[string]config.Locator, len(locators))
	for k, v := range locators {
		copied[k] = v
	}
	return &SelectorMap{locators: copied}, nil
}

// Resolve returns the locator for a symbolic name, substituting args into a
// parametrized locator value (e.g. a device id into devices.option).
func (m *SelectorMap) Resolve(name string, args ...string) (config.Locator, error) {
	loc, ok := m.locators[name]
	if !ok {
		return config.Locator{}, newError(KindConfiguration, "resolve selector",
			fmt.Errorf("unknown selector name %q", name))
	}
	if len(args) > 0 {
		ifaceArgs := make([]any, len(args))
		for i, a := range args {
			ifaceArgs[i] = a
		}
		loc.Value = fmt.Sprintf(loc.Value, ifaceArgs...)
	}
	return loc, nil
}

// ModeOptionSelector names the mode menu entry for a target mode.
func ModeOptionSelector(mode string) string {
	return "mode_menu.option_" + mode
}
