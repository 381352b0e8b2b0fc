package automation

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// Navigator executes symbolic UI actions against the controlled page. It is
// pure orchestration: no mode or login knowledge lives here, so portal UI
// changes are absorbed by the selector configuration, not by code. Every
// action is bounded; nothing blocks past its timeout.
type Navigator interface {
	Open(ctx context.Context, url string) error
	Click(ctx context.Context, name string, args ...string) error
	SetValue(ctx context.Context, name, value string, args ...string) error
	WaitFor(ctx context.Context, name string, timeout time.Duration, args ...string) error
	ReadText(ctx context.Context, name string, args ...string) (string, error)
}

// rodNavigator drives a live rod page. The page itself is owned by the
// SessionManager; the navigator only borrows it.
type rodNavigator struct {
	page       *rod.Page
	selectors  *SelectorMap
	navTimeout time.Duration
}

func newRodNavigator(page *rod.Page, selectors *SelectorMap, navTimeout time.Duration) *rodNavigator {
	return &rodNavigator{page: page, selectors: selectors, navTimeout: navTimeout}
}

var _ Navigator = (*rodNavigator)(nil)

func (n *rodNavigator) Open(ctx context.Context, url string) error {
	page := n.page.Context(ctx).Timeout(n.navTimeout)
	if err := page.Navigate(url); err != nil {
		return newError(KindNavigationTimeout, "open "+url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return newError(KindNavigationTimeout, "load "+url, err)
	}
	return nil
}

func (n *rodNavigator) Click(ctx context.Context, name string, args ...string) error {
	el, err := n.element(ctx, name, n.navTimeout, args...)
	if err != nil {
		return err
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return newError(KindElementNotFound, "click "+name, err)
	}
	return nil
}

func (n *rodNavigator) SetValue(ctx context.Context, name, value string, args ...string) error {
	el, err := n.element(ctx, name, n.navTimeout, args...)
	if err != nil {
		return err
	}
	// Clear whatever the portal pre-filled before typing.
	if err := el.SelectAllText(); err != nil {
		return newError(KindElementNotFound, "clear "+name, err)
	}
	if err := el.Input(value); err != nil {
		return newError(KindElementNotFound, "fill "+name, err)
	}
	return nil
}

func (n *rodNavigator) WaitFor(ctx context.Context, name string, timeout time.Duration, args ...string) error {
	if _, err := n.element(ctx, name, timeout, args...); err != nil {
		return newError(KindNavigationTimeout, "wait for "+name, err)
	}
	return nil
}

func (n *rodNavigator) ReadText(ctx context.Context, name string, args ...string) (string, error) {
	el, err := n.element(ctx, name, n.navTimeout, args...)
	if err != nil {
		return "", err
	}
	text, err := el.Text()
	if err != nil {
		return "", newError(KindElementNotFound, "read "+name, err)
	}
	return text, nil
}

// element resolves a symbolic name and waits up to timeout for it to appear.
func (n *rodNavigator) element(ctx context.Context, name string, timeout time.Duration, args ...string) (*rod.Element, error) {
	loc, err := n.selectors.Resolve(name, args...)
	if err != nil {
		return nil, err
	}

	page := n.page.Context(ctx).Timeout(timeout)
	var el *rod.Element
	switch loc.Strategy {
	case "xpath":
		el, err = page.ElementX(loc.Value)
	default:
		el, err = page.Element(loc.Value)
	}
	if err != nil {
		return nil, newError(KindElementNotFound, "find "+name,
			fmt.Errorf("locator %s %q: %w", loc.Strategy, loc.Value, err))
	}
	return el, nil
}

// SnapshotHTML and Screenshot let the diagnostics collector capture evidence
// from the same page the failing operation ran against.
func (n *rodNavigator) SnapshotHTML(ctx context.Context) (string, error) {
	return n.page.Context(ctx).Timeout(n.navTimeout).HTML()
}

func (n *rodNavigator) Screenshot(ctx context.Context) ([]byte, error) {
	return n.page.Context(ctx).Timeout(n.navTimeout).Screenshot(false, nil)
}

var _ Capturer = (*rodNavigator)(nil)
