// Package x11 provides the foreground-context collaborator on X11 desktops,
// answering app-name/window-title queries via EWMH with ICCCM fallbacks.
package x11

import (
	"fmt"
	"sync"

	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/icccm"
	"go.uber.org/zap"

	"keyflow/internal/event"
)

// Provider implements capture.ContextProvider against an X server.
type Provider struct {
	mu  sync.Mutex // xgbutil connections are not goroutine-safe
	X   *xgbutil.XUtil
	log *zap.Logger
}

func NewProvider(log *zap.Logger) (*Provider, error) {
	X, err := xgbutil.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}

	// EWMH is needed for _NET_ACTIVE_WINDOW and _NET_WM_NAME; warn but keep
	// going, the ICCCM fallbacks may still work.
	if _, err := ewmh.CurrentDesktopGet(X); err != nil {
		log.Warn("EWMH possibly unsupported by window manager", zap.Error(err))
	}

	return &Provider{X: X, log: log}, nil
}

// Current returns the foreground application and window title.
func (p *Provider) Current() (event.FocusInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	activeWinID, err := ewmh.ActiveWindowGet(p.X)
	if err != nil {
		return event.FocusInfo{}, fmt.Errorf("could not get active window ID: %w", err)
	}
	if activeWinID == 0 {
		return event.FocusInfo{}, nil
	}

	// Window title: _NET_WM_NAME preferred, WM_NAME fallback.
	title, err := ewmh.WmNameGet(p.X, activeWinID)
	if err != nil || title == "" {
		title, _ = icccm.WmNameGet(p.X, activeWinID)
	}

	// Application name from WM_CLASS.
	appName := ""
	if classHints, err := icccm.WmClassGet(p.X, activeWinID); err == nil && classHints != nil {
		appName = classHints.Class
	}

	return event.FocusInfo{AppName: appName, Title: title}, nil
}
