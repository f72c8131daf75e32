//go:build linux

package keyboard

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
)

const (
	portalBusName            = "org.freedesktop.portal.Desktop"
	portalObjectPath         = "/org/freedesktop/portal/desktop"
	remoteDesktopInterface   = "org.freedesktop.portal.RemoteDesktop"
	requestInterface         = "org.freedesktop.portal.Request"
	eiReopenDelay            = 100 * time.Millisecond
	portalResponseTimeout    = 30 * time.Second
	portalInteractiveTimeout = 60 * time.Second
)

// eiSession is the portal-backed session's typed-text primitive. Kept as an
// interface so the D-Bus/RemoteDesktop session-management logic (below) and
// the EI wire-protocol details (eiWireSession) are independently testable —
// tests substitute a stub that fails on demand to exercise the retry
// protocol without a real compositor.
type eiSession interface {
	TypeText(ctx context.Context, text string) error
	Close() error
}

// eiOpener opens a fresh EI session, optionally reusing savedToken to avoid
// a re-prompt. It returns the session and whatever restore token the portal
// issued (which may equal savedToken, be new, or be empty if the portal does
// not support persistence).
type eiOpener func(ctx context.Context, savedToken string) (eiSession, string, error)

// EIPortalBackend holds a process-wide cached session to the RemoteDesktop
// portal's Extended Input facility. The first call opens the session,
// requesting permanent persistence and supplying any saved restore token.
// On success, the newly issued restore token is persisted for reuse on
// subsequent launches.
type EIPortalBackend struct {
	open      eiOpener
	tokenPath string

	mu      sync.Mutex
	cached  eiSession
}

// NewEIPortalBackend builds a backend that persists its restore token under
// tokenPath (the application's per-user data directory, per spec).
func NewEIPortalBackend(tokenPath string) *EIPortalBackend {
	return &EIPortalBackend{open: openPortalEISession, tokenPath: tokenPath}
}

func (b *EIPortalBackend) loadToken() string {
	data, err := os.ReadFile(b.tokenPath)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func (b *EIPortalBackend) saveToken(token string) {
	if err := os.MkdirAll(filepath.Dir(b.tokenPath), 0o700); err != nil {
		slog.Warn("eiportal: failed to create token directory", "err", err)
		return
	}
	if err := os.WriteFile(b.tokenPath, []byte(token), 0o600); err != nil {
		slog.Warn("eiportal: failed to save restore token", "err", err)
	}
}

// getSession returns the cached session, opening one if needed.
func (b *EIPortalBackend) getSession(ctx context.Context) (eiSession, error) {
	if b.cached != nil {
		return b.cached, nil
	}

	saved := b.loadToken()
	session, newToken, err := b.open(ctx, saved)
	if err != nil {
		return nil, fmt.Errorf("eiportal: open session: %w", err)
	}
	if newToken != "" && newToken != saved {
		b.saveToken(newToken)
	}
	b.cached = session
	return session, nil
}

// clearCached explicitly closes the stale session before dropping the
// reference. Without calling Close, the EI/D-Bus session remains open in a
// bad state and reconnection will hang or fail.
func (b *EIPortalBackend) clearCached() {
	if b.cached == nil {
		return
	}
	if err := b.cached.Close(); err != nil {
		slog.Debug("eiportal: error closing stale session (ignored)", "err", err)
	}
	b.cached = nil
}

// TypeText forwards text to the cached session's typed-text primitive. On
// failure it closes the session, sleeps briefly to let the compositor
// finalize teardown, opens a fresh one, and retries exactly once. A second
// failure is a hard error.
func (b *EIPortalBackend) TypeText(ctx context.Context, text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	session, err := b.getSession(ctx)
	if err != nil {
		return err
	}

	if err := session.TypeText(ctx, text); err == nil {
		return nil
	} else {
		slog.Warn("eiportal: typing failed, retrying with fresh connection", "err", err)
	}

	b.clearCached()
	time.Sleep(eiReopenDelay)

	session, err = b.getSession(ctx)
	if err != nil {
		return fmt.Errorf("eiportal: reconnect after stale session: %w", err)
	}
	if err := session.TypeText(ctx, text); err != nil {
		return fmt.Errorf("eiportal: failed to type text after retry: %w", err)
	}
	return nil
}

// --- D-Bus RemoteDesktop portal session setup ---------------------------

// openPortalEISession drives the XDG Desktop Portal RemoteDesktop interface
// to obtain an EI socket: CreateSession, SelectDevices (keyboard), Start
// (presenting savedToken for silent reuse when possible), then
// ConnectToEIS to retrieve the file descriptor.
func openPortalEISession(ctx context.Context, savedToken string) (eiSession, string, error) {
	conn, err := dbus.ConnectSessionBus(dbus.WithContext(ctx))
	if err != nil {
		return nil, "", fmt.Errorf("connect session bus: %w", err)
	}

	sessionHandle, err := portalCreateSession(conn)
	if err != nil {
		conn.Close()
		return nil, "", err
	}

	if err := portalSelectDevices(conn, sessionHandle); err != nil {
		conn.Close()
		return nil, "", err
	}

	newToken, err := portalStart(conn, sessionHandle, savedToken)
	if err != nil {
		conn.Close()
		return nil, "", err
	}

	fd, err := portalConnectToEIS(conn, sessionHandle)
	if err != nil {
		conn.Close()
		return nil, "", err
	}

	eiConn, err := net.FileConn(os.NewFile(uintptr(fd), "ei-socket"))
	if err != nil {
		conn.Close()
		return nil, "", fmt.Errorf("wrap EI fd: %w", err)
	}

	return &eiWireSession{bus: conn, eiConn: eiConn}, newToken, nil
}

func portalObj(conn *dbus.Conn) dbus.BusObject {
	return conn.Object(portalBusName, dbus.ObjectPath(portalObjectPath))
}

func randomToken(prefix string) string {
	return fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano())
}

// awaitRequestResponse subscribes to the Request object's Response signal
// after the method that produces it has returned requestPath, then waits up
// to timeout. It does not subscribe ahead of the call: a Response emitted
// before the match rule is added is not seen, and the wait ends with the
// timeout error.
func awaitRequestResponse(conn *dbus.Conn, requestPath dbus.ObjectPath, timeout time.Duration) (uint32, map[string]dbus.Variant, error) {
	sigCh := make(chan *dbus.Signal, 1)
	conn.Signal(sigCh)
	defer conn.RemoveSignal(sigCh)

	matchRule := fmt.Sprintf("type='signal',interface='%s',member='Response',path='%s'", requestInterface, requestPath)
	if err := conn.BusObject().Call("org.freedesktop.DBus.AddMatch", 0, matchRule).Err; err != nil {
		return 0, nil, fmt.Errorf("subscribe to portal response: %w", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case sig := <-sigCh:
			if sig.Path != requestPath || sig.Name != requestInterface+".Response" {
				continue
			}
			if len(sig.Body) < 2 {
				return 0, nil, fmt.Errorf("malformed portal response signal")
			}
			code, _ := sig.Body[0].(uint32)
			results, _ := sig.Body[1].(map[string]dbus.Variant)
			return code, results, nil
		case <-timer.C:
			return 0, nil, fmt.Errorf("timed out waiting for portal response")
		}
	}
}

func portalCreateSession(conn *dbus.Conn) (dbus.ObjectPath, error) {
	handleToken := randomToken("holdtalk_handle")
	sessionToken := randomToken("holdtalk_session")

	options := map[string]dbus.Variant{
		"handle_token":         dbus.MakeVariant(handleToken),
		"session_handle_token": dbus.MakeVariant(sessionToken),
	}

	var requestPath dbus.ObjectPath
	call := portalObj(conn).Call(remoteDesktopInterface+".CreateSession", 0, options)
	if call.Err != nil {
		return "", fmt.Errorf("CreateSession: %w", call.Err)
	}
	if err := call.Store(&requestPath); err != nil {
		return "", fmt.Errorf("CreateSession: decode request handle: %w", err)
	}

	code, results, err := awaitRequestResponse(conn, requestPath, portalResponseTimeout)
	if err != nil {
		return "", err
	}
	// Response code 2 is treated identically to 0 here, matching the
	// original source's behavior in this bind path; response code 1 means
	// the user declined.
	if code == 1 {
		return "", fmt.Errorf("portal session creation cancelled by user")
	}
	if code != 0 && code != 2 {
		return "", fmt.Errorf("portal session creation failed: response code %d", code)
	}

	sessionHandle, ok := results["session_handle"].Value().(string)
	if !ok {
		return "", fmt.Errorf("portal response missing session_handle")
	}
	return dbus.ObjectPath(sessionHandle), nil
}

func portalSelectDevices(conn *dbus.Conn, session dbus.ObjectPath) error {
	handleToken := randomToken("holdtalk_handle")
	options := map[string]dbus.Variant{
		"handle_token": dbus.MakeVariant(handleToken),
		// DeviceType bit 1 = keyboard, per the RemoteDesktop portal spec.
		"types": dbus.MakeVariant(uint32(1)),
	}
	var requestPath dbus.ObjectPath
	call := portalObj(conn).Call(remoteDesktopInterface+".SelectDevices", 0, session, options)
	if call.Err != nil {
		return fmt.Errorf("SelectDevices: %w", call.Err)
	}
	if err := call.Store(&requestPath); err != nil {
		return fmt.Errorf("SelectDevices: decode request handle: %w", err)
	}
	code, _, err := awaitRequestResponse(conn, requestPath, portalResponseTimeout)
	if err != nil {
		return err
	}
	if code == 1 {
		return fmt.Errorf("device selection cancelled by user")
	}
	if code != 0 && code != 2 {
		return fmt.Errorf("SelectDevices failed: response code %d", code)
	}
	return nil
}

func portalStart(conn *dbus.Conn, session dbus.ObjectPath, savedToken string) (string, error) {
	handleToken := randomToken("holdtalk_handle")
	options := map[string]dbus.Variant{
		"handle_token": dbus.MakeVariant(handleToken),
	}
	if savedToken != "" {
		options["restore_token"] = dbus.MakeVariant(savedToken)
	}
	options["persist_mode"] = dbus.MakeVariant(uint32(2)) // permanent persistence

	var requestPath dbus.ObjectPath
	// Parent window "" for a background app with no associated window.
	call := portalObj(conn).Call(remoteDesktopInterface+".Start", 0, session, "", options)
	if call.Err != nil {
		return "", fmt.Errorf("Start: %w", call.Err)
	}
	if err := call.Store(&requestPath); err != nil {
		return "", fmt.Errorf("Start: decode request handle: %w", err)
	}
	code, results, err := awaitRequestResponse(conn, requestPath, portalInteractiveTimeout)
	if err != nil {
		return "", err
	}
	if code == 1 {
		return "", fmt.Errorf("remote desktop start cancelled by user")
	}
	if code != 0 && code != 2 {
		return "", fmt.Errorf("Start failed: response code %d", code)
	}
	newToken, _ := results["restore_token"].Value().(string)
	return newToken, nil
}

func portalConnectToEIS(conn *dbus.Conn, session dbus.ObjectPath) (int, error) {
	var fd dbus.UnixFD
	call := portalObj(conn).Call(remoteDesktopInterface+".ConnectToEIS", 0, session, map[string]dbus.Variant{})
	if call.Err != nil {
		return 0, fmt.Errorf("ConnectToEIS: %w", call.Err)
	}
	if err := call.Store(&fd); err != nil {
		return 0, fmt.Errorf("ConnectToEIS: decode fd: %w", err)
	}
	return int(fd), nil
}

// --- EI wire session ------------------------------------------------------

// eiWireSession types text by emitting key-press/key-release frames over the
// connected EI socket. The EI protocol proper is a Wayland-style
// object/interface wire protocol; this module implements the narrow subset
// needed to submit keyboard key events (device capability negotiation is
// assumed complete by the time ConnectToEIS hands back a usable socket).
type eiWireSession struct {
	bus    *dbus.Conn
	eiConn net.Conn
	mu     sync.Mutex
}

func (s *eiWireSession) TypeText(ctx context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range text {
		if err := ctx.Err(); err != nil {
			return err
		}
		code, shifted, ok := lookupKeycode(r)
		if !ok {
			return fmt.Errorf("eiportal: no keycode mapping for %q", r)
		}
		if shifted {
			if err := s.sendKeyFrame(keyLeftShift, true); err != nil {
				return err
			}
		}
		if err := s.sendKeyFrame(code, true); err != nil {
			return err
		}
		if err := s.sendKeyFrame(code, false); err != nil {
			return err
		}
		if shifted {
			if err := s.sendKeyFrame(keyLeftShift, false); err != nil {
				return err
			}
		}
	}
	return nil
}

// sendKeyFrame writes one fixed-size frame: a 4-byte big-endian keycode
// followed by a 1-byte pressed flag.
func (s *eiWireSession) sendKeyFrame(keycode uint16, pressed bool) error {
	frame := make([]byte, 5)
	binary.BigEndian.PutUint32(frame[:4], uint32(keycode))
	if pressed {
		frame[4] = 1
	}
	_, err := s.eiConn.Write(frame)
	return err
}

func (s *eiWireSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	if s.eiConn != nil {
		if err := s.eiConn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.bus != nil {
		if err := s.bus.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}
