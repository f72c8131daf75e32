package hotkey

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
)

const (
	globalShortcutsInterface = "org.freedesktop.portal.GlobalShortcuts"

	// DefaultDebounce is how long a gap between a Deactivated and the next
	// Activated signal for the same shortcut is still treated as one
	// continuous press, rather than a release followed by a new press.
	// Portals sometimes emit a spurious Deactivated/Activated pair around
	// compositor-side repeat handling; without debouncing this would chop
	// one long hold into several recorded pipeline runs.
	DefaultDebounce = 200 * time.Millisecond
)

// portalKeyMap converts this module's hotkey tokens to XDG portal trigger
// syntax (e.g. "<ctrl>" -> "Control", "r" -> "R").
var portalKeyMap = map[string]string{
	"<pause>": "Pause", "<break>": "Pause",
	"<ctrl>": "Control", "<ctrl_l>": "Control", "<ctrl_r>": "Control",
	"<alt>": "Alt", "<alt_l>": "Alt", "<alt_r>": "Alt", "<alt_gr>": "Alt",
	"<shift>": "Shift", "<shift_l>": "Shift", "<shift_r>": "Shift",
	"<cmd>": "Super", "<cmd_l>": "Super", "<cmd_r>": "Super",
	"<super>": "Super", "<super_l>": "Super", "<super_r>": "Super",
	"<tab>": "Tab", "<space>": "space", "<enter>": "Return", "<return>": "Return",
	"<esc>": "Escape", "<escape>": "Escape",
	"<backspace>": "BackSpace", "<delete>": "Delete", "<insert>": "Insert",
	"<home>": "Home", "<end>": "End", "<page_up>": "Page_Up", "<page_down>": "Page_Down",
	"<up>": "Up", "<down>": "Down", "<left>": "Left", "<right>": "Right",
	"<f1>": "F1", "<f2>": "F2", "<f3>": "F3", "<f4>": "F4", "<f5>": "F5", "<f6>": "F6",
	"<f7>": "F7", "<f8>": "F8", "<f9>": "F9", "<f10>": "F10", "<f11>": "F11", "<f12>": "F12",
}

// convertHotkeyFormat turns this module's hotkey token list into an XDG
// portal trigger string, e.g. ["<ctrl>","<alt>","r"] -> "Control+Alt+R".
func convertHotkeyFormat(tokens []string) string {
	parts := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if mapped, ok := portalKeyMap[tok]; ok {
			parts = append(parts, mapped)
			continue
		}
		if strings.HasPrefix(tok, "<") && strings.HasSuffix(tok, ">") {
			parts = append(parts, capitalize(strings.Trim(tok, "<>")))
			continue
		}
		parts = append(parts, strings.ToUpper(tok))
	}
	return strings.Join(parts, "+")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

type pendingShortcut struct {
	id      string
	trigger string
}

// PortalListener drives the XDG Desktop Portal GlobalShortcuts interface.
// Works without elevated privileges on GNOME 48+, KDE Plasma, and
// Hyprland, at the cost of a one-time user confirmation dialog per bound
// shortcut set.
type PortalListener struct {
	Debounce time.Duration

	mu        sync.Mutex
	pending   []pendingShortcut
	idToName  map[string]string

	conn          *dbus.Conn
	sessionHandle dbus.ObjectPath
	onPress       PressCallback
	onRelease     ReleaseCallback

	pendingTimers map[string]*time.Timer
}

// NewPortalListener builds a PortalListener. onPress/onRelease fire with
// the name a hotkey was registered under.
func NewPortalListener(onPress PressCallback, onRelease ReleaseCallback) *PortalListener {
	return &PortalListener{
		Debounce:      DefaultDebounce,
		idToName:      make(map[string]string),
		pendingTimers: make(map[string]*time.Timer),
		onPress:       onPress,
		onRelease:     onRelease,
	}
}

func (p *PortalListener) AddHotkey(name, hotkeyStr string) error {
	tokens, err := ParseHotkey(hotkeyStr)
	if err != nil {
		return err
	}
	trigger := convertHotkeyFormat(tokens)

	p.mu.Lock()
	defer p.mu.Unlock()
	id := "holdtalk-" + name
	p.pending = append(p.pending, pendingShortcut{id: id, trigger: trigger})
	p.idToName[id] = name
	return nil
}

func (p *PortalListener) ClearHotkeys() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = nil
	p.idToName = make(map[string]string)
}

// Start connects to the session bus, creates a GlobalShortcuts session,
// binds every registered hotkey in one request (triggering the system
// confirmation dialog once), and subscribes to Activated/Deactivated.
func (p *PortalListener) Start() error {
	p.mu.Lock()
	pending := append([]pendingShortcut{}, p.pending...)
	p.mu.Unlock()

	if len(pending) == 0 {
		return fmt.Errorf("hotkey: no hotkeys registered before Start")
	}

	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return fmt.Errorf("hotkey: connect session bus: %w", err)
	}

	sessionHandle, err := portalCreateGlobalShortcutsSession(conn)
	if err != nil {
		conn.Close()
		return err
	}

	if err := portalBindShortcuts(conn, sessionHandle, pending); err != nil {
		conn.Close()
		return err
	}

	p.conn = conn
	p.sessionHandle = sessionHandle

	signals := make(chan *dbus.Signal, 16)
	conn.Signal(signals)
	matchRule := fmt.Sprintf("type='signal',interface='%s'", globalShortcutsInterface)
	if err := conn.BusObject().Call("org.freedesktop.DBus.AddMatch", 0, matchRule).Err; err != nil {
		conn.Close()
		return fmt.Errorf("hotkey: subscribe to shortcut signals: %w", err)
	}

	go p.dispatchSignals(signals)
	return nil
}

func (p *PortalListener) dispatchSignals(signals chan *dbus.Signal) {
	for sig := range signals {
		switch sig.Name {
		case globalShortcutsInterface + ".Activated":
			p.handleActivated(sig)
		case globalShortcutsInterface + ".Deactivated":
			p.handleDeactivated(sig)
		}
	}
}

func shortcutIDFromSignal(sig *dbus.Signal) (string, bool) {
	if len(sig.Body) < 2 {
		return "", false
	}
	id, ok := sig.Body[1].(string)
	return id, ok
}

func (p *PortalListener) handleActivated(sig *dbus.Signal) {
	id, ok := shortcutIDFromSignal(sig)
	if !ok {
		return
	}
	p.mu.Lock()
	name, known := p.idToName[id]
	if !known {
		p.mu.Unlock()
		return
	}
	if timer, pending := p.pendingTimers[id]; pending {
		// Deactivated->Activated within the debounce window: treat as a
		// continuation of the same press, not a new one.
		timer.Stop()
		delete(p.pendingTimers, id)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	if p.onPress != nil {
		p.onPress(name)
	}
}

func (p *PortalListener) handleDeactivated(sig *dbus.Signal) {
	id, ok := shortcutIDFromSignal(sig)
	if !ok {
		return
	}
	p.mu.Lock()
	name, known := p.idToName[id]
	if !known {
		p.mu.Unlock()
		return
	}
	debounce := p.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	timer := time.AfterFunc(debounce, func() {
		p.mu.Lock()
		delete(p.pendingTimers, id)
		p.mu.Unlock()
		if p.onRelease != nil {
			p.onRelease(name)
		}
	})
	p.pendingTimers[id] = timer
	p.mu.Unlock()
}

func (p *PortalListener) Stop() error {
	p.mu.Lock()
	for id, t := range p.pendingTimers {
		t.Stop()
		delete(p.pendingTimers, id)
	}
	conn := p.conn
	p.conn = nil
	p.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close()
}

// --- D-Bus plumbing --------------------------------------------------

func portalCreateGlobalShortcutsSession(conn *dbus.Conn) (dbus.ObjectPath, error) {
	handleToken := randomToken("holdtalk_handle")
	sessionToken := randomToken("holdtalk_session")
	options := map[string]dbus.Variant{
		"handle_token":         dbus.MakeVariant(handleToken),
		"session_handle_token": dbus.MakeVariant(sessionToken),
	}

	var requestPath dbus.ObjectPath
	call := portalObj(conn).Call(globalShortcutsInterface+".CreateSession", 0, options)
	if call.Err != nil {
		return "", fmt.Errorf("hotkey: GlobalShortcuts.CreateSession: %w", call.Err)
	}
	if err := call.Store(&requestPath); err != nil {
		return "", fmt.Errorf("hotkey: decode CreateSession request handle: %w", err)
	}

	code, results, err := awaitRequestResponse(conn, requestPath, portalResponseTimeout)
	if err != nil {
		return "", err
	}
	if code == 1 {
		return "", fmt.Errorf("hotkey: session creation cancelled by user")
	}
	if code != 0 && code != 2 {
		return "", fmt.Errorf("hotkey: CreateSession failed: response code %d", code)
	}
	sessionHandle, ok := results["session_handle"].Value().(string)
	if !ok {
		return "", fmt.Errorf("hotkey: CreateSession response missing session_handle")
	}
	return dbus.ObjectPath(sessionHandle), nil
}

func portalBindShortcuts(conn *dbus.Conn, session dbus.ObjectPath, pending []pendingShortcut) error {
	type shortcutEntry struct {
		ID   string
		Opts map[string]dbus.Variant
	}
	shortcuts := make([][]interface{}, 0, len(pending))
	for _, s := range pending {
		shortcuts = append(shortcuts, []interface{}{
			s.id,
			map[string]dbus.Variant{
				"description":       dbus.MakeVariant("Trigger a holdtalk pipeline"),
				"preferred_trigger": dbus.MakeVariant(s.trigger),
			},
		})
	}

	handleToken := randomToken("holdtalk_handle")
	options := map[string]dbus.Variant{"handle_token": dbus.MakeVariant(handleToken)}

	var requestPath dbus.ObjectPath
	call := portalObj(conn).Call(globalShortcutsInterface+".BindShortcuts", 0, session, shortcuts, "", options)
	if call.Err != nil {
		return fmt.Errorf("hotkey: BindShortcuts: %w", call.Err)
	}
	if err := call.Store(&requestPath); err != nil {
		return fmt.Errorf("hotkey: decode BindShortcuts request handle: %w", err)
	}

	code, _, err := awaitRequestResponse(conn, requestPath, portalInteractiveTimeout)
	if err != nil {
		return err
	}
	if code == 1 {
		return fmt.Errorf("hotkey: shortcut binding cancelled by user")
	}
	if code != 0 && code != 2 {
		return fmt.Errorf("hotkey: BindShortcuts failed: response code %d", code)
	}
	return nil
}
