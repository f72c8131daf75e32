package hotkey

import (
	"fmt"
	"time"

	"github.com/godbus/dbus/v5"
)

const (
	portalBusName    = "org.freedesktop.portal.Desktop"
	portalObjectPath = "/org/freedesktop/portal/desktop"
	requestInterface = "org.freedesktop.portal.Request"

	portalResponseTimeout    = 30 * time.Second
	portalInteractiveTimeout = 60 * time.Second
)

func portalObj(conn *dbus.Conn) dbus.BusObject {
	return conn.Object(portalBusName, dbus.ObjectPath(portalObjectPath))
}

func randomToken(prefix string) string {
	return fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano())
}

// awaitRequestResponse blocks until the portal Request object at
// requestPath emits its Response signal, or timeout elapses.
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
