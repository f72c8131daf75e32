//go:build linux

package hotkey

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Linux evdev constants (input-event-codes.h / input.h) needed to find
// keyboard devices and decode key events.
const (
	evKey = 0x01

	keyA  = 30
	keyZ  = 44 // not used directly; A..Z span is checked via the bit array
	key1  = 2
	key0  = 11
	evBit = 0x21 // EV_KEY's index within the ioctl bit-array encoding below

	// EVIOCGBIT(EV_KEY, len) = _IOC(_IOC_READ, 'E', 0x20 + EV_KEY, len)
	iocRead   = 2
	ioctlType = 'E'
	iocNRBits = 8
	iocTypeBits = 8
	iocSizeBits = 14
	iocNRShift  = 0
	iocTypeShift = iocNRShift + iocNRBits
	iocSizeShift = iocTypeShift + iocTypeBits
	iocDirShift  = iocSizeShift + iocSizeBits
)

func eviocgbit(evType, length int) uint {
	return uint(iocRead)<<iocDirShift | uint(ioctlType)<<iocTypeShift |
		uint(0x20+evType)<<iocNRShift | uint(length)<<iocSizeShift
}

// platformKeyTranslator maps a parsed hotkey token to its evdev keycode.
// Mirrors the pynput-style name table used elsewhere in this domain.
func platformKeyTranslator(token string) (Code, bool) {
	if code, ok := evdevSpecialKeys[token]; ok {
		return Code(code), true
	}
	if len(token) == 1 {
		r := rune(token[0])
		switch {
		case r >= 'a' && r <= 'z':
			return Code(keyA + int(r-'a')), true
		case r == '0':
			return Code(key0), true
		case r >= '1' && r <= '9':
			return Code(key1 + int(r-'1')), true
		}
	}
	return 0, false
}

var evdevSpecialKeys = map[string]int{
	"<pause>": 119, "<break>": 119,
	"<esc>": 1, "<escape>": 1,
	"<tab>": 15, "<caps_lock>": 58, "<space>": 57,
	"<enter>": 28, "<return>": 28,
	"<backspace>": 14, "<delete>": 111, "<insert>": 110,
	"<home>": 102, "<end>": 107, "<page_up>": 104, "<page_down>": 109,
	"<up>": 103, "<down>": 108, "<left>": 105, "<right>": 106,
	"<shift>": 42, "<shift_l>": 42, "<shift_r>": 54,
	"<ctrl>": 29, "<ctrl_l>": 29, "<ctrl_r>": 97,
	"<alt>": 56, "<alt_l>": 56, "<alt_r>": 100, "<alt_gr>": 100,
	"<cmd>": 125, "<cmd_l>": 125, "<cmd_r>": 126,
	"<super>": 125, "<super_l>": 125, "<super_r>": 126,
	"<f1>": 59, "<f2>": 60, "<f3>": 61, "<f4>": 62, "<f5>": 63, "<f6>": 64,
	"<f7>": 65, "<f8>": 66, "<f9>": 67, "<f10>": 68, "<f11>": 87, "<f12>": 88,
	"<print_screen>": 99, "<scroll_lock>": 70, "<num_lock>": 69,
	"<media_play_pause>": 164, "<media_volume_mute>": 113,
	"<media_volume_down>": 114, "<media_volume_up>": 115,
	"<media_previous>": 165, "<media_next>": 163,
}

// evdevEventSource grabs every /dev/input/event* device that exposes letter
// keys and fans their key events into a single callback.
type evdevEventSource struct {
	mu      sync.Mutex
	files   []*os.File
	wg      sync.WaitGroup
	deliver func(code Code, isPress bool)
}

func newPlatformEventSource() eventSource {
	return &evdevEventSource{}
}

func (e *evdevEventSource) Open(deliver func(code Code, isPress bool)) error {
	paths, err := filepath.Glob("/dev/input/event*")
	if err != nil {
		return fmt.Errorf("hotkey: glob /dev/input: %w", err)
	}

	e.deliver = deliver
	var opened []*os.File
	for _, p := range paths {
		f, err := os.OpenFile(p, os.O_RDONLY, 0)
		if err != nil {
			continue // permission denied or race with device removal
		}
		if !hasLetterKeys(f) {
			f.Close()
			continue
		}
		opened = append(opened, f)
	}
	if len(opened) == 0 {
		return fmt.Errorf("hotkey: no keyboard devices found under /dev/input (need read access, typically the \"input\" group)")
	}

	e.mu.Lock()
	e.files = opened
	e.mu.Unlock()

	for _, f := range opened {
		e.wg.Add(1)
		go e.readLoop(f)
	}
	return nil
}

// hasLetterKeys queries the device's EV_KEY capability bitmap via
// EVIOCGBIT and checks whether KEY_A's bit is set, the same heuristic used
// to distinguish real keyboards from other input devices (mice, switches).
func hasLetterKeys(f *os.File) bool {
	const bitsetLen = (0x300 + 7) / 8 // enough bytes to cover evdev key range
	bitset := make([]byte, bitsetLen)
	req := eviocgbit(evKey, bitsetLen)
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), uintptr(req), uintptr(unsafe.Pointer(&bitset[0])))
	if errno != 0 {
		return false
	}
	byteIdx := keyA / 8
	bitIdx := uint(keyA % 8)
	if byteIdx >= len(bitset) {
		return false
	}
	return bitset[byteIdx]&(1<<bitIdx) != 0
}

func (e *evdevEventSource) readLoop(f *os.File) {
	defer e.wg.Done()
	buf := make([]byte, 24)
	for {
		n, err := f.Read(buf)
		if err != nil || n != len(buf) {
			return // device closed (Stop) or removed
		}
		evType := binary.LittleEndian.Uint16(buf[16:18])
		code := binary.LittleEndian.Uint16(buf[18:20])
		value := int32(binary.LittleEndian.Uint32(buf[20:24]))
		if evType != evKey {
			continue
		}
		switch value {
		case 1:
			e.deliver(Code(code), true)
		case 0:
			e.deliver(Code(code), false)
		// value == 2 is key-repeat; ignored.
		}
	}
}

func (e *evdevEventSource) Close() error {
	e.mu.Lock()
	files := e.files
	e.files = nil
	e.mu.Unlock()

	var firstErr error
	for _, f := range files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	e.wg.Wait()
	return firstErr
}
