//go:build linux

package keyboard

import (
	"encoding/binary"
	"fmt"
	"os"
	"time"
	"unicode"

	"golang.org/x/sys/unix"
)

// Linux uinput ioctl numbers, computed from the kernel's _IOW/_IO macros
// (UINPUT_IOCTL_BASE = 'U' = 0x55):
//
//	UI_SET_EVBIT  = _IOW('U', 100, int) = 0x40045564
//	UI_SET_KEYBIT = _IOW('U', 101, int) = 0x40045565
//	UI_DEV_CREATE = _IO('U', 1)         = 0x5501
//	UI_DEV_DESTROY = _IO('U', 2)        = 0x5502
const (
	uiSetEvBit   = 0x40045564
	uiSetKeyBit  = 0x40045565
	uiDevCreate  = 0x5501
	uiDevDestroy = 0x5502

	evSyn = 0x00
	evKey = 0x01
	synReport = 0
)

// Linux evdev keycodes (input-event-codes.h) for the subset this module
// injects. Letters map to KEY_A.. in alphabetical order starting at 30 (A),
// handled separately below.
const (
	keyLeftShift = 42
	keyEnter     = 28
	keyTab       = 15
	keySpace     = 57
	keyBackspace = 14
)

var digitKeys = map[rune]uint16{
	'1': 2, '2': 3, '3': 4, '4': 5, '5': 6,
	'6': 7, '7': 8, '8': 9, '9': 10, '0': 11,
}

// shiftedSymbols maps a shifted-digit-row symbol to its base digit key, US
// layout.
var shiftedSymbols = map[rune]uint16{
	'!': 2, '@': 3, '#': 4, '$': 5, '%': 6,
	'^': 7, '&': 8, '*': 9, '(': 10, ')': 11,
}

var punctuationKeys = map[rune]uint16{
	'-': 12, '=': 13, '[': 26, ']': 27, '\\': 43,
	';': 39, '\'': 40, '`': 41, ',': 51, '.': 52, '/': 53,
}

var shiftedPunctuation = map[rune]uint16{
	'_': 12, '+': 13, '{': 26, '}': 27, '|': 43,
	':': 39, '"': 40, '~': 41, '<': 51, '>': 52, '?': 53,
}

// uinputInjector types characters by driving a virtual /dev/uinput keyboard
// device. It is opened lazily on first use and kept open for the lifetime
// of the process.
type uinputInjector struct {
	f *os.File
}

// NewPlatformInjector returns a CharInjector backed by a virtual uinput
// keyboard device. Requires read-write access to /dev/uinput (typically
// membership in the "input" group, or root).
func NewPlatformInjector() CharInjector {
	return &uinputInjector{}
}

func (u *uinputInjector) ensureOpen() error {
	if u.f != nil {
		return nil
	}
	f, err := os.OpenFile("/dev/uinput", os.O_WRONLY|os.O_NONBLOCK, 0)
	if err != nil {
		return fmt.Errorf("open /dev/uinput: %w", err)
	}

	if err := ioctlSetInt(f, uiSetEvBit, evKey); err != nil {
		f.Close()
		return fmt.Errorf("UI_SET_EVBIT: %w", err)
	}
	for code := uint16(1); code < 248; code++ {
		if err := ioctlSetInt(f, uiSetKeyBit, int(code)); err != nil {
			f.Close()
			return fmt.Errorf("UI_SET_KEYBIT(%d): %w", code, err)
		}
	}

	if err := writeUinputUserDev(f, "holdtalk-virtual-keyboard"); err != nil {
		f.Close()
		return err
	}

	if err := ioctlNoArg(f, uiDevCreate); err != nil {
		f.Close()
		return fmt.Errorf("UI_DEV_CREATE: %w", err)
	}
	// Give the kernel time to register the new input device before the
	// first event is delivered.
	time.Sleep(50 * time.Millisecond)

	u.f = f
	return nil
}

// InjectChar sends a key-down/key-up pair (with a shift modifier if needed)
// for r.
func (u *uinputInjector) InjectChar(r rune) error {
	if err := u.ensureOpen(); err != nil {
		return err
	}

	code, shifted, ok := lookupKeycode(r)
	if !ok {
		return fmt.Errorf("no keycode mapping for %q", r)
	}

	if shifted {
		if err := u.sendKey(keyLeftShift, 1); err != nil {
			return err
		}
	}
	if err := u.sendKey(code, 1); err != nil {
		return err
	}
	if err := u.sendKey(code, 0); err != nil {
		return err
	}
	if shifted {
		if err := u.sendKey(keyLeftShift, 0); err != nil {
			return err
		}
	}
	return u.sync()
}

func (u *uinputInjector) sendKey(code uint16, value int32) error {
	return writeInputEvent(u.f, evKey, code, value)
}

func (u *uinputInjector) sync() error {
	return writeInputEvent(u.f, evSyn, synReport, 0)
}

// Close tears down the virtual uinput device. Safe to call on an injector
// that was never used.
func (u *uinputInjector) Close() error {
	if u.f == nil {
		return nil
	}
	_ = ioctlNoArg(u.f, uiDevDestroy)
	err := u.f.Close()
	u.f = nil
	return err
}

func lookupKeycode(r rune) (code uint16, shifted bool, ok bool) {
	switch {
	case r == ' ':
		return keySpace, false, true
	case r == '\n':
		return keyEnter, false, true
	case r == '\t':
		return keyTab, false, true
	case r >= 'a' && r <= 'z':
		return uint16(30 + (r - 'a')), false, true
	case r >= 'A' && r <= 'Z':
		return uint16(30 + (unicode.ToLower(r) - 'a')), true, true
	}
	if code, ok := digitKeys[r]; ok {
		return code, false, true
	}
	if code, ok := shiftedSymbols[r]; ok {
		return code, true, true
	}
	if code, ok := punctuationKeys[r]; ok {
		return code, false, true
	}
	if code, ok := shiftedPunctuation[r]; ok {
		return code, true, true
	}
	return 0, false, false
}

func ioctlSetInt(f *os.File, req uint, val int) error {
	return unix.IoctlSetInt(int(f.Fd()), req, val)
}

func ioctlNoArg(f *os.File, req uint) error {
	return unix.IoctlSetInt(int(f.Fd()), req, 0)
}

// writeUinputUserDev writes the struct uinput_user_dev header the kernel
// expects before UI_DEV_CREATE: an 80-byte name field followed by the
// input_id and absolute-axis tables, all zeroed except the name.
func writeUinputUserDev(f *os.File, name string) error {
	const nameSize = 80
	// name[80] + input_id{bustype,vendor,product,version uint16 each = 8
	// bytes} + ff_effects_max uint32 (4) + 4 * absmax/absmin/absfuzz/absflat
	// int32[64] (4*4*64 = 1024 bytes).
	buf := make([]byte, nameSize+8+4+1024)
	copy(buf, name)
	_, err := f.Write(buf)
	return err
}

// writeInputEvent writes one struct input_event: a 16-byte (zeroed) struct
// timeval, followed by type/code (uint16) and value (int32).
func writeInputEvent(f *os.File, evType, code uint16, value int32) error {
	buf := make([]byte, 16+2+2+4)
	binary.LittleEndian.PutUint16(buf[16:], evType)
	binary.LittleEndian.PutUint16(buf[18:], code)
	binary.LittleEndian.PutUint32(buf[20:], uint32(value))
	_, err := f.Write(buf)
	return err
}
