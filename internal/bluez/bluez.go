// Package bluez queries the Linux BlueZ daemon over the system D-Bus. It is
// used to preflight the adapter before scanning, where the BLE stack itself
// only reports a generic failure.
package bluez

import (
	"errors"
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"
	"github.com/srg/witctl/internal/transport"
)

const (
	busName      = "org.bluez"
	rootPath     = "/org/bluez"
	adapterIface = "org.bluez.Adapter1"
	deviceIface  = "org.bluez.Device1"
	propsIface   = "org.freedesktop.DBus.Properties"

	// DefaultAdapter is the adapter used when none is configured.
	DefaultAdapter = "hci0"
)

// ErrNotRunning is returned when org.bluez is not on the system bus.
var ErrNotRunning = errors.New("org.bluez not found on system bus; is bluetooth.service running?")

// AdapterPath returns the object path of an adapter such as "hci0".
func AdapterPath(adapter string) dbus.ObjectPath {
	if adapter == "" {
		adapter = DefaultAdapter
	}
	return dbus.ObjectPath(rootPath + "/" + adapter)
}

// DevicePath converts "AA:BB:CC:DD:EE:FF" to "/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF".
func DevicePath(adapter, address string) dbus.ObjectPath {
	escaped := strings.ReplaceAll(strings.ToUpper(address), ":", "_")
	return dbus.ObjectPath(string(AdapterPath(adapter)) + "/dev_" + escaped)
}

// AddressFromPath extracts the MAC address from a device object path.
func AddressFromPath(adapter string, path dbus.ObjectPath) string {
	prefix := string(AdapterPath(adapter)) + "/dev_"
	s := string(path)
	if !strings.HasPrefix(s, prefix) {
		return ""
	}
	return strings.ReplaceAll(s[len(prefix):], "_", ":")
}

// Client wraps a system bus connection
type Client struct {
	conn    *dbus.Conn
	adapter string
	logger  *logrus.Logger
}

// Open connects to the system bus and checks that BlueZ is present.
func Open(adapter string, logger *logrus.Logger) (*Client, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if adapter == "" {
		adapter = DefaultAdapter
	}

	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect to system bus: %w", err)
	}

	var names []string
	if err := conn.BusObject().Call("org.freedesktop.DBus.ListNames", 0).Store(&names); err != nil {
		conn.Close()
		return nil, fmt.Errorf("list bus names: %w", err)
	}
	if !hasName(names, busName) {
		conn.Close()
		return nil, ErrNotRunning
	}
	return &Client{conn: conn, adapter: adapter, logger: logger}, nil
}

func hasName(names []string, want string) bool {
	for _, n := range names {
		if n == want {
			return true
		}
	}
	return false
}

// Close releases the bus connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) getProp(path dbus.ObjectPath, iface, prop string) (dbus.Variant, error) {
	var v dbus.Variant
	err := c.conn.Object(busName, path).Call(propsIface+".Get", 0, iface, prop).Store(&v)
	if err != nil {
		return v, fmt.Errorf("get %s.%s on %s: %w", iface, prop, path, err)
	}
	return v, nil
}

func (c *Client) getBool(path dbus.ObjectPath, iface, prop string) (bool, error) {
	v, err := c.getProp(path, iface, prop)
	if err != nil {
		return false, err
	}
	val, ok := v.Value().(bool)
	if !ok {
		return false, fmt.Errorf("property %s is not bool", prop)
	}
	return val, nil
}

func (c *Client) getString(path dbus.ObjectPath, iface, prop string) (string, error) {
	v, err := c.getProp(path, iface, prop)
	if err != nil {
		return "", err
	}
	val, ok := v.Value().(string)
	if !ok {
		return "", fmt.Errorf("property %s is not string", prop)
	}
	return val, nil
}

// Powered reports whether the adapter radio is on.
func (c *Client) Powered() (bool, error) {
	return c.getBool(AdapterPath(c.adapter), adapterIface, "Powered")
}

// SetPowered switches the adapter radio.
func (c *Client) SetPowered(on bool) error {
	path := AdapterPath(c.adapter)
	return c.conn.Object(busName, path).Call(propsIface+".Set", 0, adapterIface, "Powered", dbus.MakeVariant(on)).Err
}

// DeviceConnected reports whether BlueZ holds a link to address.
func (c *Client) DeviceConnected(address string) (bool, error) {
	return c.getBool(DevicePath(c.adapter, address), deviceIface, "Connected")
}

// Status describes the adapter as seen by BlueZ
type Status struct {
	Adapter string `json:"adapter" yaml:"adapter"`
	Address string `json:"address" yaml:"address"`
	Name    string `json:"name" yaml:"name"`
	Powered bool   `json:"powered" yaml:"powered"`
}

// Status reads the adapter address, alias and power state.
func (c *Client) Status() (Status, error) {
	path := AdapterPath(c.adapter)
	st := Status{Adapter: c.adapter}

	var err error
	if st.Powered, err = c.getBool(path, adapterIface, "Powered"); err != nil {
		return st, err
	}
	if st.Address, err = c.getString(path, adapterIface, "Address"); err != nil {
		c.logger.WithError(err).Debug("Adapter address unavailable")
	}
	if st.Name, err = c.getString(path, adapterIface, "Alias"); err != nil {
		c.logger.WithError(err).Debug("Adapter alias unavailable")
	}
	return st, nil
}

// Preflight checks that BlueZ runs and the adapter is powered. A powered-off
// adapter is reported as transport.ErrBluetoothOff.
func Preflight(adapter string, logger *logrus.Logger) (Status, error) {
	c, err := Open(adapter, logger)
	if err != nil {
		return Status{Adapter: adapter}, err
	}
	defer c.Close()

	st, err := c.Status()
	if err != nil {
		return st, err
	}
	c.logger.WithFields(logrus.Fields{
		"adapter": st.Adapter,
		"address": st.Address,
		"powered": st.Powered,
	}).Debug("BlueZ adapter status")

	if !st.Powered {
		return st, fmt.Errorf("%w: adapter %s is powered off", transport.ErrBluetoothOff, st.Adapter)
	}
	return st, nil
}
