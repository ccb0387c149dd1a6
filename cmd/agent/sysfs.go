package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// batterySysfs reads one battery from the Linux power-supply class.
type batterySysfs struct {
	root string // e.g. /sys/class/power_supply/BAT0
}

// reading is one poll of the battery's sysfs attributes. Power is nil when
// the kernel driver exposes neither power_now nor voltage/current pairs.
type reading struct {
	CapacityPct float64
	PowerW      *float64
	Status      string // Charging, Discharging, Full, Unknown
}

func newBatterySysfs(name string) (*batterySysfs, error) {
	root := filepath.Join("/sys/class/power_supply", name)
	if _, err := os.Stat(filepath.Join(root, "capacity")); err != nil {
		return nil, fmt.Errorf("battery %s not readable: %w", name, err)
	}
	return &batterySysfs{root: root}, nil
}

func (b *batterySysfs) read() (reading, error) {
	capacity, err := b.readFloat("capacity")
	if err != nil {
		return reading{}, fmt.Errorf("read capacity: %w", err)
	}

	r := reading{CapacityPct: capacity, Status: b.readString("status")}

	// power_now is µW; fall back to voltage_now (µV) * current_now (µA).
	if uw, err := b.readFloat("power_now"); err == nil && uw > 0 {
		w := uw / 1e6
		r.PowerW = &w
	} else if uv, err := b.readFloat("voltage_now"); err == nil {
		if ua, err := b.readFloat("current_now"); err == nil && uv > 0 && ua > 0 {
			w := uv / 1e6 * ua / 1e6
			r.PowerW = &w
		}
	}

	return r, nil
}

func (b *batterySysfs) readFloat(attr string) (float64, error) {
	data, err := os.ReadFile(filepath.Join(b.root, attr))
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
}

func (b *batterySysfs) readString(attr string) string {
	data, err := os.ReadFile(filepath.Join(b.root, attr))
	if err != nil {
		return "Unknown"
	}
	return strings.TrimSpace(string(data))
}
