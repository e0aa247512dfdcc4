package gpu

import "fmt"

// enumerate lists every platform and every device of each platform and
// captures their descriptors. Device indices follow discovery order.
func enumerate(backend Backend) ([]Platform, []Device, error) {
	handles, err := backend.Platforms()
	if err := check(ComponentEnumerator, "Platforms", err); err != nil {
		return nil, nil, err
	}
	if len(handles) == 0 {
		return nil, nil, configError(ComponentEnumerator, "Platforms", "no compute platform found")
	}

	var (
		platforms = make([]Platform, 0, len(handles))
		devices   []Device
	)
	for pi, ph := range handles {
		vendor, err := backend.PlatformVendor(ph)
		if err := check(ComponentEnumerator, "PlatformVendor", err); err != nil {
			return nil, nil, err
		}
		platform := Platform{Index: pi, Handle: ph, Vendor: vendor}

		deviceHandles, err := backend.Devices(ph)
		if err := check(ComponentEnumerator, "Devices", err); err != nil {
			return nil, nil, err
		}
		for _, dh := range deviceHandles {
			dev, err := backend.DeviceInfo(dh)
			if err := check(ComponentEnumerator, fmt.Sprintf("DeviceInfo(%d)", len(devices)), err); err != nil {
				return nil, nil, err
			}
			dev.Index = len(devices)
			dev.Platform = pi
			dev.Handle = dh
			platform.Devices = append(platform.Devices, dev.Index)
			devices = append(devices, dev)
		}
		platforms = append(platforms, platform)
	}

	if len(devices) == 0 {
		return nil, nil, configError(ComponentEnumerator, "Devices", "no compute device found")
	}
	return platforms, devices, nil
}

// Platforms returns the discovered platforms.
func (m *Manager) Platforms() []Platform {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Platform(nil), m.platforms...)
}

// Devices returns the discovered device descriptors.
func (m *Manager) Devices() []Device {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Device(nil), m.devices...)
}
