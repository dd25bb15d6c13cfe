// SafeLink Sentinel - IoT Telemetry Safety and Security Core
// Copyright 2026 SafeLink contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/safelink/sentinel

package classify

// VendorInfo is one entry of the vendor-prefix (OUI) table.
type VendorInfo struct {
	Vendor     string     `koanf:"vendor" json:"vendor"`
	DeviceType DeviceType `koanf:"device_type" json:"device_type"`
}

// DefaultVendorPrefixes returns the built-in OUI table. Keys are the first
// three MAC octets, normalized to upper-case colon form.
func DefaultVendorPrefixes() map[string]VendorInfo {
	return map[string]VendorInfo{
		"00:1A:2B": {Vendor: "Cisco", DeviceType: DeviceRouter},
		"50:C7:BF": {Vendor: "TP-Link", DeviceType: DeviceRouter},
		"00:50:56": {Vendor: "VMware", DeviceType: DeviceVirtualMachine},
		"00:0C:29": {Vendor: "VMware", DeviceType: DeviceVirtualMachine},
		"00:1C:42": {Vendor: "Parallels", DeviceType: DeviceVirtualMachine},
		"00:15:5D": {Vendor: "Microsoft Hyper-V", DeviceType: DeviceVirtualMachine},
		"00:03:FF": {Vendor: "Microsoft", DeviceType: DeviceComputer},
		"B8:27:EB": {Vendor: "Raspberry Pi", DeviceType: DeviceIoT},
		"DC:A6:32": {Vendor: "Raspberry Pi", DeviceType: DeviceIoT},
		"18:FE:34": {Vendor: "Espressif", DeviceType: DeviceIoT},
		"24:0A:C4": {Vendor: "Espressif", DeviceType: DeviceIoT},
		"5C:CF:7F": {Vendor: "Espressif", DeviceType: DeviceIoT},
		"AC:67:B2": {Vendor: "Espressif", DeviceType: DeviceIoT},
		"00:1E:C0": {Vendor: "Microchip", DeviceType: DeviceIoT},
		"F4:F5:D8": {Vendor: "Google", DeviceType: DeviceSmartSpeaker},
		"44:07:0B": {Vendor: "Google", DeviceType: DeviceSmartDevice},
		"68:A4:0E": {Vendor: "Amazon", DeviceType: DeviceSmartSpeaker},
		"FC:65:DE": {Vendor: "Amazon", DeviceType: DeviceSmartDevice},
		"00:17:88": {Vendor: "Philips Hue", DeviceType: DeviceSmartLight},
		"B0:BE:76": {Vendor: "TP-Link", DeviceType: DeviceSmartPlug},
		"14:CC:20": {Vendor: "TP-Link", DeviceType: DeviceSmartDevice},
		"78:8A:20": {Vendor: "Ubiquiti", DeviceType: DeviceNetwork},
		"00:27:22": {Vendor: "Ubiquiti", DeviceType: DeviceNetwork},
	}
}

// DefaultHostnamePatterns returns the built-in hostname substring table.
// Matching is case-insensitive; the longest matching pattern wins.
func DefaultHostnamePatterns() map[string]DeviceType {
	return map[string]DeviceType{
		"android":     DeviceSmartphone,
		"iphone":      DeviceSmartphone,
		"ipad":        DeviceTablet,
		"macbook":     DeviceComputer,
		"windows":     DeviceComputer,
		"desktop":     DeviceComputer,
		"laptop":      DeviceComputer,
		"roku":        DeviceSmartTV,
		"chromecast":  DeviceSmartTV,
		"appletv":     DeviceSmartTV,
		"echo":        DeviceSmartSpeaker,
		"alexa":       DeviceSmartSpeaker,
		"google-home": DeviceSmartSpeaker,
		"nest":        DeviceThermostat,
		"hue":         DeviceSmartLight,
		"camera":      DeviceCamera,
		"cam":         DeviceCamera,
		"esp":         DeviceIoT,
		"arduino":     DeviceIoT,
		"raspberry":   DeviceIoT,
		"sensor":      DeviceIoT,
	}
}

// DefaultRiskLevels returns the risk posture per device type. Risk is
// policy-driven, not evidence-driven: a camera is HIGH regardless of how
// confidently it was identified. Types absent from the table default to
// MEDIUM.
func DefaultRiskLevels() map[DeviceType]RiskLevel {
	return map[DeviceType]RiskLevel{
		DeviceRouter:         RiskLow,
		DeviceComputer:       RiskLow,
		DeviceSmartphone:     RiskLow,
		DeviceTablet:         RiskLow,
		DeviceSmartLight:     RiskLow,
		DeviceNetwork:        RiskLow,
		DeviceSmartTV:        RiskMedium,
		DeviceSmartSpeaker:   RiskMedium,
		DeviceSmartPlug:      RiskMedium,
		DeviceSmartDevice:    RiskMedium,
		DeviceThermostat:     RiskMedium,
		DeviceVirtualMachine: RiskMedium,
		DeviceIoT:            RiskHigh,
		DeviceCamera:         RiskHigh,
		DeviceUnknown:        RiskMedium,
	}
}

// recommendationsFor derives advisory actions from device type and risk.
func recommendationsFor(deviceType DeviceType, risk RiskLevel) []string {
	var recs []string
	if risk.AtLeast(RiskHigh) {
		recs = append(recs,
			"Isolate this device on a dedicated IoT VLAN",
			"Monitor this device's network traffic",
		)
	}
	switch deviceType {
	case DeviceUnknown:
		recs = append(recs,
			"Identify this device manually",
			"Verify this device is authorized on the network",
		)
	case DeviceCamera:
		recs = append(recs,
			"Verify the firmware is up to date",
			"Disable cloud access if not needed",
			"Change default credentials",
		)
	case DeviceIoT:
		recs = append(recs,
			"Keep firmware updated",
			"Restrict outbound connections",
		)
	}
	return recs
}
