package transport

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/gousb"
)

// ProbeInfo describes a connected probe that matches a known VID/PID pair.
type ProbeInfo struct {
	VendorID     uint16
	ProductID    uint16
	SerialNumber string
	Manufacturer string
	Product      string
	Description  string
	Bus          int
	Address      int
}

// Label returns a user-friendly description for the probe.
func (p ProbeInfo) Label() string {
	name := strings.TrimSpace(p.Manufacturer + " " + p.Product)
	if name == "" {
		name = p.Description
	}
	if name == "" {
		name = fmt.Sprintf("Probe %04X:%04X", p.VendorID, p.ProductID)
	}
	if p.SerialNumber != "" {
		return fmt.Sprintf("%s [%s]", name, p.SerialNumber)
	}
	return name
}

type knownProbe struct {
	VendorID    uint16
	ProductID   uint16
	Description string
}

var knownProbes = []knownProbe{
	{VendorID: VendorIDOrbtrace, ProductID: ProductIDOrbtrace, Description: "Orbtrace CMSIS-DAP"},
	{VendorID: 0x046d, ProductID: 0x0892, Description: "Orbtrace (alternate ID)"},
}

func lookupKnownProbe(vid, pid uint16) (knownProbe, bool) {
	for _, k := range knownProbes {
		if k.VendorID == vid && k.ProductID == pid {
			return k, true
		}
	}
	return knownProbe{}, false
}

// ListProbes enumerates connected probes with a known VID/PID pair. A non-empty
// serial keeps only probes whose serial number contains it. Results are
// sorted by manufacturer, product, serial, VID and PID so the order is stable
// between scans.
func ListProbes(ctx context.Context, serial string) ([]ProbeInfo, error) {
	usb := gousb.NewContext()
	defer usb.Close()

	devs, err := usb.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}
		_, ok := lookupKnownProbe(uint16(desc.Vendor), uint16(desc.Product))
		return ok
	})
	defer func() {
		for _, d := range devs {
			d.Close()
		}
	}()
	if err != nil && !errors.Is(err, gousb.ErrorAccess) && len(devs) == 0 {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}

	probes := make([]ProbeInfo, 0, len(devs))
	for _, d := range devs {
		info := describeDevice(d)
		if serial != "" && !strings.Contains(info.SerialNumber, serial) {
			continue
		}
		probes = append(probes, info)
	}

	sort.SliceStable(probes, func(i, j int) bool {
		return probeLess(probes[i], probes[j])
	})

	return probes, ctx.Err()
}

func describeDevice(d *gousb.Device) ProbeInfo {
	serial, _ := d.SerialNumber()
	manufacturer, _ := d.Manufacturer()
	product, _ := d.Product()

	info := ProbeInfo{
		VendorID:     uint16(d.Desc.Vendor),
		ProductID:    uint16(d.Desc.Product),
		SerialNumber: serial,
		Manufacturer: manufacturer,
		Product:      product,
		Bus:          d.Desc.Bus,
		Address:      d.Desc.Address,
	}
	if k, ok := lookupKnownProbe(info.VendorID, info.ProductID); ok {
		info.Description = k.Description
	}
	return info
}

func probeLess(a, b ProbeInfo) bool {
	if a.Manufacturer != b.Manufacturer {
		return a.Manufacturer < b.Manufacturer
	}
	if a.Product != b.Product {
		return a.Product < b.Product
	}
	if a.SerialNumber != b.SerialNumber {
		return a.SerialNumber < b.SerialNumber
	}
	if a.VendorID != b.VendorID {
		return a.VendorID < b.VendorID
	}
	return a.ProductID < b.ProductID
}
