package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/gousb"
	"go.uber.org/zap"

	"nia-backend/internal/models"
)

// USBTransport reads bulk packets from the NIA over libusb. The interface
// is claimed on open and released by Close.
type USBTransport struct {
	desc    models.DeviceDescriptor
	timeout time.Duration
	logger  *zap.SugaredLogger

	usb  *gousb.Context
	dev  *gousb.Device
	cfg  *gousb.Config
	intf *gousb.Interface
	in   *gousb.InEndpoint

	closeOnce sync.Once
}

// OpenUSB finds the headset by vendor/product id, claims its interface and
// opens the bulk IN endpoint. Permission failures wrap ErrAccessDenied.
func OpenUSB(desc models.DeviceDescriptor, timeout time.Duration, logger *zap.SugaredLogger) (*USBTransport, error) {
	t := &USBTransport{desc: desc, timeout: timeout, logger: logger, usb: gousb.NewContext()}

	dev, err := t.usb.OpenDeviceWithVIDPID(gousb.ID(desc.VendorID), gousb.ID(desc.ProductID))
	if err != nil {
		t.Close()
		return nil, classifyUSBError(fmt.Sprintf("open device %04x:%04x", desc.VendorID, desc.ProductID), err)
	}
	if dev == nil {
		t.Close()
		return nil, fmt.Errorf("device %04x:%04x not found, is the cable plugged in?", desc.VendorID, desc.ProductID)
	}
	t.dev = dev

	if err := dev.SetAutoDetach(true); err != nil {
		logger.Warnf("USBTransport: auto-detach unavailable: %v", err)
	}

	cfgNum, err := dev.ActiveConfigNum()
	if err != nil {
		t.Close()
		return nil, classifyUSBError("read active configuration", err)
	}
	if t.cfg, err = dev.Config(cfgNum); err != nil {
		t.Close()
		return nil, classifyUSBError("set configuration", err)
	}
	if t.intf, err = t.cfg.Interface(desc.InterfaceID, 0); err != nil {
		t.Close()
		return nil, classifyUSBError(fmt.Sprintf("claim interface %d", desc.InterfaceID), err)
	}
	if t.in, err = t.intf.InEndpoint(desc.EndpointIn & 0x0f); err != nil {
		t.Close()
		return nil, classifyUSBError(fmt.Sprintf("open endpoint 0x%02x", desc.EndpointIn), err)
	}

	logger.Infof("USBTransport: Opened NIA %04x:%04x interface %d endpoint 0x%02x",
		desc.VendorID, desc.ProductID, desc.InterfaceID, desc.EndpointIn)
	return t, nil
}

// Read performs one bulk read bounded by the transport timeout
func (t *USBTransport) Read(ctx context.Context) ([]byte, error) {
	if ctx.Err() != nil {
		return cancelled(), nil
	}

	readCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	buf := make([]byte, PacketLength)
	n, err := t.in.ReadContext(readCtx, buf)
	if err != nil {
		if ctx.Err() != nil {
			return cancelled(), nil
		}
		if errors.Is(readCtx.Err(), context.DeadlineExceeded) ||
			errors.Is(err, gousb.TransferTimedOut) || errors.Is(err, gousb.ErrorTimeout) {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("bulk read: %v: %w", err, ErrAccessDenied)
	}
	return buf[:n], nil
}

// Close releases the interface and the device. Safe to call more than once.
func (t *USBTransport) Close() error {
	t.closeOnce.Do(func() {
		if t.intf != nil {
			t.intf.Close()
		}
		if t.cfg != nil {
			if err := t.cfg.Close(); err != nil {
				t.logger.Warnf("USBTransport: release configuration: %v", err)
			}
		}
		if t.dev != nil {
			if err := t.dev.Close(); err != nil {
				t.logger.Warnf("USBTransport: close device: %v", err)
			}
		}
		if err := t.usb.Close(); err != nil {
			t.logger.Warnf("USBTransport: close context: %v", err)
		}
		t.logger.Info("USBTransport: Closed")
	})
	return nil
}

func classifyUSBError(op string, err error) error {
	if errors.Is(err, gousb.ErrorAccess) {
		return fmt.Errorf("%s: %v: %w", op, err, ErrAccessDenied)
	}
	return fmt.Errorf("%s: %w", op, err)
}
