package capture

import (
	"sync"
)

// FakeContext is an in-memory Context for tests. Feed pushes sample frames
// through the registered callback as if the hardware produced them.
type FakeContext struct {
	mu      sync.Mutex
	device  *FakeDevice
	initErr error
}

// NewFakeContext creates a fake audio backend.
func NewFakeContext() *FakeContext {
	return &FakeContext{}
}

// FailNextInit makes the next NewCapture call return err. Simulates a
// missing or permission-denied microphone.
func (f *FakeContext) FailNextInit(err error) {
	f.mu.Lock()
	f.initErr = err
	f.mu.Unlock()
}

func (f *FakeContext) NewCapture(_ DeviceConfig, cb DataCallback) (Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.initErr != nil {
		err := f.initErr
		f.initErr = nil
		return nil, err
	}
	f.device = &FakeDevice{cb: cb}
	return f.device, nil
}

func (f *FakeContext) Close() {}

// Device returns the most recently created fake device.
func (f *FakeContext) Device() *FakeDevice {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.device
}

// FakeDevice records lifecycle calls and lets tests inject audio frames.
type FakeDevice struct {
	mu      sync.Mutex
	cb      DataCallback
	started bool
	closed  bool
}

func (d *FakeDevice) Start() error {
	d.mu.Lock()
	d.started = true
	d.mu.Unlock()
	return nil
}

func (d *FakeDevice) Stop() {
	d.mu.Lock()
	d.started = false
	d.mu.Unlock()
}

func (d *FakeDevice) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
}

// Feed delivers samples through the data callback, as the hardware would.
func (d *FakeDevice) Feed(samples []float32) {
	d.mu.Lock()
	cb := d.cb
	started := d.started
	d.mu.Unlock()

	if started && cb != nil {
		cb(samples)
	}
}

// Started reports whether the device is currently running.
func (d *FakeDevice) Started() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.started
}

// Closed reports whether the device has been released.
func (d *FakeDevice) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}
