// Package iqs269 drives the Azoteq IQS269A capacitive/inductive touch and
// proximity controller over I2C.
//
// The driver mirrors the device's system settings block in memory, programs
// it atomically, and decodes interrupt-triggered status snapshots into key,
// switch, gesture and slider-position events delivered to EventSink
// implementations. Auto-calibration (ATI) parameters can be tuned at runtime;
// any tuning change invalidates the calibration until the device is
// re-initialized.
//
// Typical usage:
//
//	d := iqs269.New(bus)
//	if err := d.Probe(ctx); err != nil { ... }
//	if err := d.Configure(ctx, cfg); err != nil { ... }
//	d.AttachKeypad(sink)
//	for range rdy { // once per RDY interrupt
//		_ = d.ServiceInterrupt(ctx)
//	}
package iqs269
