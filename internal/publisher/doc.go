// Package publisher implements the frame publisher loop.
//
// The capture pipeline writes a small ring of numbered frames into a shared
// directory. On a fixed cadence the publisher picks the newest one and
// atomically replaces a single well-known file with its bytes, so readers
// that open the published path see either the previous complete frame or
// the new one, never a partial write.
//
// Lifecycle:
//
//	p := publisher.New(cfg, capture.NewGStreamer(bin, logger), publisher.WithLogger(logger))
//	err := p.Run(ctx) // preflight, cleanup, spawn capture, poll until ctx is done
//
// On shutdown the capture process group is terminated, numbered frames are
// removed, and the published file is left in place as the last known frame.
package publisher
