// Package dfu provides a high-level API for updating Nordic nRF5 devices running
// the Secure DFU bootloader.
//
// # Overview
//
// An update transfers two objects over the bootloader's control point:
//   - The init packet, as the command object
//   - The firmware image, as the data object
//
// Each object is sent in blocks sized by the peripheral. Every block is verified by
// CRC-32 before it is executed, and a block that fails verification is sent again.
// When the peripheral already holds part of an object from an earlier session, the
// update resumes from it if its CRC matches.
//
// # Basic Usage
//
//	u := dfu.New(connector)
//	err := u.Update(ctx, "C8:2B:96:A1:00:01", initPacket, firmware)
//	if err != nil {
//	    result, ext := protocol.ResultOf(err)
//	    log.Fatalf("update failed (%s / %s): %v", result, ext, err)
//	}
//
// # Progress Tracking
//
//	u := dfu.New(connector,
//	    dfu.WithProgressCallback(func(p dfu.Progress) {
//	        fmt.Printf("[%s] %s %d/%d\n", p.Phase, p.Object, p.Offset, p.Total)
//	    }),
//	)
//
// # Configuration Options
//
//	u := dfu.New(connector,
//	    dfu.WithLogger(logging.New(os.Stderr, "nrfdfu")),
//	    dfu.WithMaxRetries(5),
//	    dfu.WithRetryDelay(time.Second),
//	    dfu.WithChunkSize(16),
//	)
//
// Options can also be loaded from a TOML file with the config package.
//
// # Error Handling
//
// Failures reported by the peripheral, and local protocol violations, are
// *protocol.ProtocolError values. The package adds:
//   - ResumeMismatchError: buffered firmware on the peripheral does not match
//   - ResumeRejectedError: the peripheral refused to resume; power cycle it or wait for its timeout
//   - RetriesExhaustedError: every attempt failed
//
// # Hardware Independence
//
// This package does NOT implement Bluetooth. Callers provide a Connector that opens a
// Transport for their radio stack. The peripheral package provides a simulated
// bootloader for tests and demos.
package dfu
