// Package log captures protocol events from the simulator.
//
// Protocol capture is separate from operational logging (slog). Every
// frame, decoded message, handshake transition and error can be recorded
// as an Event and replayed later with the wifisim-log tool.
//
//	// Console while developing
//	logger := log.NewSlogAdapter(slog.Default())
//
//	// File capture plus console
//	file, _ := log.NewFileLogger("ap.wlog")
//	logger := log.NewMultiLogger(log.NewSlogAdapter(slog.Default()), file)
//
// Events are recorded at three layers:
//   - Transport: length-prefixed frames as raw bytes (FrameEvent)
//   - Wire: decoded messages (MessageEvent)
//   - Service: handshake and connection state changes (StateChangeEvent)
//
// # File Format
//
// A .wlog file is a plain sequence of CBOR-encoded events with integer keys.
package log
