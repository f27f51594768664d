// Package live implements the live assistant session: a real-time audio/video
// conversation with the AI backend about the current build step.
//
// # Architecture
//
// A Session owns three capture/playback handles and one transport stream:
//
//   - AudioCapture: microphone, 16kHz mono pcm_s16le in 20ms buffers
//   - VideoCapture: camera snapshots, optional
//   - AudioPlayback: speaker, 24kHz mono pcm_s16le
//   - Dialer/Stream: the bidirectional stream to the backend
//
// Devices and transports are interfaces so the session logic runs against
// fakes in tests and against malgo/oto and gorilla/websocket or genai in the
// binaries.
//
// # Data Flow
//
//	mic → audio producer → AudioChunk ─┐
//	                                    ├→ Stream.Send
//	cam → video producer (1/s) → Frame ─┘
//
//	Stream.Recv → AudioMessage → Scheduler → AudioSink.Enqueue(start, pcm)
//
// Audio and video producers are independent; each preserves its own send
// order. Inbound audio is scheduled at max(clock, now) so chunks play back to
// back without overlap.
//
// # State Machine
//
//	disconnected → connecting → connected → disconnected | error
//
// Start while connecting or connected stops the session instead. Every
// transition out of connecting/connected releases each acquired handle
// exactly once.
package live
