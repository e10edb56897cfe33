// Package elevenlabs adapts the ElevenLabs text-to-speech API to the
// speech.Provider contract.
//
// Requests go to the with-timestamps endpoint so every response carries
// character-level alignment. The adapter forwards previous/next text and
// up to three previous request ids for prosody stitching, and reports the
// response's request-id header so callers can thread it into later requests.
//
// Calls are made once. Retrying provider requests is a caller decision.
package elevenlabs
