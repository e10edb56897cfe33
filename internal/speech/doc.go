// Package speech converts content block text into audio through a speech
// provider.
//
// Providers come in two behaviour classes. Context-stitching providers accept
// neighbouring text and prior request ids and return character alignment;
// their chunks and blocks are processed strictly in order and the rolling
// request-id History is threaded explicitly. Estimating providers return bare
// audio; their blocks are converted concurrently and durations fall back to a
// text-length estimate. NewConverter picks the Converter implementation from
// the provider's declared capability.
package speech
