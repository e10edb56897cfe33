// Package openai adapts the OpenAI speech endpoint to the speech.Provider
// contract. The endpoint returns bare audio with neither alignment nor a
// native duration, so callers estimate timing from text length.
package openai
