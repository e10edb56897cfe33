// Package storage holds narrated audio in an S3-compatible object store.
//
// Object keys follow a fixed layout per book and voice:
//
//	{book}/{voice}/section-{order}.mp3       assembled section audio
//	{book}/{voice}/blocks/{block}.mp3        staged block audio
//	{book}/{voice}/blocks/{block}.json       staged block alignment
//
// S3Store is the MinIO-backed implementation used by the daemon.
package storage
