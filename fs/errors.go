package fs

import "errors"

// Recoverable failures, returned to the caller. Invariant violations
// (allocator double-free, block accounting mismatches, type
// confusion) panic instead: once an internal invariant fails the
// on-disk state cannot be trusted.
var (
	// ErrNotFound: name resolution failed.
	ErrNotFound = errors.New("easyfs: name not found")
	// ErrExists: create or link would duplicate a name.
	ErrExists = errors.New("easyfs: name already exists")
	// ErrNoSpace: out of inode slots or data blocks.
	ErrNoSpace = errors.New("easyfs: out of space")
	// ErrNameTooLong: name exceeds the directory-entry name field.
	ErrNameTooLong = errors.New("easyfs: name too long")
	// ErrTooLarge: write would exceed the maximum file size.
	ErrTooLarge = errors.New("easyfs: file exceeds maximum size")
	// ErrBadMagic: the image's superblock failed validation.
	ErrBadMagic = errors.New("easyfs: invalid superblock magic")
)
