// Package platform holds the OS-specific pieces of reading input files.
package platform
