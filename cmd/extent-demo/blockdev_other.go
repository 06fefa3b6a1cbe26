//go:build !(aix || darwin || dragonfly || freebsd || linux || netbsd || openbsd || solaris)
// +build !aix,!darwin,!dragonfly,!freebsd,!linux,!netbsd,!openbsd,!solaris

package main

import "fmt"

func blockDeviceSize(path string) (uint64, error) {
	return 0, fmt.Errorf("extent-demo: sizing from a block device is not supported on this platform")
}
