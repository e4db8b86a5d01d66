//go:build !unix

package manifest

import "os"

// lockDir only checks that dir exists on platforms without flock.
func lockDir(dir string) (func(), error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, err
	}
	return func() {}, nil
}
