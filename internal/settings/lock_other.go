//go:build !unix

package settings

// No advisory file locks here; the in-process mutex is all there is.
func lockFile(string, bool) (func(), error) {
	return func() {}, nil
}
