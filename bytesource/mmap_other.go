//go:build !(darwin || linux || freebsd)

package bytesource

// NewMemoryMapped falls back to a plain file-backed Source on platforms
// without a supported mmap syscall binding. It is still correct, just
// without the mapped-read performance benefit, which is an
// optimization rather than a correctness requirement.
func NewMemoryMapped(path string) (Source, error) {
	return OpenFile(path)
}
