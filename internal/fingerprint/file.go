package fingerprint

import (
	"fmt"
	"io/fs"

	"golang.org/x/sys/unix"
)

// File fingerprints a dependency file: the path is hashed first, then the
// file's content, so a rename invalidates an entry the same way an edit
// does. Files that cannot contribute content — unreadable, missing (when
// allowMissing is set), non-regular, or empty — fall back to a path-only
// fingerprint. A replay that recorded readable content will then correctly
// fail to match.
//
// allowMissing is the lookup/insert asymmetry: at lookup time a vanished
// dependency is an ordinary stale entry, at insert time it is an error.
func File(path string, allowMissing bool) (string, error) {
	var d digest
	d.writeString(path)

	fd, err := unix.Open(path, unix.O_RDONLY, 0)
	if err != nil {
		switch {
		case err == unix.ENOENT && allowMissing:
			return d.hex(), nil
		case err == unix.EACCES || err == unix.EPERM:
			return d.hex(), nil
		case err == unix.ENOENT:
			return "", fmt.Errorf("open %s: %w", path, fs.ErrNotExist)
		default:
			return "", fmt.Errorf("open %s: %w", path, err)
		}
	}
	defer unix.Close(fd)

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}
	if st.Mode&unix.S_IFMT != unix.S_IFREG || st.Size == 0 {
		return d.hex(), nil
	}

	data, err := unix.Mmap(fd, 0, int(st.Size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return "", fmt.Errorf("mmap %s: %w", path, err)
	}
	d.write(data)
	if err := unix.Munmap(data); err != nil {
		return "", fmt.Errorf("munmap %s: %w", path, err)
	}

	return d.hex(), nil
}
