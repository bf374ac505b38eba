//go:build linux

package shm

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"
)

// shmDir is where POSIX shared memory objects live on Linux.
const shmDir = "/dev/shm/"

// Role records whether this process created a segment or merely attached to
// an existing one. Only the creator may unlink the segment at shutdown;
// openers must only unmap.
type Role int

const (
	RoleCreated Role = iota
	RoleOpened
)

func (r Role) String() string {
	if r == RoleCreated {
		return "created"
	}
	return "opened"
}

// Segment is a mapped POSIX shared memory object of fixed size.
type Segment struct {
	name string
	mem  []byte
	role Role
}

// Create attaches to the named segment, creating it if it does not exist.
// The create-or-open race is resolved with an exclusive-create attempt that
// falls back to open-existing; the returned segment's Role tells the caller
// whether it owns eventual teardown. A newly created segment is zero-filled
// and sized with ftruncate before mapping.
func Create(name string, size int) (*Segment, error) {
	path := shmDir + name
	role := RoleCreated

	fd, err := unix.Open(path, unix.O_CREAT|unix.O_EXCL|unix.O_RDWR, 0o666)
	if errors.Is(err, unix.EEXIST) {
		role = RoleOpened
		fd, err = unix.Open(path, unix.O_RDWR, 0o666)
	}
	if err != nil {
		return nil, &ResourceError{Name: name, Op: "create", Err: err}
	}
	defer unix.Close(fd)

	if role == RoleCreated {
		if err := unix.Ftruncate(fd, int64(size)); err != nil {
			unix.Unlink(path)
			return nil, &ResourceError{Name: name, Op: "ftruncate", Err: err}
		}
	} else if err := waitSize(fd, name, size); err != nil {
		return nil, err
	}

	mem, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		if role == RoleCreated {
			unix.Unlink(path)
		}
		return nil, &ResourceError{Name: name, Op: "mmap", Err: err}
	}

	log.Debug().Str("segment", name).Int("size", size).Stringer("role", role).Msg("Shared memory segment attached")
	return &Segment{name: name, mem: mem, role: role}, nil
}

// Open attaches to an existing segment; it never creates. Used by processes
// that are pure consumers of a peer-owned segment.
func Open(name string, size int) (*Segment, error) {
	fd, err := unix.Open(shmDir+name, unix.O_RDWR, 0o666)
	if err != nil {
		return nil, &ResourceError{Name: name, Op: "open", Err: err}
	}
	defer unix.Close(fd)

	if err := checkSize(fd, name, size); err != nil {
		return nil, err
	}

	mem, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, &ResourceError{Name: name, Op: "mmap", Err: err}
	}

	log.Debug().Str("segment", name).Int("size", size).Msg("Shared memory segment opened")
	return &Segment{name: name, mem: mem, role: RoleOpened}, nil
}

// OpenRetry attaches to a peer-owned segment, retrying with backoff while the
// peer has not created it yet. Returns the last ResourceError once attempts
// are exhausted.
func OpenRetry(name string, size, attempts int, backoff time.Duration) (*Segment, error) {
	var lastErr error
	for i := 0; i < attempts; i++ {
		seg, err := Open(name, size)
		if err == nil {
			return seg, nil
		}
		lastErr = err
		if i == 0 {
			log.Info().Str("segment", name).Msg("Waiting for peer to create shared memory segment")
		}
		time.Sleep(backoff)
	}
	return nil, lastErr
}

// Bytes returns the mapped region.
func (s *Segment) Bytes() []byte { return s.mem }

// Name returns the segment name.
func (s *Segment) Name() string { return s.name }

// Role reports whether this process created the segment.
func (s *Segment) Role() Role { return s.role }

// Close unmaps the segment. Every process must do this; it does not remove
// the underlying object.
func (s *Segment) Close() error {
	if s.mem == nil {
		return nil
	}
	err := unix.Munmap(s.mem)
	s.mem = nil
	return err
}

// Unlink removes the shared memory object. Only legal for the creator; an
// opener calling Unlink is a lifecycle bug and is refused.
func (s *Segment) Unlink() error {
	if s.role != RoleCreated {
		return &ResourceError{Name: s.name, Op: "unlink", Err: errors.New("segment not owned by this process")}
	}
	return unix.Unlink(shmDir + s.name)
}

func checkSize(fd int, name string, size int) error {
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return &ResourceError{Name: name, Op: "fstat", Err: err}
	}
	if st.Size != int64(size) {
		return sizeMismatch(name, st.Size, size)
	}
	return nil
}

// Bounded wait for the create-race loser: the winner's file exists from the
// O_CREAT moment but has length zero until its ftruncate lands.
const (
	createRaceRetries = 50
	createRaceBackoff = 10 * time.Millisecond
)

// waitSize validates the segment size on the create-fallback path. A
// zero-length object means the winner is mid-initialization, so it is
// re-checked with backoff; any other mismatch is real ABI drift and fails
// immediately.
func waitSize(fd int, name string, size int) error {
	for attempt := 0; ; attempt++ {
		var st unix.Stat_t
		if err := unix.Fstat(fd, &st); err != nil {
			return &ResourceError{Name: name, Op: "fstat", Err: err}
		}
		if st.Size == int64(size) {
			return nil
		}
		if st.Size != 0 || attempt >= createRaceRetries {
			return sizeMismatch(name, st.Size, size)
		}
		time.Sleep(createRaceBackoff)
	}
}

func sizeMismatch(name string, got int64, want int) error {
	return &ResourceError{
		Name: name,
		Op:   "validate",
		Err:  fmt.Errorf("size mismatch: segment is %d bytes, layout needs %d (ABI drift?)", got, want),
	}
}
