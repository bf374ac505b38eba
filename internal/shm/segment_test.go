package shm

import (
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testName(t *testing.T, suffix string) string {
	return fmt.Sprintf("camswitch_test_%s_%d", suffix, os.Getpid())
}

func TestSegmentCreateOpen(t *testing.T) {
	name := testName(t, "seg")
	const size = 4096

	creator, err := Create(name, size)
	require.NoError(t, err)
	defer creator.Unlink()
	defer creator.Close()

	assert.Equal(t, RoleCreated, creator.Role())
	assert.Len(t, creator.Bytes(), size)

	// Second Create attaches instead of failing: processes race to be first.
	opener, err := Create(name, size)
	require.NoError(t, err)
	defer opener.Close()
	assert.Equal(t, RoleOpened, opener.Role())

	// Both map the same memory.
	creator.Bytes()[100] = 0xAB
	assert.Equal(t, byte(0xAB), opener.Bytes()[100])
}

func TestSegmentOpenMissing(t *testing.T) {
	_, err := Open(testName(t, "missing"), 4096)
	require.Error(t, err)
}

func TestSegmentSizeMismatch(t *testing.T) {
	name := testName(t, "size")

	creator, err := Create(name, 4096)
	require.NoError(t, err)
	defer creator.Unlink()
	defer creator.Close()

	_, err = Open(name, 8192)
	require.Error(t, err)
	var rerr *ResourceError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, name, rerr.Name)
}

func TestSegmentUnlinkRequiresCreator(t *testing.T) {
	name := testName(t, "unlink")

	creator, err := Create(name, 4096)
	require.NoError(t, err)
	defer creator.Close()

	opener, err := Open(name, 4096)
	require.NoError(t, err)
	defer opener.Close()

	assert.Error(t, opener.Unlink())
	assert.NoError(t, creator.Unlink())
}

// The loser of the create race can observe the winner's file before its
// ftruncate has landed. A zero-length object must be waited out, not failed.
func TestSegmentCreateFallbackWaitsForInit(t *testing.T) {
	name := testName(t, "createrace")
	const size = 4096

	// Stand in for a winner that has created but not yet sized the object.
	f, err := os.OpenFile(shmDir+name, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o666)
	require.NoError(t, err)
	defer os.Remove(shmDir + name)

	go func() {
		time.Sleep(50 * time.Millisecond)
		f.Truncate(size)
		f.Close()
	}()

	seg, err := Create(name, size)
	require.NoError(t, err)
	defer seg.Close()
	assert.Equal(t, RoleOpened, seg.Role())
	assert.Len(t, seg.Bytes(), size)
}

func TestSegmentCreateFallbackRejectsWrongSize(t *testing.T) {
	name := testName(t, "createdrift")

	creator, err := Create(name, 4096)
	require.NoError(t, err)
	defer creator.Unlink()
	defer creator.Close()

	// A nonzero mismatch is ABI drift, not a mid-init window; no waiting.
	start := time.Now()
	_, err = Create(name, 8192)
	require.Error(t, err)
	var rerr *ResourceError
	require.ErrorAs(t, err, &rerr)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestSegmentOpenRetry(t *testing.T) {
	name := testName(t, "retry")

	done := make(chan struct{})
	go func() {
		defer close(done)
		time.Sleep(50 * time.Millisecond)
		seg, err := Create(name, 4096)
		if err == nil {
			seg.Close()
		}
	}()

	seg, err := OpenRetry(name, 4096, 50, 20*time.Millisecond)
	require.NoError(t, err)
	<-done
	seg.Close()
	os.Remove(shmDir + name)
}
