package shm

// Segment names shared by every participating process. A process referring to
// any of these must overlay the exact layout the owning package defines.
const (
	NameActiveFrame   = "camswitch_active_frame"
	NameBrightness    = "camswitch_brightness"
	NameControl       = "camswitch_control"
	NameZeroCopyDay   = "camswitch_zerocopy_day"
	NameZeroCopyNight = "camswitch_zerocopy_night"
)

// abiVersion is stamped into every segment header by its creator and
// validated by every opener. Bump on any layout change.
const abiVersion uint32 = 1
