package abi

// Numeric error codes returned to user space. Values follow the usual
// POSIX assignments.
const (
	EPERM   = 1
	ENOENT  = 2
	EIO     = 5
	EAGAIN  = 11
	ENOMEM  = 12
	EFAULT  = 14
	EBUSY   = 16
	EEXIST  = 17
	EINVAL = 22
	ENOSYS = 38
)
