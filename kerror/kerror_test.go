package kerror

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/evanphx/yukon/abi"
)

func allSubsystemErrors() []error {
	var out []error

	for e := range memoryNames {
		out = append(out, e)
	}

	for e := range fsNames {
		out = append(out, e)
	}

	for e := range netNames {
		out = append(out, e)
	}

	for e := range procNames {
		out = append(out, e)
	}

	for e := range secNames {
		out = append(out, e)
	}

	for e := range ipcNames {
		out = append(out, e)
	}

	return out
}

func TestMapIsTotal(t *testing.T) {
	for _, err := range allSubsystemErrors() {
		u := Map(err)

		require.True(t, u.Kind >= 0 && u.Kind < numKinds, "unmapped variant: %v", err)

		code := u.Errno()
		require.True(t, code > 0, "no errno for %v", err)
	}
}

func TestErrnoIsTotal(t *testing.T) {
	for _, k := range Kinds() {
		code := Unified{Kind: k}.Errno()
		require.True(t, code > 0, "no errno for kind %v", k)
	}
}

func TestErrnoTable(t *testing.T) {
	expect := map[Kind]int32{
		InvalidArgument:     abi.EINVAL,
		InvalidAddress:      abi.EFAULT,
		PermissionDenied:    abi.EPERM,
		NotFound:            abi.ENOENT,
		AlreadyExists:       abi.EEXIST,
		ResourceBusy:        abi.EBUSY,
		ResourceUnavailable: abi.EAGAIN,
		OutOfMemory:         abi.ENOMEM,
		NotSupported:        abi.ENOSYS,
		OtherKind:           abi.EIO,
	}

	require.Len(t, expect, len(Kinds()))

	for k, code := range expect {
		require.Equal(t, code, Unified{Kind: k}.Errno())
	}
}

func TestConceptualKindsConverge(t *testing.T) {
	// a missing path and a missing pid are both "not found"
	require.Equal(t, Map(FsFileNotFound).Errno(), Map(ProcNotFound).Errno())
	require.Equal(t, NotFound, Map(FsPathNotFound).Kind)
	require.Equal(t, NotFound, Map(ProcNotFound).Kind)
	require.Equal(t, NotFound, Map(IpcNoSuchQueue).Kind)

	require.Equal(t, PermissionDenied, Map(FsPermissionDenied).Kind)
	require.Equal(t, PermissionDenied, Map(SecCapabilityMissing).Kind)
}

func TestMapUnwrapsCause(t *testing.T) {
	err := errors.Wrap(MemInvalidAddress, "copying user buffer")

	u := Map(err)

	require.Equal(t, InvalidAddress, u.Kind)
	require.Equal(t, int32(abi.EFAULT), u.Errno())
}

func TestMapUnknownError(t *testing.T) {
	u := Map(errors.New("totally novel failure"))

	require.Equal(t, OtherKind, u.Kind)
	require.Contains(t, u.Detail, "novel")
	require.Equal(t, int32(abi.EIO), u.Errno())
}

func TestMapPassesUnifiedThrough(t *testing.T) {
	in := Unified{Kind: ResourceBusy}

	require.Equal(t, in, Map(in))
}
